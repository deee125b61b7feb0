package streams

import (
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// FilterFunc narrows a query by the native value of one filter field.
type FilterFunc func(q orm.Query, value any) orm.Query

// FilterEq matches rows whose column equals the value.
func FilterEq(column string) FilterFunc {
	return func(q orm.Query, value any) orm.Query {
		return q.Where(orm.Eq(column, value))
	}
}

// FilterContains matches rows whose column contains the string value.
// Empty strings do not filter.
func FilterContains(column string) FilterFunc {
	return func(q orm.Query, value any) orm.Query {
		s, ok := value.(string)
		if !ok || s == "" {
			return q
		}
		return q.Where(orm.Contains(column, s))
	}
}

// ListField is a column of the list view.
type ListField struct {
	forms.Field
	// Order allows ordering the list by Column.
	Order bool
	// Column defaults to the field name.
	Column string
}

func (f ListField) column() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Config adds the orderable flag to the field config.
func (f ListField) Config() map[string]any {
	cfg := f.Field.Config()
	cfg["order"] = f.Order
	return cfg
}

// FilterField is a filter input of the list view.
type FilterField struct {
	forms.Field
	Filter FilterFunc
}

func listForm(fields []ListField) forms.Form {
	form := make(forms.Form, len(fields))
	for i, f := range fields {
		form[i] = f.Field
	}
	return form
}

func listConfig(fields []ListField) []map[string]any {
	cfg := make([]map[string]any, len(fields))
	for i, f := range fields {
		cfg[i] = f.Config()
	}
	return cfg
}

func filterForm(fields []FilterField) forms.Form {
	form := make(forms.Form, len(fields))
	for i, f := range fields {
		form[i] = f.Field
	}
	return form
}
