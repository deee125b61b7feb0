package schema

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
)

// yamlField declares a form field. Type may be omitted when the field
// names a column, in which case the column decides the converter.
type yamlField struct {
	Name     string         `yaml:"name"`
	Label    string         `yaml:"label"`
	Type     string         `yaml:"type"`
	Required bool           `yaml:"required"`
	NotNone  bool           `yaml:"not_none"`
	Default  any            `yaml:"default"`
	Widget   map[string]any `yaml:"widget"`

	// str
	MinLen int  `yaml:"min_len"`
	MaxLen int  `yaml:"max_len"`
	Trim   bool `yaml:"trim"`
	// int
	Min *int64 `yaml:"min"`
	Max *int64 `yaml:"max"`
	// str
	OneOf []string `yaml:"one_of"`
	// list
	Item *yamlField `yaml:"item"`
	// dict
	Fields []yamlField `yaml:"fields"`

	// list fields
	Order  bool   `yaml:"order"`
	Column string `yaml:"column"`
	// filter fields
	Filter string `yaml:"filter"`
}

// field converts the declaration. columns is nil for nested fields, which
// must declare their type.
func (f yamlField) field(columns []orm.Column) (forms.Field, error) {
	if f.Name == "" && columns != nil {
		return forms.Field{}, errors.New("name is required")
	}
	conv, err := f.converter(columns)
	if err != nil {
		return forms.Field{}, err
	}
	field := forms.Field{
		Name:        f.Name,
		Label:       f.Label,
		Conv:        conv,
		RawRequired: f.Required,
		NotNone:     f.NotNone,
		Widget:      f.Widget,
	}
	if len(f.OneOf) > 0 {
		if _, ok := conv.(forms.Str); !ok {
			return forms.Field{}, errors.New("one_of applies to str fields only")
		}
		field.Validators = append(field.Validators, forms.OneOf(f.OneOf...))
	}
	if f.Default != nil {
		v, err := conv.ToNative(f.Default)
		if err != nil {
			return forms.Field{}, fmt.Errorf("invalid default: %w", err)
		}
		field.Default = v
	}
	return field, nil
}

func (f yamlField) converter(columns []orm.Column) (forms.Converter, error) {
	switch f.Type {
	case "":
		name := f.Column
		if name == "" {
			name = f.Name
		}
		if name == "id" {
			return forms.Int{}, nil
		}
		i := slices.IndexFunc(columns, func(c orm.Column) bool { return c.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("type is required for %q, which is not a column", name)
		}
		return streams.ConverterFor(columns[i]), nil
	case "str":
		return forms.Str{MinLen: f.MinLen, MaxLen: f.MaxLen, Trim: f.Trim}, nil
	case "int":
		return forms.Int{Min: f.Min, Max: f.Max}, nil
	case "intstr":
		return forms.IntStr{}, nil
	case "bool":
		return forms.Bool{}, nil
	case "date":
		return forms.Date{}, nil
	case "rawdict":
		return forms.RawDict{}, nil
	case "rawlist":
		return forms.RawList{}, nil
	case "list":
		if f.Item == nil {
			return nil, errors.New("list fields need an item")
		}
		item, err := f.Item.field(nil)
		if err != nil {
			return nil, fmt.Errorf("item: %w", err)
		}
		return forms.List{Item: item}, nil
	case "dict":
		sub := make(forms.Form, 0, len(f.Fields))
		for _, sf := range f.Fields {
			if sf.Name == "" {
				return nil, errors.New("dict fields need names")
			}
			field, err := sf.field(nil)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", sf.Name, err)
			}
			sub = append(sub, field)
		}
		return forms.Dict{Fields: sub}, nil
	}
	return nil, fmt.Errorf("unknown field type %q", f.Type)
}

func (f yamlField) filter() (streams.FilterFunc, error) {
	column := f.Column
	if column == "" {
		column = f.Name
	}
	switch f.Filter {
	case "", "eq":
		return streams.FilterEq(column), nil
	case "contains":
		return streams.FilterContains(column), nil
	}
	return nil, fmt.Errorf("unknown filter %q", f.Filter)
}
