package streams

import (
	"context"
	"regexp"

	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// Action names.
const (
	ActionList          = "list"
	ActionGetItem       = "get_item"
	ActionNewItem       = "new_item"
	ActionCreateItem    = "create_item"
	ActionUpdateItem    = "update_item"
	ActionDeleteItem    = "delete_item"
	ActionPublish       = "publish"
	ActionCreateVersion = "create_version"
)

// Error messages of list requests.
const (
	MsgInvalidOrder    = "Invalid order"
	MsgInvalidPageSize = "Page size is out of range"
	MsgIDChanged       = "Item id cannot be changed"
)

var orderPattern = regexp.MustCompile(`^[+-][A-Za-z_][A-Za-z0-9_]*$`)

type runFunc func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error)

// Action is one named operation of a stream. Its request form is built per
// stream because bounds such as the page size depend on the stream.
type Action struct {
	Name string
	// Perms lists the permission letters required to run the action.
	Perms string

	form func(s *Stream) forms.Form
	run  runFunc
}

// Form returns the request form of the action on s.
func (a *Action) Form(s *Stream) forms.Form {
	return a.form(s)
}

// Handle checks permissions, validates body and runs the action inside one
// session scope. Returned errors are already converted by ClientError.
func (a *Action) Handle(ctx context.Context, env *Env, s *Stream, body map[string]any) (map[string]any, error) {
	if err := s.CheckPerms(env.User, a.Perms); err != nil {
		return nil, ClientError(err)
	}
	req, err := a.form(s).ToNativeOrErr(body, nil)
	if err != nil {
		return nil, ClientError(err)
	}
	var resp map[string]any
	err = env.WithSession(ctx, func(sess *orm.Session) error {
		var err error
		resp, err = a.run(ctx, sess, s, req)
		return err
	})
	if err != nil {
		return nil, ClientError(err)
	}
	return resp, nil
}

func int64p(v int64) *int64 { return &v }

func itemIDField() forms.Field {
	return forms.Field{Name: "item_id", Conv: forms.Int{}, RawRequired: true, NotNone: true}
}

func itemIDForm(*Stream) forms.Form { return forms.Form{itemIDField()} }

func dict(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// rawItem converts an item to wire values. The id is always kept.
func rawItem(form forms.Form, item orm.Item) map[string]any {
	raw := form.ToRaw(item, nil)
	if _, ok := raw["id"]; !ok {
		if id, ok := item.ID(); ok {
			raw["id"] = id
		}
	}
	return raw
}

func rawItems(form forms.Form, items []orm.Item) []map[string]any {
	raw := make([]map[string]any, len(items))
	for i, it := range items {
		raw[i] = rawItem(form, it)
	}
	return raw
}

// DefaultActions returns the CRUD actions every stream gets.
func DefaultActions() []*Action {
	return []*Action{
		ListAction(),
		GetItemAction(),
		NewItemAction(),
		CreateItemAction(),
		UpdateItemAction(),
		DeleteItemAction(),
	}
}

// ListAction returns one filtered, ordered page of items.
func ListAction() *Action {
	return &Action{
		Name:  ActionList,
		Perms: "x",
		form: func(s *Stream) forms.Form {
			return forms.Form{
				{Name: "filters", Conv: forms.RawDict{}},
				{Name: "order", Conv: forms.Str{}, Default: "+id", NotNone: true,
					Validators: []forms.Validator{func(v any) error {
						if !orderPattern.MatchString(v.(string)) {
							return forms.Invalid(MsgInvalidOrder)
						}
						return nil
					}}},
				{Name: "page", Conv: forms.Int{Min: int64p(1)}, Default: int64(1), NotNone: true},
				{Name: "page_size", Conv: forms.Int{Min: int64p(1), Max: int64p(int64(s.MaxLimit))},
					Default: int64(1), NotNone: true},
			}
		},
		run: func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			filtersRaw := dict(req["filters"])
			ff := filterForm(s.FilterFields)
			filters, filterErrs := ff.ToNative(filtersRaw, ff.Only(keysOf(filtersRaw)))

			page, _ := forms.AsInt64(req["page"])
			pageSize, _ := forms.AsInt64(req["page_size"])
			order := req["order"].(string)

			items, err := s.ListItems(ctx, sess, ListParams{
				Filters:  filters,
				Order:    order,
				Page:     int(page),
				PageSize: int(pageSize),
			})
			if err != nil {
				return nil, err
			}
			total, err := s.CountItems(ctx, sess, filters)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"stream":         s.ID,
				"title":          s.Title,
				"action":         ActionList,
				"list_fields":    listConfig(s.ListFields),
				"items":          rawItems(listForm(s.ListFields), items),
				"total":          total,
				"filters_fields": ff.Config(),
				"filters_errors": filterErrs,
				"filters":        ff.ToRaw(filters, nil),
				"page_size":      pageSize,
				"page":           page,
				"order":          order,
			}, nil
		},
	}
}

// GetItemAction loads one item.
func GetItemAction() *Action {
	return &Action{
		Name:  ActionGetItem,
		Perms: "r",
		form:  itemIDForm,
		run: func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			item, err := s.GetItem(ctx, sess, req["item_id"].(int64))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"item_fields": s.ItemFields.Config(),
				"item":        rawItem(s.ItemFields, item),
			}, nil
		},
	}
}

// NewItemAction computes the initials of a new item from kwargs.
func NewItemAction() *Action {
	return &Action{
		Name:  ActionNewItem,
		Perms: "c",
		form: func(*Stream) forms.Form {
			return forms.Form{{Name: "kwargs", Conv: forms.RawDict{}}}
		},
		run: func(_ context.Context, _ *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			return map[string]any{
				"item_fields": s.ItemFields.Config(),
				"item":        s.ItemFields.ToRaw(s.NewItem(dict(req["kwargs"])), nil),
			}, nil
		},
	}
}

// CreateItemAction validates the supplied values and inserts the item.
// Field errors are returned in the response, not as an error envelope.
func CreateItemAction() *Action {
	return &Action{
		Name:  ActionCreateItem,
		Perms: "c",
		form: func(*Stream) forms.Form {
			return forms.Form{
				{Name: "values", Conv: forms.RawDict{}, RawRequired: true, NotNone: true},
				{Name: "kwargs", Conv: forms.RawDict{}},
			}
		},
		run: func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			raw := dict(req["values"])
			values, errs := s.ItemFields.ToNative(raw, s.ItemFields.Only(keysOf(raw)))
			resp := map[string]any{"item_fields": s.ItemFields.Config()}
			if len(errs) > 0 {
				resp["item"] = raw
				resp["errors"] = errs
				return resp, nil
			}
			item, err := s.InsertItem(ctx, sess, orm.Item(values))
			if err != nil {
				return nil, err
			}
			resp["item"] = rawItem(s.ItemFields, item)
			resp["errors"] = forms.Errors{}
			return resp, nil
		},
	}
}

// UpdateItemAction validates and writes the supplied values only. Ids are
// immutable: an id in values must equal item_id.
func UpdateItemAction() *Action {
	return &Action{
		Name:  ActionUpdateItem,
		Perms: "w",
		form: func(*Stream) forms.Form {
			return forms.Form{
				itemIDField(),
				{Name: "values", Conv: forms.RawDict{}, RawRequired: true, NotNone: true},
			}
		},
		run: func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			id := req["item_id"].(int64)
			raw := dict(req["values"])
			values, errs := s.ItemFields.ToNative(raw, s.ItemFields.Only(keysOf(raw)))
			if newID, ok := orm.Item(values).ID(); ok && newID != id {
				errs["id"] = MsgIDChanged
			}
			resp := map[string]any{"item_fields": s.ItemFields.Config(), "item_id": id}
			if len(errs) > 0 {
				resp["values"] = raw
				resp["errors"] = errs
				return resp, nil
			}
			if _, err := s.UpdateItem(ctx, sess, id, orm.Item(values)); err != nil {
				return nil, err
			}
			resp["values"] = s.ItemFields.ToRaw(values, nil)
			resp["errors"] = forms.Errors{}
			return resp, nil
		},
	}
}

// DeleteItemAction deletes one item.
func DeleteItemAction() *Action {
	return &Action{
		Name:  ActionDeleteItem,
		Perms: "d",
		form:  itemIDForm,
		run: func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			id := req["item_id"].(int64)
			if err := s.DeleteItem(ctx, sess, id); err != nil {
				return nil, err
			}
			return map[string]any{"item_id": id}, nil
		},
	}
}

// PublishAction copies a private admin item to the front database.
func PublishAction() *Action {
	return &Action{
		Name:  ActionPublish,
		Perms: "p",
		form:  itemIDForm,
		run: func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			id := req["item_id"].(int64)
			if err := s.Publish(ctx, sess, id); err != nil {
				return nil, err
			}
			return map[string]any{"item_id": id, "state": orm.StatePublic}, nil
		},
	}
}

// CreateVersionAction creates the stream's language version of an item.
func CreateVersionAction() *Action {
	return &Action{
		Name:  ActionCreateVersion,
		Perms: "c",
		form:  itemIDForm,
		run: func(ctx context.Context, sess *orm.Session, s *Stream, req map[string]any) (map[string]any, error) {
			id := req["item_id"].(int64)
			if err := s.CreateVersion(ctx, sess, id); err != nil {
				return nil, err
			}
			return map[string]any{"item_id": id}, nil
		},
	}
}
