// Package streams exposes mappers to clients as permissioned, form-described
// streams with a fixed set of actions.
package streams

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// Stream binds a mapper to forms, actions and a permission map. Streams
// are built once at boot and never modified.
type Stream struct {
	ID    string
	Name  string
	Title string
	DBID  string
	Lang  string

	Mapper orm.Mapper

	ListFields   []ListField
	FilterFields []FilterField
	ItemFields   forms.Form

	Actions []*Action
	// Permissions maps role names to permission letters.
	Permissions map[string]string
	// MaxLimit bounds the page size of list requests.
	MaxLimit int
	// Where restricts every query of the stream.
	Where []orm.Expr
}

// ListParams selects one page of a list.
type ListParams struct {
	// Filters holds native filter values by filter field name.
	Filters  map[string]any
	Order    string
	Page     int
	PageSize int
}

// Query returns the selection of items visible through the stream.
func (s *Stream) Query() orm.Query {
	return s.Mapper.Query().Where(s.Where...)
}

// Action looks up an action by name.
func (s *Stream) Action(name string) (*Action, error) {
	for _, a := range s.Actions {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, &RouteError{Err: ErrActionNotFound, StreamID: s.ID, Action: name}
}

// Perms returns the letters granted to u on this stream.
func (s *Stream) Perms(u *auth.User) string {
	return auth.Permissions(u, s.Permissions)
}

// CheckPerms fails with auth.ErrAccessDenied unless u holds every required letter.
func (s *Stream) CheckPerms(u *auth.User, required string) error {
	if err := auth.CheckPerms(u, s.Permissions, required); err != nil {
		return fmt.Errorf("%s: %w", s.ID, err)
	}
	return nil
}

// AllowedActions lists the actions u may run, in declaration order.
func (s *Stream) AllowedActions(u *auth.User) []string {
	var names []string
	for _, a := range s.Actions {
		if s.CheckPerms(u, a.Perms) == nil {
			names = append(names, a.Name)
		}
	}
	return names
}

func (s *Stream) filtered(filters map[string]any) orm.Query {
	q := s.Query()
	for _, f := range s.FilterFields {
		v, ok := filters[f.Name]
		if !ok || v == nil || f.Filter == nil {
			continue
		}
		q = f.Filter(q, v)
	}
	return q
}

// orderTerms parses "+name" or "-name". name must be id or an orderable
// list field. Ties are broken by id.
func (s *Stream) orderTerms(order string) ([]orm.OrderTerm, error) {
	if order == "" {
		order = "+id"
	}
	if len(order) < 2 || (order[0] != '+' && order[0] != '-') {
		return nil, &forms.MessageError{Errors: forms.Errors{"order": MsgInvalidOrder}}
	}
	desc, name := order[0] == '-', order[1:]

	column := ""
	if name == "id" {
		column = "id"
	}
	for _, f := range s.ListFields {
		if f.Name == name && f.Order {
			column = f.column()
		}
	}
	if column == "" {
		return nil, &FieldError{StreamID: s.ID, Field: name}
	}

	term := orm.Asc(column)
	if desc {
		term = orm.Desc(column)
	}
	if column == "id" {
		return []orm.OrderTerm{term}, nil
	}
	return []orm.OrderTerm{term, orm.Asc("id")}, nil
}

func (s *Stream) listKeys() []string {
	allowed := s.Mapper.AllowedKeys()
	keys := []string{"id"}
	for _, f := range s.ListFields {
		if f.Name != "id" && slices.Contains(allowed, f.Name) {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

func (s *Stream) itemKeys() []string {
	allowed := s.Mapper.AllowedKeys()
	keys := []string{"id"}
	for _, name := range s.ItemFields.Names() {
		if name != "id" && slices.Contains(allowed, name) {
			keys = append(keys, name)
		}
	}
	return keys
}

// writeKeys lists the keys of values the mapper can store.
func (s *Stream) writeKeys(values orm.Item) []string {
	allowed := s.Mapper.AllowedKeys()
	keys := make([]string, 0, len(values))
	for _, name := range s.ItemFields.Names() {
		if _, ok := values[name]; ok && slices.Contains(allowed, name) {
			keys = append(keys, name)
		}
	}
	return keys
}

// ListItems returns one page of filtered, ordered items.
func (s *Stream) ListItems(ctx context.Context, sess *orm.Session, p ListParams) ([]orm.Item, error) {
	if p.Page < 1 {
		return nil, &forms.MessageError{Errors: forms.Errors{"page": forms.MsgTooSmall}}
	}
	if p.PageSize < 1 || p.PageSize > s.MaxLimit {
		return nil, &forms.MessageError{Errors: forms.Errors{"page_size": MsgInvalidPageSize}}
	}
	terms, err := s.orderTerms(p.Order)
	if err != nil {
		return nil, err
	}
	q := s.filtered(p.Filters).
		OrderBy(terms...).
		Limit(p.PageSize).
		Offset((p.Page - 1) * p.PageSize)
	return q.SelectItems(ctx, sess, s.listKeys())
}

// CountItems counts the filtered items.
func (s *Stream) CountItems(ctx context.Context, sess *orm.Session, filters map[string]any) (int64, error) {
	return s.filtered(filters).CountItems(ctx, sess)
}

// GetItem loads one item with the item form keys.
func (s *Stream) GetItem(ctx context.Context, sess *orm.Session, id int64) (orm.Item, error) {
	item, err := s.Query().ID(id).SelectFirstItem(ctx, sess, s.itemKeys())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &ItemError{Err: ErrItemNotFound, StreamID: s.ID, ItemID: id}
	}
	return item, nil
}

// NewItem computes the initial values of an item that is about to be created.
func (s *Stream) NewItem(kwargs map[string]any) orm.Item {
	return orm.Item(s.ItemFields.Initials(kwargs))
}

// IsItemExists reports whether id is visible through the stream.
func (s *Stream) IsItemExists(ctx context.Context, sess *orm.Session, id int64) (bool, error) {
	n, err := s.Query().ID(id).CountItems(ctx, sess)
	return n > 0, err
}

// InsertItem stores a new item. An explicit id that is already used fails
// with ErrItemAlreadyExists.
func (s *Stream) InsertItem(ctx context.Context, sess *orm.Session, values orm.Item) (orm.Item, error) {
	if id, ok := values.ID(); ok {
		taken, err := orm.IDTaken(ctx, sess, s.Mapper, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &ItemError{Err: ErrItemAlreadyExists, StreamID: s.ID, ItemID: id}
		}
	}
	return s.Mapper.InsertItem(ctx, sess, values, s.writeKeys(values))
}

// UpdateItem writes the keys present in values.
func (s *Stream) UpdateItem(ctx context.Context, sess *orm.Session, id int64, values orm.Item) (orm.Item, error) {
	item, err := s.Mapper.UpdateItem(ctx, sess, s.Query(), id, values, s.writeKeys(values))
	return item, s.itemError(err, id)
}

// DeleteItem deletes an item visible through the stream.
func (s *Stream) DeleteItem(ctx context.Context, sess *orm.Session, id int64) error {
	return s.itemError(s.Mapper.DeleteItem(ctx, sess, s.Query(), id), id)
}

// Publish publishes an item of a publication stream.
func (s *Stream) Publish(ctx context.Context, sess *orm.Session, id int64) error {
	return s.itemError(s.Query().Publish(ctx, sess, id), id)
}

// CreateVersion creates the stream's language version of an item.
func (s *Stream) CreateVersion(ctx context.Context, sess *orm.Session, id int64) error {
	v, ok := s.Mapper.(orm.Versioner)
	if !ok {
		return fmt.Errorf("%w: %s has no language versions", orm.ErrOrm, s.ID)
	}
	return s.itemError(v.CreateVersion(ctx, sess, id), id)
}

func (s *Stream) itemError(err error, id int64) error {
	if errors.Is(err, orm.ErrItemNotFound) {
		return &ItemError{Err: ErrItemNotFound, StreamID: s.ID, ItemID: id}
	}
	return err
}
