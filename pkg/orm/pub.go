package orm

import (
	"context"
	"fmt"
	"slices"
)

// Side of a publication mapper.
const (
	SideAdmin = "admin"
	SideFront = "front"
)

// PubMapper pairs an admin and a front database with identical schemas.
// Items are created and deleted on admin only; Publish copies an admin
// item to front.
type PubMapper struct {
	side       string
	admin      Mapper
	front      Mapper
	commonKeys []string
}

// NewPubMapper creates the view of the entity on one side. admin and front
// must implement the unchecked row writes of BaseMapper or I18nMapper.
func NewPubMapper(side string, admin, front Mapper, commonKeys []string) (*PubMapper, error) {
	if side != SideAdmin && side != SideFront {
		return nil, ormErrorf("unknown publication side %q", side)
	}
	for _, m := range []Mapper{admin, front} {
		if _, ok := m.(rowWriter); !ok {
			return nil, ormErrorf("mapper %s.%s cannot be used for publication", m.DBID(), m.Name())
		}
	}
	return &PubMapper{side: side, admin: admin, front: front, commonKeys: slices.Clone(commonKeys)}, nil
}

func (m *PubMapper) inner() Mapper {
	if m.side == SideAdmin {
		return m.admin
	}
	return m.front
}

func (m *PubMapper) requireAdmin(op string) error {
	if m.side != SideAdmin {
		return fmt.Errorf("%w: %s %s", ErrPublication, op, m.Name())
	}
	return nil
}

// Side reports whether the mapper is the admin or the front view.
func (m *PubMapper) Side() string { return m.side }

func (m *PubMapper) Name() string                          { return m.inner().Name() }
func (m *PubMapper) DBID() string                          { return m.inner().DBID() }
func (m *PubMapper) Lang() string                          { return m.inner().Lang() }
func (m *PubMapper) Table() *Table                         { return m.inner().Table() }
func (m *PubMapper) ColumnKeys() []string                  { return m.inner().ColumnKeys() }
func (m *PubMapper) RelationKeys() []string                { return m.inner().RelationKeys() }
func (m *PubMapper) Relation(key string) (*Relation, bool) { return m.inner().Relation(key) }
func (m *PubMapper) AllowedKeys() []string                 { return m.inner().AllowedKeys() }

func (m *PubMapper) Query() Query { return m.inner().Query().withMapper(m) }

func (m *PubMapper) SelectItems(ctx context.Context, sess *Session, q Query, keys []string) ([]Item, error) {
	return m.inner().SelectItems(ctx, sess, q, keys)
}

func (m *PubMapper) SelectFirstItem(ctx context.Context, sess *Session, q Query, keys []string) (Item, error) {
	return selectFirst(ctx, sess, q, keys, m.SelectItems)
}

func (m *PubMapper) CountItems(ctx context.Context, sess *Session, q Query) (int64, error) {
	return m.inner().CountItems(ctx, sess, q)
}

// InsertItem creates the private admin item and its front skeleton,
// which holds only the id, the state and the common keys.
func (m *PubMapper) InsertItem(ctx context.Context, sess *Session, values Item, keys []string) (Item, error) {
	if err := m.requireAdmin("insert into"); err != nil {
		return nil, err
	}
	keys = appendKey(writeKeys(values, keys), stateKey)
	values = cloneItem(values)
	values[stateKey] = StatePrivate

	item, err := m.admin.InsertItem(ctx, sess, values, keys)
	if err != nil {
		return nil, err
	}

	skeleton := sliceOf(values, intersect(keys, m.commonKeys))
	skeleton["id"] = item["id"]
	skeleton[stateKey] = StatePrivate
	if _, err := m.front.(rowWriter).insertRow(ctx, sess, skeleton); err != nil {
		return nil, fmt.Errorf("failed to create front skeleton: %w", err)
	}
	return item, nil
}

func (m *PubMapper) UpdateItem(ctx context.Context, sess *Session, q Query, id int64, values Item, keys []string) (Item, error) {
	return m.inner().UpdateItem(ctx, sess, q, id, values, keys)
}

// DeleteItem deletes the admin item and its front copy.
func (m *PubMapper) DeleteItem(ctx context.Context, sess *Session, q Query, id int64) error {
	if err := m.requireAdmin("delete from"); err != nil {
		return err
	}
	if err := m.admin.DeleteItem(ctx, sess, q, id); err != nil {
		return err
	}
	return m.front.(rowWriter).deleteByID(ctx, sess, id)
}

// Publish marks a private admin item public and copies every column and
// relation to front.
func (m *PubMapper) Publish(ctx context.Context, sess *Session, q Query, id int64) error {
	if err := m.requireAdmin("publish"); err != nil {
		return err
	}
	item, err := m.admin.SelectFirstItem(ctx, sess, q.unpaged().ID(id), nil)
	if err != nil {
		return err
	}
	if item == nil {
		return &ItemNotFoundError{ID: id}
	}
	if item[stateKey] != StatePrivate {
		return fmt.Errorf("%w: cannot publish %s %d in state %v", ErrStateViolation, m.Name(), id, item[stateKey])
	}

	state := Item{stateKey: StatePublic}
	if err := m.admin.(rowWriter).updateByID(ctx, sess, id, state, []string{stateKey}); err != nil {
		return err
	}
	item[stateKey] = StatePublic
	keys := slices.DeleteFunc(m.admin.AllowedKeys(), func(k string) bool { return k == "id" })
	if err := m.front.(rowWriter).updateByID(ctx, sess, id, item, keys); err != nil {
		return fmt.Errorf("failed to copy %s %d to front: %w", m.Name(), id, err)
	}
	return nil
}

// CreateVersion is forwarded to the inner mapper of this side.
func (m *PubMapper) CreateVersion(ctx context.Context, sess *Session, id int64) error {
	v, ok := m.inner().(Versioner)
	if !ok {
		return ormErrorf("%s has no language versions", m.Name())
	}
	return v.CreateVersion(ctx, sess, id)
}

func (m *PubMapper) AbsentQuery() Query {
	if v, ok := m.inner().(Versioner); ok {
		return v.AbsentQuery().withMapper(m)
	}
	return m.Query().Where(In("id"))
}
