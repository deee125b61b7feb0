package orm

import (
	"context"
	"fmt"
)

// MarkDeletedMapper replaces row deletion with a deleted state written to
// every physical row of the entity, in every database and language.
type MarkDeletedMapper struct {
	inner Mapper
	rows  []*BaseMapper
}

// NewMarkDeletedMapper wraps inner. rows lists every base mapper of the entity.
func NewMarkDeletedMapper(inner Mapper, rows []*BaseMapper) *MarkDeletedMapper {
	return &MarkDeletedMapper{inner: inner, rows: rows}
}

func (m *MarkDeletedMapper) Name() string                          { return m.inner.Name() }
func (m *MarkDeletedMapper) DBID() string                          { return m.inner.DBID() }
func (m *MarkDeletedMapper) Lang() string                          { return m.inner.Lang() }
func (m *MarkDeletedMapper) Table() *Table                         { return m.inner.Table() }
func (m *MarkDeletedMapper) ColumnKeys() []string                  { return m.inner.ColumnKeys() }
func (m *MarkDeletedMapper) RelationKeys() []string                { return m.inner.RelationKeys() }
func (m *MarkDeletedMapper) Relation(key string) (*Relation, bool) { return m.inner.Relation(key) }
func (m *MarkDeletedMapper) AllowedKeys() []string                 { return m.inner.AllowedKeys() }

// Query excludes deleted rows.
func (m *MarkDeletedMapper) Query() Query {
	return m.inner.Query().Where(Ne(stateKey, StateDeleted)).withMapper(m)
}

func (m *MarkDeletedMapper) SelectItems(ctx context.Context, sess *Session, q Query, keys []string) ([]Item, error) {
	return m.inner.SelectItems(ctx, sess, q, keys)
}

func (m *MarkDeletedMapper) SelectFirstItem(ctx context.Context, sess *Session, q Query, keys []string) (Item, error) {
	return selectFirst(ctx, sess, q, keys, m.SelectItems)
}

func (m *MarkDeletedMapper) CountItems(ctx context.Context, sess *Session, q Query) (int64, error) {
	return m.inner.CountItems(ctx, sess, q)
}

func (m *MarkDeletedMapper) InsertItem(ctx context.Context, sess *Session, values Item, keys []string) (Item, error) {
	return m.inner.InsertItem(ctx, sess, values, keys)
}

func (m *MarkDeletedMapper) UpdateItem(ctx context.Context, sess *Session, q Query, id int64, values Item, keys []string) (Item, error) {
	return m.inner.UpdateItem(ctx, sess, q, id, values, keys)
}

// DeleteItem marks every row of id deleted. Front publication views
// still refuse deletion.
func (m *MarkDeletedMapper) DeleteItem(ctx context.Context, sess *Session, q Query, id int64) error {
	if p, ok := m.inner.(*PubMapper); ok {
		if err := p.requireAdmin("delete from"); err != nil {
			return err
		}
	}
	if err := checkExists(ctx, sess, q, id); err != nil {
		return err
	}
	deleted := Item{stateKey: StateDeleted}
	for _, row := range m.rows {
		if err := row.updateByID(ctx, sess, id, deleted, []string{stateKey}); err != nil {
			return fmt.Errorf("failed to mark %s %d deleted: %w", m.Name(), id, err)
		}
	}
	return nil
}

func (m *MarkDeletedMapper) Publish(ctx context.Context, sess *Session, q Query, id int64) error {
	p, ok := m.inner.(Publisher)
	if !ok {
		return ErrPublication
	}
	return p.Publish(ctx, sess, q, id)
}

func (m *MarkDeletedMapper) CreateVersion(ctx context.Context, sess *Session, id int64) error {
	v, ok := m.inner.(Versioner)
	if !ok {
		return ormErrorf("%s has no language versions", m.Name())
	}
	return v.CreateVersion(ctx, sess, id)
}

func (m *MarkDeletedMapper) AbsentQuery() Query {
	if v, ok := m.inner.(Versioner); ok {
		return v.AbsentQuery().Where(Ne(stateKey, StateDeleted)).withMapper(m)
	}
	return m.Query().Where(In("id"))
}
