package orm

import (
	"context"
	"fmt"
	"slices"
)

// Item is one row as a key -> native value map. Relation keys hold []int64.
type Item map[string]any

// ID returns the item's id.
func (it Item) ID() (int64, bool) {
	id, err := toInt64(it["id"])
	if it["id"] == nil || err != nil {
		return 0, false
	}
	return id, true
}

// State values stored in the state column.
const (
	StateAbsent  = "absent"
	StateNormal  = "normal"
	StatePrivate = "private"
	StatePublic  = "public"
	StateDeleted = "deleted"
)

const stateKey = "state"

// Mapper performs CRUD on one logical entity as seen from one database
// and language. Keys arguments select which item keys take part; nil
// means every allowed key (for reads) or every allowed key present in
// values (for writes).
type Mapper interface {
	Name() string
	DBID() string
	Lang() string
	Table() *Table
	ColumnKeys() []string
	RelationKeys() []string
	Relation(key string) (*Relation, bool)
	AllowedKeys() []string

	// Query returns the default selection of visible rows.
	Query() Query

	SelectItems(ctx context.Context, sess *Session, q Query, keys []string) ([]Item, error)
	SelectFirstItem(ctx context.Context, sess *Session, q Query, keys []string) (Item, error)
	InsertItem(ctx context.Context, sess *Session, values Item, keys []string) (Item, error)
	UpdateItem(ctx context.Context, sess *Session, q Query, id int64, values Item, keys []string) (Item, error)
	DeleteItem(ctx context.Context, sess *Session, q Query, id int64) error
	CountItems(ctx context.Context, sess *Session, q Query) (int64, error)
}

// Publisher is implemented by mappers with a publication workflow.
type Publisher interface {
	Publish(ctx context.Context, sess *Session, q Query, id int64) error
}

// Versioner is implemented by mappers with per-language versions.
type Versioner interface {
	CreateVersion(ctx context.Context, sess *Session, id int64) error
	AbsentQuery() Query
}

// rowWriter writes rows by id without existence checks or defaults.
// Decorators use it on the mappers they wrap.
type rowWriter interface {
	insertRow(ctx context.Context, sess *Session, row Item) (int64, error)
	updateByID(ctx context.Context, sess *Session, id int64, values Item, keys []string) error
	deleteByID(ctx context.Context, sess *Session, id int64) error
}

// BaseMapper maps an entity onto a single table.
type BaseMapper struct {
	name      string
	dbID      string
	lang      string
	table     *Table
	columns   []string
	relations []*Relation
}

// NewBaseMapper creates a mapper over table. The table must have an id column.
func NewBaseMapper(name, lang string, table *Table, relations []*Relation) (*BaseMapper, error) {
	if _, ok := table.Column("id"); !ok {
		return nil, ormErrorf("table %s has no id column", table)
	}
	m := &BaseMapper{
		name:      name,
		dbID:      table.DBID,
		lang:      lang,
		table:     table,
		columns:   table.ColumnNames(),
		relations: relations,
	}
	for _, r := range relations {
		if slices.Contains(m.columns, r.Key) {
			return nil, ormErrorf("%s: relation key %s collides with a column", name, r.Key)
		}
	}
	return m, nil
}

func (m *BaseMapper) Name() string          { return m.name }
func (m *BaseMapper) DBID() string          { return m.dbID }
func (m *BaseMapper) Lang() string          { return m.lang }
func (m *BaseMapper) Table() *Table         { return m.table }
func (m *BaseMapper) ColumnKeys() []string  { return slices.Clone(m.columns) }
func (m *BaseMapper) Query() Query          { return newQuery(m) }
func (m *BaseMapper) AllowedKeys() []string { return append(m.ColumnKeys(), m.RelationKeys()...) }
func (m *BaseMapper) RelationKeys() []string {
	keys := make([]string, len(m.relations))
	for i, r := range m.relations {
		keys[i] = r.Key
	}
	return keys
}

func (m *BaseMapper) Relation(key string) (*Relation, bool) {
	for _, r := range m.relations {
		if r.Key == key {
			return r, true
		}
	}
	return nil, false
}

// split partitions keys into column and relation keys, dropping unknown ones.
func (m *BaseMapper) split(keys []string) (cols, rels []string) {
	for _, k := range keys {
		switch {
		case slices.Contains(m.columns, k):
			cols = append(cols, k)
		case m.hasRelation(k):
			rels = append(rels, k)
		}
	}
	return cols, rels
}

func (m *BaseMapper) hasRelation(key string) bool {
	_, ok := m.Relation(key)
	return ok
}

// SelectItems loads matching ids first, then hydrates columns and relations.
// Items come back in the order of the id selection.
func (m *BaseMapper) SelectItems(ctx context.Context, sess *Session, q Query, keys []string) ([]Item, error) {
	ids, err := m.selectIDs(ctx, sess, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Item{}, nil
	}
	if keys == nil {
		keys = m.AllowedKeys()
	}
	cols, rels := m.split(keys)
	if !slices.Contains(cols, "id") {
		cols = append([]string{"id"}, cols...)
	}

	stmt := &SelectStmt{From: m.table, Columns: cols, Where: []Expr{InIDs("id", ids)}, Limit: -1}
	res, err := sess.Execute(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", m.name, err)
	}
	idIdx := slices.Index(cols, "id")
	byID := make(map[int64]Item, len(res.Rows))
	for _, row := range res.Rows {
		it := make(Item, len(cols)+len(rels))
		for i, c := range cols {
			it[c] = row[i]
		}
		byID[row[idIdx].(int64)] = it
	}

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			items = append(items, it)
		}
	}
	for _, key := range rels {
		rel, _ := m.Relation(key)
		loaded, err := rel.Load(ctx, sess, ids)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			remote := loaded[it["id"].(int64)]
			if remote == nil {
				remote = []int64{}
			}
			it[key] = remote
		}
	}
	return items, nil
}

func (m *BaseMapper) selectIDs(ctx context.Context, sess *Session, q Query) ([]int64, error) {
	res, err := sess.Execute(ctx, q.WithOnlyColumns("id").selectStmt(m.table))
	if err != nil {
		return nil, fmt.Errorf("failed to select %s ids: %w", m.name, err)
	}
	ids := make([]int64, 0, len(res.Rows))
	seen := make(map[int64]struct{}, len(res.Rows))
	for _, row := range res.Rows {
		id := row[0].(int64)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *BaseMapper) SelectFirstItem(ctx context.Context, sess *Session, q Query, keys []string) (Item, error) {
	return selectFirst(ctx, sess, q, keys, m.SelectItems)
}

type selectFunc func(ctx context.Context, sess *Session, q Query, keys []string) ([]Item, error)

func selectFirst(ctx context.Context, sess *Session, q Query, keys []string, sel selectFunc) (Item, error) {
	items, err := sel(ctx, sess, q.Limit(1), keys)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// InsertItem applies column defaults, inserts the row and stores relations.
// When values carry no id the generated one is returned in the item.
func (m *BaseMapper) InsertItem(ctx context.Context, sess *Session, values Item, keys []string) (Item, error) {
	keys = writeKeys(values, keys)
	cols, rels := m.split(keys)

	row := make(Item, len(m.columns))
	for _, c := range cols {
		if v, ok := values[c]; ok {
			row[c] = v
		}
	}
	if row["id"] == nil {
		delete(row, "id")
	}
	for _, c := range m.table.Columns {
		if _, ok := row[c.Name]; ok || c.Name == "id" {
			continue
		}
		if v, ok := c.defaultValue(); ok {
			row[c.Name] = v
		}
	}

	id, err := m.insertRow(ctx, sess, row)
	if err != nil {
		return nil, err
	}
	item := row
	item["id"] = id
	for _, key := range rels {
		ids, err := m.storeRelation(ctx, sess, key, id, values[key])
		if err != nil {
			return nil, err
		}
		item[key] = ids
	}
	return item, nil
}

func (m *BaseMapper) insertRow(ctx context.Context, sess *Session, row Item) (int64, error) {
	id, hasID := row.ID()
	stmt := &InsertStmt{Into: m.table, Values: row, ReturnID: !hasID}
	res, err := sess.Execute(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", m.name, err)
	}
	if !hasID {
		return res.LastInsertID, nil
	}
	if m.table.AutoIncrement {
		if e, err := sess.Engine(m.table.DBID); err == nil && e.Dialect() == DialectPostgres {
			if _, err := sess.Execute(ctx, &SyncSequenceStmt{Target: m.table}); err != nil {
				return 0, fmt.Errorf("failed to sync %s id sequence: %w", m.name, err)
			}
		}
	}
	return id, nil
}

func (m *BaseMapper) storeRelation(ctx context.Context, sess *Session, key string, id int64, value any) ([]int64, error) {
	rel, _ := m.Relation(key)
	ids, err := toIDs(value)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", m.name, key, err)
	}
	if err := rel.Store(ctx, sess, id, ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// UpdateItem requires the id to be visible through q, then writes the
// selected keys. The id itself is never changed.
func (m *BaseMapper) UpdateItem(ctx context.Context, sess *Session, q Query, id int64, values Item, keys []string) (Item, error) {
	if err := checkExists(ctx, sess, q, id); err != nil {
		return nil, err
	}
	if err := m.updateByID(ctx, sess, id, values, keys); err != nil {
		return nil, err
	}
	return updatedItem(id, values, keys), nil
}

func (m *BaseMapper) updateByID(ctx context.Context, sess *Session, id int64, values Item, keys []string) error {
	keys = writeKeys(values, keys)
	cols, rels := m.split(keys)
	set := make(map[string]any, len(cols))
	for _, c := range cols {
		if c == "id" {
			continue
		}
		set[c] = values[c]
	}
	if len(set) > 0 {
		stmt := &UpdateStmt{Target: m.table, Values: set, Where: []Expr{Eq("id", id)}}
		if _, err := sess.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("failed to update %s: %w", m.name, err)
		}
	}
	for _, key := range rels {
		if _, err := m.storeRelation(ctx, sess, key, id, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteItem requires the id to be visible through q, then removes the
// relation rows and the row itself.
func (m *BaseMapper) DeleteItem(ctx context.Context, sess *Session, q Query, id int64) error {
	if err := checkExists(ctx, sess, q, id); err != nil {
		return err
	}
	return m.deleteByID(ctx, sess, id)
}

func (m *BaseMapper) deleteByID(ctx context.Context, sess *Session, id int64) error {
	for _, rel := range m.relations {
		if err := rel.Delete(ctx, sess, id); err != nil {
			return err
		}
	}
	stmt := &DeleteStmt{From: m.table, Where: []Expr{Eq("id", id)}}
	if _, err := sess.Execute(ctx, stmt); err != nil {
		return fmt.Errorf("failed to delete %s: %w", m.name, err)
	}
	return nil
}

// CountItems counts matching rows, ignoring order and paging.
func (m *BaseMapper) CountItems(ctx context.Context, sess *Session, q Query) (int64, error) {
	res, err := sess.Execute(ctx, q.countStmt(m.table))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", m.name, err)
	}
	if len(res.Rows) != 1 {
		return 0, ormErrorf("count of %s returned %d rows", m.name, len(res.Rows))
	}
	n, _ := res.Rows[0][0].(int64)
	return n, nil
}

// checkExists requires exactly one row with id among the rows selected by q.
func checkExists(ctx context.Context, sess *Session, q Query, id int64) error {
	items, err := q.unpaged().ID(id).Limit(2).SelectItems(ctx, sess, []string{"id"})
	if err != nil {
		return err
	}
	switch len(items) {
	case 0:
		return &ItemNotFoundError{ID: id}
	case 1:
		return nil
	}
	return ormErrorf("id %d matched %d rows", id, len(items))
}

// IDTaken reports whether the table behind m holds a row with id in any
// state, including rows hidden by the mapper's default query.
func IDTaken(ctx context.Context, sess *Session, m Mapper, id int64) (bool, error) {
	stmt := &SelectStmt{From: m.Table(), Count: true, Where: []Expr{Eq("id", id)}}
	res, err := sess.Execute(ctx, stmt)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s %d: %w", m.Name(), id, err)
	}
	if len(res.Rows) != 1 {
		return false, ormErrorf("count of %s returned %d rows", m.Name(), len(res.Rows))
	}
	n, _ := res.Rows[0][0].(int64)
	return n > 0, nil
}

// writeKeys resolves nil keys to the keys present in values.
func writeKeys(values Item, keys []string) []string {
	if keys != nil {
		return keys
	}
	out := make([]string, 0, len(values))
	for k := range values {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func updatedItem(id int64, values Item, keys []string) Item {
	keys = writeKeys(values, keys)
	item := make(Item, len(keys)+1)
	for _, k := range keys {
		if v, ok := values[k]; ok {
			item[k] = v
		}
	}
	item["id"] = id
	return item
}

func sliceOf(values Item, keys []string) Item {
	out := make(Item, len(keys))
	for _, k := range keys {
		if v, ok := values[k]; ok {
			out[k] = v
		}
	}
	return out
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		if slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}
