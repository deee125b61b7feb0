package orm

import (
	"context"
	"slices"
	"sort"
)

// Query is an immutable selection over a mapper's table. Every combinator
// returns a new Query; terminals execute through the owning mapper.
type Query struct {
	mapper  Mapper
	where   []Expr
	order   []OrderTerm
	limit   int
	offset  int
	columns []string
}

func newQuery(m Mapper) Query {
	return Query{mapper: m, limit: -1, columns: []string{"id"}}
}

// Mapper returns the mapper the query executes through.
func (q Query) Mapper() Mapper { return q.mapper }

func (q Query) withMapper(m Mapper) Query {
	q.mapper = m
	return q
}

// ID restricts the query to the given ids.
func (q Query) ID(ids ...int64) Query {
	return q.Where(InIDs("id", ids))
}

// FilterBy adds one equality predicate per entry, in key order.
func (q Query) FilterBy(eq map[string]any) Query {
	keys := make([]string, 0, len(eq))
	for k := range eq {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	exprs := make([]Expr, len(keys))
	for i, k := range keys {
		exprs[i] = Eq(k, eq[k])
	}
	return q.Where(exprs...)
}

// Where adds predicates joined with AND.
func (q Query) Where(exprs ...Expr) Query {
	q.where = append(slices.Clone(q.where), exprs...)
	return q
}

// OrderBy appends order terms.
func (q Query) OrderBy(terms ...OrderTerm) Query {
	q.order = append(slices.Clone(q.order), terms...)
	return q
}

func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

func (q Query) Offset(n int) Query {
	q.offset = n
	return q
}

// WithOnlyColumns replaces the projection.
func (q Query) WithOnlyColumns(cols ...string) Query {
	q.columns = slices.Clone(cols)
	return q
}

func (q Query) unpaged() Query {
	q.order = nil
	q.limit = -1
	q.offset = 0
	return q
}

func (q Query) selectStmt(t *Table) *SelectStmt {
	return &SelectStmt{
		From:    t,
		Columns: q.columns,
		Where:   q.where,
		Order:   q.order,
		Limit:   q.limit,
		Offset:  q.offset,
	}
}

func (q Query) countStmt(t *Table) *SelectStmt {
	return &SelectStmt{From: t, Count: true, Where: q.where}
}

func (q Query) SelectItems(ctx context.Context, sess *Session, keys []string) ([]Item, error) {
	return q.mapper.SelectItems(ctx, sess, q, keys)
}

func (q Query) SelectFirstItem(ctx context.Context, sess *Session, keys []string) (Item, error) {
	return q.mapper.SelectFirstItem(ctx, sess, q, keys)
}

func (q Query) InsertItem(ctx context.Context, sess *Session, values Item, keys []string) (Item, error) {
	return q.mapper.InsertItem(ctx, sess, values, keys)
}

func (q Query) UpdateItem(ctx context.Context, sess *Session, id int64, values Item, keys []string) (Item, error) {
	return q.mapper.UpdateItem(ctx, sess, q, id, values, keys)
}

func (q Query) DeleteItem(ctx context.Context, sess *Session, id int64) error {
	return q.mapper.DeleteItem(ctx, sess, q, id)
}

func (q Query) CountItems(ctx context.Context, sess *Session) (int64, error) {
	return q.mapper.CountItems(ctx, sess, q)
}

// Publish publishes an item when the mapper supports publication.
func (q Query) Publish(ctx context.Context, sess *Session, id int64) error {
	p, ok := q.mapper.(Publisher)
	if !ok {
		return ErrPublication
	}
	return p.Publish(ctx, sess, q, id)
}
