package orm

import (
	"context"
	"fmt"
)

const (
	relLocal  = "local_id"
	relRemote = "remote_id"
	relOrder  = "order"
)

// Relation is a many-to-many association stored in its own side table.
type Relation struct {
	Key     string
	Local   *Table
	Remote  *Table
	Ordered bool
	Side    *Table
}

// NewRelation defines the side table <Local>_<key>. Both ends must live
// in the same database.
func NewRelation(key string, local, remote *Table, ordered bool) (*Relation, error) {
	if local.DBID != remote.DBID {
		return nil, ormErrorf("relation %s.%s: remote table %s is in another database", local.Name, key, remote)
	}
	cols := []Column{Int(relLocal), Int(relRemote)}
	if ordered {
		c := Int(relOrder)
		c.Nullable = true
		cols = append(cols, c)
	}
	side := &Table{
		Name:       local.Name + "_" + key,
		DBID:       local.DBID,
		Columns:    cols,
		PrimaryKey: []string{relLocal, relRemote},
		ForeignKeys: []ForeignKey{
			{Columns: []string{relLocal}, RefTable: local.Name, RefColumns: []string{"id"}},
			{Columns: []string{relRemote}, RefTable: remote.Name, RefColumns: []string{"id"}},
		},
	}
	return &Relation{Key: key, Local: local, Remote: remote, Ordered: ordered, Side: side}, nil
}

// Load returns remote ids per local id with one query.
func (r *Relation) Load(ctx context.Context, sess *Session, localIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(localIDs))
	if len(localIDs) == 0 {
		return out, nil
	}
	stmt := &SelectStmt{
		From:    r.Side,
		Columns: []string{relLocal, relRemote},
		Where:   []Expr{InIDs(relLocal, localIDs)},
		Limit:   -1,
	}
	if r.Ordered {
		stmt.Order = []OrderTerm{Asc(relLocal), Asc(relOrder)}
	} else {
		stmt.Order = []OrderTerm{Asc(relLocal), Asc(relRemote)}
	}
	res, err := sess.Execute(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to load relation %s: %w", r.Key, err)
	}
	for _, row := range res.Rows {
		local, _ := row[0].(int64)
		remote, _ := row[1].(int64)
		out[local] = append(out[local], remote)
	}
	return out, nil
}

// Store replaces every association of localID with remoteIDs.
// Ordered relations number the rows from 1 in list order.
func (r *Relation) Store(ctx context.Context, sess *Session, localID int64, remoteIDs []int64) error {
	if err := r.Delete(ctx, sess, localID); err != nil {
		return err
	}
	for i, remote := range remoteIDs {
		values := map[string]any{relLocal: localID, relRemote: remote}
		if r.Ordered {
			values[relOrder] = int64(i + 1)
		}
		if _, err := sess.Execute(ctx, &InsertStmt{Into: r.Side, Values: values}); err != nil {
			return fmt.Errorf("failed to store relation %s: %w", r.Key, err)
		}
	}
	return nil
}

// Delete removes every association of localID.
func (r *Relation) Delete(ctx context.Context, sess *Session, localID int64) error {
	stmt := &DeleteStmt{From: r.Side, Where: []Expr{Eq(relLocal, localID)}}
	if _, err := sess.Execute(ctx, stmt); err != nil {
		return fmt.Errorf("failed to delete relation %s: %w", r.Key, err)
	}
	return nil
}

// toIDs converts a relation value into ids. Duplicates are dropped.
func toIDs(v any) ([]int64, error) {
	var raw []any
	switch vals := v.(type) {
	case nil:
		return nil, nil
	case []int64:
		raw = make([]any, len(vals))
		for i, id := range vals {
			raw[i] = id
		}
	case []any:
		raw = vals
	default:
		return nil, ormErrorf("relation value must be a list of ids, got %T", v)
	}
	ids := make([]int64, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, x := range raw {
		id, err := toInt64(x)
		if err != nil {
			return nil, ormErrorf("relation value: %v", err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
