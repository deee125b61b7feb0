package orm

import (
	"fmt"
	"slices"
	"strings"
)

// Statement is one SQL statement routed to the engine bound to its table's database.
type Statement interface {
	Table() *Table
	Build(d Dialect) (string, []any)
}

// OrderTerm orders by one column.
type OrderTerm struct {
	Column string
	Desc   bool
}

func Asc(column string) OrderTerm  { return OrderTerm{Column: column} }
func Desc(column string) OrderTerm { return OrderTerm{Column: column, Desc: true} }

// SelectStmt selects columns of one table. With Count set it selects
// COUNT of the first primary key column and ignores ordering and paging.
type SelectStmt struct {
	From    *Table
	Columns []string
	Count   bool
	Where   []Expr
	Order   []OrderTerm
	Limit   int // negative means no limit
	Offset  int
}

func (s *SelectStmt) Table() *Table { return s.From }

func (s *SelectStmt) Build(d Dialect) (string, []any) {
	b := &sqlBuilder{d: d}
	b.write("SELECT ")
	if s.Count {
		b.write("COUNT(")
		b.ident(s.From.PrimaryKey[0])
		b.write(")")
	} else {
		for i, c := range s.Columns {
			if i > 0 {
				b.write(", ")
			}
			b.ident(c)
		}
	}
	b.write(" FROM ")
	b.ident(s.From.Name)
	b.where(s.Where)
	if s.Count {
		return b.String(), b.args
	}
	for i, o := range s.Order {
		if i == 0 {
			b.write(" ORDER BY ")
		} else {
			b.write(", ")
		}
		b.ident(o.Column)
		if o.Desc {
			b.write(" DESC")
		}
	}
	d.writePaging(b, s.Limit, s.Offset, len(s.Order) > 0)
	return b.String(), b.args
}

// resultColumns describes the output columns for value normalization.
func (s *SelectStmt) resultColumns() []Column {
	if s.Count {
		return []Column{{Name: "count", Kind: KindInt}}
	}
	cols := make([]Column, len(s.Columns))
	for i, name := range s.Columns {
		c, ok := s.From.Column(name)
		if !ok {
			c = Column{Name: name, Kind: KindText}
		}
		cols[i] = c
	}
	return cols
}

// InsertStmt inserts one row. ReturnID asks for the generated primary key.
type InsertStmt struct {
	Into     *Table
	Values   map[string]any
	ReturnID bool
}

func (s *InsertStmt) Table() *Table { return s.Into }

func (s *InsertStmt) Build(d Dialect) (string, []any) {
	b := &sqlBuilder{d: d}
	var cols []string
	for _, c := range s.Into.Columns {
		if _, ok := s.Values[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	pk := s.Into.PrimaryKey[0]
	_, explicitID := s.Values[pk]
	identityInsert := d == DialectMSSQL && s.Into.AutoIncrement && explicitID
	if identityInsert {
		b.write("SET IDENTITY_INSERT ")
		b.ident(s.Into.Name)
		b.write(" ON; ")
	}
	b.write("INSERT INTO ")
	b.ident(s.Into.Name)
	if len(cols) > 0 {
		b.write(" (")
		for i, c := range cols {
			if i > 0 {
				b.write(", ")
			}
			b.ident(c)
		}
		b.write(")")
	}
	if s.ReturnID && d == DialectMSSQL {
		b.write(" OUTPUT INSERTED.")
		b.ident(pk)
	}
	switch {
	case len(cols) > 0:
		b.write(" VALUES (")
		for i, c := range cols {
			if i > 0 {
				b.write(", ")
			}
			b.bind(s.Values[c])
		}
		b.write(")")
	case d == DialectMySQL:
		b.write(" () VALUES ()")
	default:
		b.write(" DEFAULT VALUES")
	}
	if s.ReturnID && d == DialectPostgres {
		b.write(" RETURNING ")
		b.ident(pk)
	}
	if identityInsert {
		b.write("; SET IDENTITY_INSERT ")
		b.ident(s.Into.Name)
		b.write(" OFF")
	}
	return b.String(), b.args
}

// SyncSequenceStmt moves a PostgreSQL serial sequence past the largest
// stored id. Inserts with an explicit id do not advance the sequence.
type SyncSequenceStmt struct {
	Target *Table
}

func (s *SyncSequenceStmt) Table() *Table { return s.Target }

func (s *SyncSequenceStmt) Build(d Dialect) (string, []any) {
	b := &sqlBuilder{d: d}
	pk := s.Target.PrimaryKey[0]
	b.write("SELECT setval(pg_get_serial_sequence(")
	b.bind(d.Quote(s.Target.Name))
	b.write(", ")
	b.bind(pk)
	b.write("), GREATEST((SELECT MAX(")
	b.ident(pk)
	b.write(") FROM ")
	b.ident(s.Target.Name)
	b.write("), 1))")
	return b.String(), b.args
}

// UpdateStmt sets column values on matching rows.
type UpdateStmt struct {
	Target *Table
	Values map[string]any
	Where  []Expr
}

func (s *UpdateStmt) Table() *Table { return s.Target }

func (s *UpdateStmt) Build(d Dialect) (string, []any) {
	b := &sqlBuilder{d: d}
	b.write("UPDATE ")
	b.ident(s.Target.Name)
	b.write(" SET ")
	n := 0
	for _, c := range s.Target.Columns {
		v, ok := s.Values[c.Name]
		if !ok {
			continue
		}
		if n > 0 {
			b.write(", ")
		}
		b.ident(c.Name)
		b.write(" = ")
		b.bind(v)
		n++
	}
	b.where(s.Where)
	return b.String(), b.args
}

// DeleteStmt deletes matching rows.
type DeleteStmt struct {
	From  *Table
	Where []Expr
}

func (s *DeleteStmt) Table() *Table { return s.From }

func (s *DeleteStmt) Build(d Dialect) (string, []any) {
	b := &sqlBuilder{d: d}
	b.write("DELETE FROM ")
	b.ident(s.From.Name)
	b.where(s.Where)
	return b.String(), b.args
}

// CreateTableStmt creates a table unless it already exists.
type CreateTableStmt struct {
	Target *Table
}

func (s *CreateTableStmt) Table() *Table { return s.Target }

func (s *CreateTableStmt) Build(d Dialect) (string, []any) {
	t := s.Target
	b := &sqlBuilder{d: d}
	if d == DialectMSSQL {
		name := strings.ReplaceAll(t.Name, "'", "''")
		b.write(fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE ", name))
	} else {
		b.write("CREATE TABLE IF NOT EXISTS ")
	}
	b.ident(t.Name)
	b.write(" (")
	autoPK := t.AutoIncrement && len(t.PrimaryKey) == 1
	for i, c := range t.Columns {
		if i > 0 {
			b.write(", ")
		}
		if autoPK && c.Name == t.PrimaryKey[0] {
			b.write(d.autoIncrementColumn(c.Name))
			continue
		}
		b.ident(c.Name)
		b.write(" ", d.columnType(c))
		if !c.Nullable || slices.Contains(t.PrimaryKey, c.Name) {
			b.write(" NOT NULL")
		}
	}
	if !autoPK && len(t.PrimaryKey) > 0 {
		b.write(", PRIMARY KEY (")
		b.identList(t.PrimaryKey)
		b.write(")")
	}
	for _, fk := range t.ForeignKeys {
		b.write(", FOREIGN KEY (")
		b.identList(fk.Columns)
		b.write(") REFERENCES ")
		b.ident(fk.RefTable)
		b.write(" (")
		b.identList(fk.RefColumns)
		b.write(") ON DELETE CASCADE")
	}
	b.write(")")
	return b.String(), nil
}

func (b *sqlBuilder) identList(names []string) {
	for i, n := range names {
		if i > 0 {
			b.write(", ")
		}
		b.ident(n)
	}
}
