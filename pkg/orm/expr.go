package orm

import "strings"

type sqlBuilder struct {
	d    Dialect
	buf  strings.Builder
	args []any
}

func (b *sqlBuilder) write(parts ...string) {
	for _, p := range parts {
		b.buf.WriteString(p)
	}
}

func (b *sqlBuilder) ident(name string) {
	b.buf.WriteString(b.d.Quote(name))
}

func (b *sqlBuilder) bind(v any) {
	b.args = append(b.args, b.d.BindValue(v))
	b.buf.WriteString(b.d.Placeholder(len(b.args)))
}

func (b *sqlBuilder) where(exprs []Expr) {
	if len(exprs) == 0 {
		return
	}
	b.write(" WHERE ")
	And(exprs...).build(b)
}

func (b *sqlBuilder) String() string { return b.buf.String() }

// Expr is a boolean SQL predicate over the columns of one table.
type Expr interface {
	build(b *sqlBuilder)
}

type cmpExpr struct {
	column string
	op     string
	value  any
}

func (e cmpExpr) build(b *sqlBuilder) {
	if e.value == nil {
		switch e.op {
		case "=":
			IsNull(e.column).build(b)
			return
		case "<>":
			Not(IsNull(e.column)).build(b)
			return
		}
	}
	b.ident(e.column)
	b.write(" ", e.op, " ")
	b.bind(e.value)
}

// Eq matches column = value. A nil value matches NULL.
func Eq(column string, value any) Expr { return cmpExpr{column, "=", value} }

// Ne matches column <> value. A nil value matches NOT NULL.
func Ne(column string, value any) Expr { return cmpExpr{column, "<>", value} }

func Gt(column string, value any) Expr { return cmpExpr{column, ">", value} }
func Ge(column string, value any) Expr { return cmpExpr{column, ">=", value} }
func Lt(column string, value any) Expr { return cmpExpr{column, "<", value} }
func Le(column string, value any) Expr { return cmpExpr{column, "<=", value} }

type inExpr struct {
	column string
	values []any
}

func (e inExpr) build(b *sqlBuilder) {
	if len(e.values) == 0 {
		b.write("1=0")
		return
	}
	b.ident(e.column)
	b.write(" IN (")
	for i, v := range e.values {
		if i > 0 {
			b.write(", ")
		}
		b.bind(v)
	}
	b.write(")")
}

// In matches any of values. An empty list matches nothing.
func In(column string, values ...any) Expr {
	return inExpr{column: column, values: append([]any(nil), values...)}
}

// InIDs is In over int64 identifiers.
func InIDs(column string, ids []int64) Expr {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return inExpr{column: column, values: values}
}

type containsExpr struct {
	column string
	substr string
}

func (e containsExpr) build(b *sqlBuilder) {
	b.ident(e.column)
	b.write(" LIKE ")
	b.bind("%" + b.d.likeEscape(e.substr) + "%")
	b.write(" ESCAPE '!'")
}

// Contains matches string columns holding substr.
func Contains(column, substr string) Expr { return containsExpr{column, substr} }

type nullExpr struct{ column string }

func (e nullExpr) build(b *sqlBuilder) {
	b.ident(e.column)
	b.write(" IS NULL")
}

func IsNull(column string) Expr { return nullExpr{column} }

type boolExpr struct {
	op    string
	exprs []Expr
}

func (e boolExpr) build(b *sqlBuilder) {
	if len(e.exprs) == 0 {
		if e.op == " AND " {
			b.write("1=1")
		} else {
			b.write("1=0")
		}
		return
	}
	if len(e.exprs) == 1 {
		e.exprs[0].build(b)
		return
	}
	b.write("(")
	for i, x := range e.exprs {
		if i > 0 {
			b.write(e.op)
		}
		x.build(b)
	}
	b.write(")")
}

func And(exprs ...Expr) Expr { return boolExpr{" AND ", append([]Expr(nil), exprs...)} }
func Or(exprs ...Expr) Expr  { return boolExpr{" OR ", append([]Expr(nil), exprs...)} }

type notExpr struct{ inner Expr }

func (e notExpr) build(b *sqlBuilder) {
	b.write("NOT (")
	e.inner.build(b)
	b.write(")")
}

func Not(e Expr) Expr { return notExpr{e} }
