package orm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects the SQL flavour of an engine.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectMSSQL    Dialect = "mssql"
	DialectSQLite   Dialect = "sqlite"
)

// mysqlNoLimit is the documented way to express OFFSET without LIMIT in MySQL.
const mysqlNoLimit = "18446744073709551615"

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case DialectMSSQL:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case DialectPostgres:
		return "$" + strconv.Itoa(n)
	case DialectMSSQL:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// BindValue adapts a native value for the driver.
func (d Dialect) BindValue(v any) any {
	if t, ok := v.(time.Time); ok && d == DialectSQLite {
		return t.UTC().Format("2006-01-02")
	}
	return v
}

// insertReturnsRows reports whether generated ids come back as a result row.
func (d Dialect) insertReturnsRows() bool {
	return d == DialectPostgres || d == DialectMSSQL
}

func (d Dialect) likeEscape(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	if d == DialectMSSQL {
		r = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_", "[", "![")
	}
	return r.Replace(s)
}

func (d Dialect) columnType(c Column) string {
	switch c.Kind {
	case KindInt:
		if d == DialectSQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case KindString:
		size := c.Size
		if size <= 0 {
			size = 255
		}
		if d == DialectMSSQL {
			return fmt.Sprintf("NVARCHAR(%d)", size)
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case KindText:
		if d == DialectMSSQL {
			return "NVARCHAR(MAX)"
		}
		return "TEXT"
	case KindBool:
		switch d {
		case DialectMSSQL:
			return "BIT"
		case DialectMySQL:
			return "TINYINT(1)"
		case DialectSQLite:
			return "INTEGER"
		}
		return "BOOLEAN"
	case KindDate:
		return "DATE"
	}
	return "TEXT"
}

// autoIncrementColumn is the full DDL of a generated single-column primary key.
func (d Dialect) autoIncrementColumn(name string) string {
	q := d.Quote(name)
	switch d {
	case DialectMySQL:
		return q + " BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case DialectMSSQL:
		return q + " BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY"
	case DialectSQLite:
		return q + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return q + " BIGSERIAL PRIMARY KEY"
}

// writePaging appends LIMIT/OFFSET. limit < 0 means no limit.
func (d Dialect) writePaging(b *sqlBuilder, limit, offset int, ordered bool) {
	if limit < 0 && offset <= 0 {
		return
	}
	switch d {
	case DialectMSSQL:
		if !ordered {
			b.write(" ORDER BY (SELECT NULL)")
		}
		b.write(" OFFSET ", strconv.Itoa(max(offset, 0)), " ROWS")
		if limit >= 0 {
			b.write(" FETCH NEXT ", strconv.Itoa(limit), " ROWS ONLY")
		}
	case DialectPostgres:
		if limit >= 0 {
			b.write(" LIMIT ", strconv.Itoa(limit))
		}
		if offset > 0 {
			b.write(" OFFSET ", strconv.Itoa(offset))
		}
	default:
		switch {
		case limit >= 0:
			b.write(" LIMIT ", strconv.Itoa(limit))
		case d == DialectMySQL:
			b.write(" LIMIT ", mysqlNoLimit)
		default:
			b.write(" LIMIT -1")
		}
		if offset > 0 {
			b.write(" OFFSET ", strconv.Itoa(offset))
		}
	}
}
