package orm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ColumnKind is the logical type of a column.
type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindString
	KindText
	KindBool
	KindDate
)

func (k ColumnKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Column describes one persisted scalar field.
type Column struct {
	Name     string
	Kind     ColumnKind
	Size     int // for KindString
	Nullable bool

	// Default is applied by InsertItem when the value is missing.
	// DefaultFunc takes precedence when set.
	Default     any
	DefaultFunc func() any
}

// Int, String, Text, Bool and Date are shorthands for column declarations.
func Int(name string) Column              { return Column{Name: name, Kind: KindInt} }
func String(name string, size int) Column { return Column{Name: name, Kind: KindString, Size: size} }
func Text(name string) Column             { return Column{Name: name, Kind: KindText} }
func Bool(name string) Column             { return Column{Name: name, Kind: KindBool} }
func Date(name string) Column             { return Column{Name: name, Kind: KindDate} }

func (c Column) defaultValue() (any, bool) {
	if c.DefaultFunc != nil {
		return c.DefaultFunc(), true
	}
	if c.Default != nil {
		return c.Default, true
	}
	return nil, false
}

// normalize converts a driver value to the column's native Go type:
// int64, string, bool, time.Time (UTC midnight) or nil.
func (c Column) normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Kind {
	case KindInt:
		return toInt64(v)
	case KindString, KindText:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return fmt.Sprint(v), nil
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case []byte:
			return string(b) == "1" || strings.EqualFold(string(b), "true"), nil
		case string:
			return b == "1" || strings.EqualFold(b, "true"), nil
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return n != 0, nil
	case KindDate:
		switch d := v.(type) {
		case time.Time:
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		case []byte:
			return parseDate(string(d))
		case string:
			return parseDate(d)
		}
	}
	return nil, fmt.Errorf("column %s: unsupported %s value %T", c.Name, c.Kind, v)
}

func parseDate(s string) (time.Time, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer overflow: %d", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		if n >= 1<<63 || n < -1<<63 {
			return 0, fmt.Errorf("integer overflow: %v", n)
		}
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unsupported integer value %T", v)
}

// ForeignKey references the primary key of another table in the same database.
// All foreign keys cascade on delete.
type ForeignKey struct {
	Columns    []string
	RefTable   string
	RefColumns []string
}

// Table is the physical definition of one table in one logical database.
type Table struct {
	Name          string
	DBID          string
	Columns       []Column
	PrimaryKey    []string
	AutoIncrement bool
	ForeignKeys   []ForeignKey
}

// Column returns the named column definition.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames lists column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) String() string {
	return t.DBID + "." + t.Name
}

// Metadata holds the tables of one logical database in creation order.
type Metadata struct {
	DBID   string
	tables []*Table
	byName map[string]*Table
}

// NewMetadata creates empty metadata for a database identifier.
func NewMetadata(dbID string) *Metadata {
	return &Metadata{DBID: dbID, byName: make(map[string]*Table)}
}

// Add registers a table. Adding a table whose name is already known
// returns the existing definition.
func (m *Metadata) Add(t *Table) *Table {
	if existing, ok := m.byName[t.Name]; ok {
		return existing
	}
	t.DBID = m.DBID
	m.byName[t.Name] = t
	m.tables = append(m.tables, t)
	return t
}

// Table looks up a table by name.
func (m *Metadata) Table(name string) (*Table, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// Tables returns tables in the order they were added.
func (m *Metadata) Tables() []*Table {
	return append([]*Table(nil), m.tables...)
}
