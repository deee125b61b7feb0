package orm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func docTable() *Table {
	return &Table{
		Name: "Doc",
		DBID: "main",
		Columns: []Column{
			Int("id"),
			String("title", 100),
			{Name: "date", Kind: KindDate, Nullable: true},
			Bool("visible"),
		},
		PrimaryKey:    []string{"id"},
		AutoIncrement: true,
	}
}

func TestSelectStmt_Build(t *testing.T) {
	stmt := &SelectStmt{
		From:    docTable(),
		Columns: []string{"id"},
		Where:   []Expr{Eq("title", "a"), In("id", int64(1), int64(2))},
		Order:   []OrderTerm{Desc("title")},
		Limit:   2,
		Offset:  4,
	}

	tests := []struct {
		dialect Dialect
		sql     string
	}{
		{DialectPostgres, `SELECT "id" FROM "Doc" WHERE ("title" = $1 AND "id" IN ($2, $3)) ORDER BY "title" DESC LIMIT 2 OFFSET 4`},
		{DialectSQLite, `SELECT "id" FROM "Doc" WHERE ("title" = ? AND "id" IN (?, ?)) ORDER BY "title" DESC LIMIT 2 OFFSET 4`},
		{DialectMySQL, "SELECT `id` FROM `Doc` WHERE (`title` = ? AND `id` IN (?, ?)) ORDER BY `title` DESC LIMIT 2 OFFSET 4"},
		{DialectMSSQL, `SELECT [id] FROM [Doc] WHERE ([title] = @p1 AND [id] IN (@p2, @p3)) ORDER BY [title] DESC OFFSET 4 ROWS FETCH NEXT 2 ROWS ONLY`},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			sql, args := stmt.Build(tt.dialect)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, []any{"a", int64(1), int64(2)}, args)
		})
	}
}

func TestSelectStmt_PagingWithoutLimit(t *testing.T) {
	stmt := &SelectStmt{From: docTable(), Columns: []string{"id"}, Limit: -1, Offset: 3}

	sql, _ := stmt.Build(DialectSQLite)
	assert.Equal(t, `SELECT "id" FROM "Doc" LIMIT -1 OFFSET 3`, sql)

	sql, _ = stmt.Build(DialectMySQL)
	assert.Equal(t, "SELECT `id` FROM `Doc` LIMIT 18446744073709551615 OFFSET 3", sql)

	sql, _ = stmt.Build(DialectPostgres)
	assert.Equal(t, `SELECT "id" FROM "Doc" OFFSET 3`, sql)

	sql, _ = stmt.Build(DialectMSSQL)
	assert.Equal(t, `SELECT [id] FROM [Doc] ORDER BY (SELECT NULL) OFFSET 3 ROWS`, sql)
}

func TestSelectStmt_CountIgnoresPaging(t *testing.T) {
	stmt := &SelectStmt{
		From:   docTable(),
		Count:  true,
		Where:  []Expr{Ne("state", "absent")},
		Order:  []OrderTerm{Asc("title")},
		Limit:  1,
		Offset: 1,
	}

	sql, args := stmt.Build(DialectPostgres)

	assert.Equal(t, `SELECT COUNT("id") FROM "Doc" WHERE "state" <> $1`, sql)
	assert.Equal(t, []any{"absent"}, args)
}

func TestExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		sql  string
		args []any
	}{
		{"eq nil", Eq("date", nil), `"date" IS NULL`, nil},
		{"ne nil", Ne("date", nil), `NOT ("date" IS NULL)`, nil},
		{"empty in", In("id"), `1=0`, nil},
		{"contains escapes wildcards", Contains("title", "50%_!"), `"title" LIKE ? ESCAPE '!'`, []any{"%50!%!_!!%"}},
		{"or", Or(Gt("id", 1), Le("id", 0)), `("id" > ? OR "id" <= ?)`, []any{1, 0}},
		{"not", Not(Lt("id", 5)), `NOT ("id" < ?)`, []any{5}},
		{"empty and", And(), `1=1`, nil},
		{"ge", Ge("id", 2), `"id" >= ?`, []any{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &sqlBuilder{d: DialectSQLite}
			tt.expr.build(b)
			assert.Equal(t, tt.sql, b.String())
			assert.Equal(t, tt.args, b.args)
		})
	}
}

func TestContains_MSSQLEscapesBrackets(t *testing.T) {
	b := &sqlBuilder{d: DialectMSSQL}
	Contains("title", "[x]").build(b)
	assert.Equal(t, []any{"%![x]%"}, b.args)
}

func TestInsertStmt_Build(t *testing.T) {
	values := map[string]any{"title": "a", "visible": true}

	sql, args := (&InsertStmt{Into: docTable(), Values: values, ReturnID: true}).Build(DialectPostgres)
	assert.Equal(t, `INSERT INTO "Doc" ("title", "visible") VALUES ($1, $2) RETURNING "id"`, sql)
	assert.Equal(t, []any{"a", true}, args)

	sql, _ = (&InsertStmt{Into: docTable(), Values: values, ReturnID: true}).Build(DialectMSSQL)
	assert.Equal(t, `INSERT INTO [Doc] ([title], [visible]) OUTPUT INSERTED.[id] VALUES (@p1, @p2)`, sql)

	sql, _ = (&InsertStmt{Into: docTable(), Values: values, ReturnID: true}).Build(DialectSQLite)
	assert.Equal(t, `INSERT INTO "Doc" ("title", "visible") VALUES (?, ?)`, sql)
}

func TestInsertStmt_ExplicitIDOnMSSQLIdentity(t *testing.T) {
	stmt := &InsertStmt{Into: docTable(), Values: map[string]any{"id": int64(7), "title": "a"}}

	sql, args := stmt.Build(DialectMSSQL)

	assert.Equal(t, `SET IDENTITY_INSERT [Doc] ON; INSERT INTO [Doc] ([id], [title]) VALUES (@p1, @p2); SET IDENTITY_INSERT [Doc] OFF`, sql)
	assert.Equal(t, []any{int64(7), "a"}, args)
}

func TestInsertStmt_DefaultValues(t *testing.T) {
	stmt := &InsertStmt{Into: docTable(), Values: map[string]any{}, ReturnID: true}

	sql, _ := stmt.Build(DialectMySQL)
	assert.Equal(t, "INSERT INTO `Doc` () VALUES ()", sql)

	sql, _ = stmt.Build(DialectPostgres)
	assert.Equal(t, `INSERT INTO "Doc" DEFAULT VALUES RETURNING "id"`, sql)
}

func TestUpdateAndDeleteStmt_Build(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	upd := &UpdateStmt{Target: docTable(), Values: map[string]any{"date": day, "title": "b"}, Where: []Expr{Eq("id", int64(3))}}

	sql, args := upd.Build(DialectSQLite)
	assert.Equal(t, `UPDATE "Doc" SET "title" = ?, "date" = ? WHERE "id" = ?`, sql)
	assert.Equal(t, []any{"b", "2024-03-01", int64(3)}, args, "sqlite binds dates as ISO strings")

	_, args = upd.Build(DialectPostgres)
	assert.Equal(t, []any{"b", day, int64(3)}, args)

	sql, args = (&DeleteStmt{From: docTable(), Where: []Expr{Eq("id", int64(3))}}).Build(DialectMySQL)
	assert.Equal(t, "DELETE FROM `Doc` WHERE `id` = ?", sql)
	assert.Equal(t, []any{int64(3)}, args)
}

func TestSyncSequenceStmt_Build(t *testing.T) {
	sql, args := (&SyncSequenceStmt{Target: docTable()}).Build(DialectPostgres)
	assert.Equal(t, `SELECT setval(pg_get_serial_sequence($1, $2), GREATEST((SELECT MAX("id") FROM "Doc"), 1))`, sql)
	assert.Equal(t, []any{`"Doc"`, "id"}, args)
}

func TestCreateTableStmt_Build(t *testing.T) {
	side := &Table{
		Name:       "Doc_tags",
		Columns:    []Column{Int("local_id"), Int("remote_id"), {Name: "order", Kind: KindInt, Nullable: true}},
		PrimaryKey: []string{"local_id", "remote_id"},
		ForeignKeys: []ForeignKey{
			{Columns: []string{"local_id"}, RefTable: "Doc", RefColumns: []string{"id"}},
		},
	}

	sql, _ := (&CreateTableStmt{Target: side}).Build(DialectPostgres)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "Doc_tags" ("local_id" BIGINT NOT NULL, "remote_id" BIGINT NOT NULL, "order" BIGINT, PRIMARY KEY ("local_id", "remote_id"), FOREIGN KEY ("local_id") REFERENCES "Doc" ("id") ON DELETE CASCADE)`, sql)

	sql, _ = (&CreateTableStmt{Target: docTable()}).Build(DialectSQLite)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "Doc" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "title" VARCHAR(100) NOT NULL, "date" DATE, "visible" INTEGER NOT NULL)`, sql)

	sql, _ = (&CreateTableStmt{Target: docTable()}).Build(DialectMSSQL)
	assert.Equal(t, `IF OBJECT_ID(N'Doc', N'U') IS NULL CREATE TABLE [Doc] ([id] BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY, [title] NVARCHAR(100) NOT NULL, [date] DATE, [visible] BIT NOT NULL)`, sql)

	sql, _ = (&CreateTableStmt{Target: docTable()}).Build(DialectMySQL)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `Doc` (`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, `title` VARCHAR(100) NOT NULL, `date` DATE, `visible` TINYINT(1) NOT NULL)", sql)
}

func TestColumnNormalize(t *testing.T) {
	day := time.Date(2024, 3, 1, 15, 4, 5, 0, time.FixedZone("x", 3600))

	tests := []struct {
		name string
		col  Column
		in   any
		want any
	}{
		{"int from bytes", Int("n"), []byte("42"), int64(42)},
		{"int from int32", Int("n"), int32(7), int64(7)},
		{"string from bytes", Text("s"), []byte("hi"), "hi"},
		{"bool from int", Bool("b"), int64(1), true},
		{"bool from bytes", Bool("b"), []byte("0"), false},
		{"date from time", Date("d"), day, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"date from string", Date("d"), "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"date from timestamp string", Date("d"), "2024-03-01 00:00:00+00:00", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"nil", Int("n"), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.col.normalize(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_IsImmutable(t *testing.T) {
	base := newQuery(nil).Where(Eq("a", 1))
	q1 := base.Where(Eq("b", 2)).OrderBy(Asc("a")).Limit(5)
	q2 := base.Where(Eq("c", 3))

	assert.Len(t, base.where, 1)
	assert.Len(t, q1.where, 2)
	assert.Len(t, q2.where, 2)
	assert.Equal(t, Eq("b", 2), q1.where[1])
	assert.Equal(t, Eq("c", 3), q2.where[1])
	assert.Equal(t, -1, base.limit)
	assert.Empty(t, base.order)
}

func TestQuery_FilterBySortsKeys(t *testing.T) {
	q := newQuery(nil).FilterBy(map[string]any{"title": "x", "id": int64(1)})

	sql, args := q.selectStmt(docTable()).Build(DialectPostgres)

	assert.Equal(t, `SELECT "id" FROM "Doc" WHERE ("id" = $1 AND "title" = $2)`, sql)
	assert.Equal(t, []any{int64(1), "x"}, args)
}
