package orm

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RelationDecl declares a many-to-many association to another entity.
type RelationDecl struct {
	Key     string
	Remote  string
	Ordered bool
}

// EntityDecl declares one logical entity. Langs makes it i18n; Publication
// requires exactly two DBIDs, admin first.
type EntityDecl struct {
	Name        string
	DBIDs       []string
	Langs       []string
	Columns     []Column
	Relations   []RelationDecl
	CommonKeys  []string
	Publication bool
	MarkDeleted bool
}

func (d EntityDecl) i18n() bool { return len(d.Langs) > 0 }

func (d EntityDecl) hasState() bool { return d.i18n() || d.Publication || d.MarkDeleted }

func (d EntityDecl) presentState() string {
	if d.Publication {
		return StatePrivate
	}
	return StateNormal
}

// langs returns the languages, or a single empty language for plain entities.
func (d EntityDecl) langs() []string {
	if d.i18n() {
		return d.Langs
	}
	return []string{""}
}

// TableName is Name for plain entities and Name plus the capitalized
// language for i18n ones.
func (d EntityDecl) TableName(lang string) string {
	if lang == "" {
		return d.Name
	}
	r, size := utf8.DecodeRuneInString(lang)
	return d.Name + string(unicode.ToUpper(r)) + strings.ToLower(lang[size:])
}

func (d EntityDecl) validate() error {
	if d.Name == "" {
		return ormErrorf("entity without name")
	}
	switch {
	case d.Publication && len(d.DBIDs) != 2:
		return ormErrorf("%s: publication needs admin and front databases, got %v", d.Name, d.DBIDs)
	case !d.Publication && len(d.DBIDs) != 1:
		return ormErrorf("%s: expected one database, got %v", d.Name, d.DBIDs)
	}
	seen := map[string]bool{"id": true, stateKey: d.hasState()}
	for _, c := range d.Columns {
		if seen[c.Name] {
			return ormErrorf("%s: duplicate or reserved column %q", d.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for _, r := range d.Relations {
		if seen[r.Key] {
			return ormErrorf("%s: relation key %q collides with a column", d.Name, r.Key)
		}
		seen[r.Key] = true
	}
	for _, k := range d.CommonKeys {
		if !slices.ContainsFunc(d.Columns, func(c Column) bool { return c.Name == k }) {
			return ormErrorf("%s: common key %q is not a column", d.Name, k)
		}
	}
	return nil
}

func (d EntityDecl) table(db, lang string) *Table {
	cols := []Column{Int("id")}
	mirrored := d.i18n() || d.Publication
	for _, c := range d.Columns {
		if mirrored && !slices.Contains(d.CommonKeys, c.Name) {
			c.Nullable = true
		}
		cols = append(cols, c)
	}
	if d.hasState() {
		state := String(stateKey, 16)
		state.Default = d.presentState()
		cols = append(cols, state)
	}
	t := &Table{
		Name:          d.TableName(lang),
		DBID:          db,
		Columns:       cols,
		PrimaryKey:    []string{"id"},
		AutoIncrement: db == d.DBIDs[0] && (lang == "" || lang == d.Langs[0]),
	}
	if d.i18n() && lang != d.Langs[0] {
		t.ForeignKeys = []ForeignKey{{
			Columns:    []string{"id"},
			RefTable:   d.TableName(d.Langs[0]),
			RefColumns: []string{"id"},
		}}
	}
	return t
}

// comparable strips function values so redeclarations can be compared.
func (d EntityDecl) comparable() EntityDecl {
	d.Columns = slices.Clone(d.Columns)
	for i := range d.Columns {
		d.Columns[i].DefaultFunc = nil
	}
	return d
}

// MapperID builds the flat registry key db.[lang.]name.
func MapperID(db, lang, name string) string {
	if lang == "" {
		return db + "." + name
	}
	return db + "." + lang + "." + name
}

// Registry holds schema metadata per database and the composed mappers
// of every declared entity. It is built at boot and read-only afterwards.
type Registry struct {
	decls      map[string]EntityDecl
	metadata   map[string]*Metadata
	dbIDs      []string
	mappers    map[string]Mapper
	mapperIDs  []string
	tables     []*Table
	sideTables []*Table
}

func NewRegistry() *Registry {
	return &Registry{
		decls:    make(map[string]EntityDecl),
		metadata: make(map[string]*Metadata),
		mappers:  make(map[string]Mapper),
	}
}

// Register adds entity declarations. Tables of the whole batch are defined
// before relations, so relations may point to entities later in the batch.
// Registering an identical declaration again is a no-op.
func (r *Registry) Register(decls ...EntityDecl) error {
	var fresh []EntityDecl
	for _, d := range decls {
		if err := d.validate(); err != nil {
			return err
		}
		if prev, ok := r.decls[d.Name]; ok {
			if !reflect.DeepEqual(prev.comparable(), d.comparable()) {
				return ormErrorf("entity %s is already registered with a different declaration", d.Name)
			}
			continue
		}
		if slices.ContainsFunc(fresh, func(f EntityDecl) bool { return f.Name == d.Name }) {
			return ormErrorf("entity %s declared twice", d.Name)
		}
		fresh = append(fresh, d)
	}

	for _, d := range fresh {
		for _, db := range d.DBIDs {
			meta := r.meta(db)
			for _, lang := range d.langs() {
				t := d.table(db, lang)
				if _, exists := meta.Table(t.Name); exists {
					return ormErrorf("table %s.%s is already defined", db, t.Name)
				}
				r.tables = append(r.tables, meta.Add(t))
			}
		}
		r.decls[d.Name] = d
	}

	for _, d := range fresh {
		if err := r.build(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) meta(db string) *Metadata {
	m, ok := r.metadata[db]
	if !ok {
		m = NewMetadata(db)
		r.metadata[db] = m
		r.dbIDs = append(r.dbIDs, db)
	}
	return m
}

// build creates relations, base mappers and decorated mappers of d.
func (r *Registry) build(d EntityDecl) error {
	var all []*BaseMapper
	layer := make(map[string]map[string]Mapper) // db -> lang -> base or i18n

	for _, db := range d.DBIDs {
		meta := r.metadata[db]
		byLang := make(map[string]*BaseMapper)
		for _, lang := range d.langs() {
			local, _ := meta.Table(d.TableName(lang))
			var rels []*Relation
			for _, rd := range d.Relations {
				remote, err := r.remoteTable(d, rd, db, lang)
				if err != nil {
					return err
				}
				rel, err := NewRelation(rd.Key, local, remote, rd.Ordered)
				if err != nil {
					return err
				}
				r.sideTables = append(r.sideTables, meta.Add(rel.Side))
				rels = append(rels, rel)
			}
			base, err := NewBaseMapper(d.Name, lang, local, rels)
			if err != nil {
				return err
			}
			byLang[lang] = base
			all = append(all, base)
		}

		layer[db] = make(map[string]Mapper)
		for _, lang := range d.langs() {
			if !d.i18n() {
				layer[db][lang] = byLang[lang]
				continue
			}
			m, err := NewI18nMapper(lang, d.Langs, byLang, d.CommonKeys, d.presentState())
			if err != nil {
				return err
			}
			layer[db][lang] = m
		}
	}

	for i, db := range d.DBIDs {
		for _, lang := range d.langs() {
			m := layer[db][lang]
			if d.Publication {
				side := SideAdmin
				if i == 1 {
					side = SideFront
				}
				pub, err := NewPubMapper(side, layer[d.DBIDs[0]][lang], layer[d.DBIDs[1]][lang], d.CommonKeys)
				if err != nil {
					return err
				}
				m = pub
			}
			if d.MarkDeleted {
				m = NewMarkDeletedMapper(m, all)
			}
			id := MapperID(db, lang, d.Name)
			r.mappers[id] = m
			r.mapperIDs = append(r.mapperIDs, id)
		}
	}
	return nil
}

func (r *Registry) remoteTable(d EntityDecl, rd RelationDecl, db, lang string) (*Table, error) {
	remote, ok := r.decls[rd.Remote]
	if !ok {
		return nil, ormErrorf("%s.%s: unknown remote entity %s", d.Name, rd.Key, rd.Remote)
	}
	if !slices.Contains(remote.DBIDs, db) {
		return nil, ormErrorf("%s.%s: remote entity %s is not in database %s", d.Name, rd.Key, rd.Remote, db)
	}
	remoteLang := ""
	if remote.i18n() {
		if !slices.Contains(remote.Langs, lang) {
			return nil, ormErrorf("%s.%s: remote entity %s has no language %q", d.Name, rd.Key, rd.Remote, lang)
		}
		remoteLang = lang
	}
	t, _ := r.metadata[db].Table(remote.TableName(remoteLang))
	return t, nil
}

// Mapper resolves a mapper by its flat id.
func (r *Registry) Mapper(id string) (Mapper, error) {
	m, ok := r.mappers[id]
	if !ok {
		return nil, ormErrorf("unknown mapper %q", id)
	}
	return m, nil
}

// Lookup resolves a mapper by database, language and entity name.
func (r *Registry) Lookup(db, lang, name string) (Mapper, error) {
	return r.Mapper(MapperID(db, lang, name))
}

// Entity returns the declaration of a registered entity.
func (r *Registry) Entity(name string) (EntityDecl, bool) {
	d, ok := r.decls[name]
	return d, ok
}

// MapperIDs lists mapper ids in registration order.
func (r *Registry) MapperIDs() []string { return slices.Clone(r.mapperIDs) }

// DBIDs lists database identifiers in first-use order.
func (r *Registry) DBIDs() []string { return slices.Clone(r.dbIDs) }

// Metadata returns the tables of one database, or nil.
func (r *Registry) Metadata(db string) *Metadata { return r.metadata[db] }

// SchemaTables lists entity tables followed by relation side tables.
func (r *Registry) SchemaTables() []*Table {
	out := make([]*Table, 0, len(r.tables)+len(r.sideTables))
	out = append(out, r.tables...)
	return append(out, r.sideTables...)
}

// CreateAll creates every table that does not exist yet.
func (r *Registry) CreateAll(ctx context.Context, sess *Session) error {
	for _, t := range r.SchemaTables() {
		if _, err := sess.Execute(ctx, &CreateTableStmt{Target: t}); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t, err)
		}
	}
	return nil
}
