// Package schema loads entity and stream declarations from YAML.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
	"github.com/ekaya-inc/ekaya-streams/pkg/streams"
)

// Schema is the converted content of a declarations file.
type Schema struct {
	Entities []orm.EntityDecl
	Streams  []streams.StreamDecl
}

type yamlFile struct {
	Entities []yamlEntity `yaml:"entities"`
	Streams  []yamlStream `yaml:"streams"`
}

type yamlEntity struct {
	Name        string         `yaml:"name"`
	DBs         []string       `yaml:"dbs"`
	Langs       []string       `yaml:"langs"`
	Columns     []yamlColumn   `yaml:"columns"`
	Relations   []yamlRelation `yaml:"relations"`
	CommonKeys  []string       `yaml:"common_keys"`
	Publication bool           `yaml:"publication"`
	MarkDeleted bool           `yaml:"mark_deleted"`
}

type yamlColumn struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Size     int    `yaml:"size"`
	Nullable bool   `yaml:"nullable"`
	Default  any    `yaml:"default"`
}

type yamlRelation struct {
	Key     string `yaml:"key"`
	Remote  string `yaml:"remote"`
	Ordered bool   `yaml:"ordered"`
}

type yamlStream struct {
	Entity       string            `yaml:"entity"`
	Name         string            `yaml:"name"`
	Title        string            `yaml:"title"`
	ListFields   []yamlField       `yaml:"list_fields"`
	FilterFields []yamlField       `yaml:"filter_fields"`
	ItemFields   []yamlField       `yaml:"item_fields"`
	Actions      []string          `yaml:"actions"`
	Permissions  map[string]string `yaml:"permissions"`
	MaxLimit     int               `yaml:"max_limit"`
	Where        map[string]any    `yaml:"where"`
}

// Load reads a declarations file.
func Load(filename string) (*Schema, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return s, nil
}

// Parse converts YAML declarations. Unknown keys are rejected.
func Parse(data []byte) (*Schema, error) {
	var yf yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshalling YAML: %w", err)
	}

	s := &Schema{}
	columns := make(map[string][]orm.Column, len(yf.Entities))
	for _, e := range yf.Entities {
		decl, err := e.decl()
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		s.Entities = append(s.Entities, decl)
		columns[decl.Name] = decl.Columns
	}
	for i, st := range yf.Streams {
		decl, err := st.decl(columns[st.Entity])
		if err != nil {
			return nil, fmt.Errorf("stream %d (%s): %w", i, st.Entity, err)
		}
		s.Streams = append(s.Streams, decl)
	}
	return s, nil
}

// Registry registers the entities into a new mapper registry.
func (s *Schema) Registry() (*orm.Registry, error) {
	reg := orm.NewRegistry()
	if err := reg.Register(s.Entities...); err != nil {
		return nil, err
	}
	return reg, nil
}

var columnKinds = map[string]orm.ColumnKind{
	"int":    orm.KindInt,
	"string": orm.KindString,
	"text":   orm.KindText,
	"bool":   orm.KindBool,
	"date":   orm.KindDate,
}

func (e yamlEntity) decl() (orm.EntityDecl, error) {
	if e.Name == "" {
		return orm.EntityDecl{}, errors.New("name is required")
	}
	decl := orm.EntityDecl{
		Name:        e.Name,
		DBIDs:       e.DBs,
		Langs:       e.Langs,
		CommonKeys:  e.CommonKeys,
		Publication: e.Publication,
		MarkDeleted: e.MarkDeleted,
	}
	for _, c := range e.Columns {
		col, err := c.column()
		if err != nil {
			return orm.EntityDecl{}, fmt.Errorf("column %q: %w", c.Name, err)
		}
		decl.Columns = append(decl.Columns, col)
	}
	for _, r := range e.Relations {
		decl.Relations = append(decl.Relations, orm.RelationDecl{Key: r.Key, Remote: r.Remote, Ordered: r.Ordered})
	}
	return decl, nil
}

func (c yamlColumn) column() (orm.Column, error) {
	kind, ok := columnKinds[c.Type]
	if !ok {
		return orm.Column{}, fmt.Errorf("unknown column type %q", c.Type)
	}
	if kind == orm.KindString && c.Size <= 0 {
		return orm.Column{}, errors.New("string columns need a positive size")
	}
	col := orm.Column{Name: c.Name, Kind: kind, Size: c.Size, Nullable: c.Nullable}
	if c.Default != nil {
		v, err := streams.ConverterFor(col).ToNative(c.Default)
		if err != nil {
			return orm.Column{}, fmt.Errorf("invalid default: %w", err)
		}
		col.Default = v
	}
	return col, nil
}

var actionsByName = map[string]func() *streams.Action{
	streams.ActionList:          streams.ListAction,
	streams.ActionGetItem:       streams.GetItemAction,
	streams.ActionNewItem:       streams.NewItemAction,
	streams.ActionCreateItem:    streams.CreateItemAction,
	streams.ActionUpdateItem:    streams.UpdateItemAction,
	streams.ActionDeleteItem:    streams.DeleteItemAction,
	streams.ActionPublish:       streams.PublishAction,
	streams.ActionCreateVersion: streams.CreateVersionAction,
}

func (st yamlStream) decl(columns []orm.Column) (streams.StreamDecl, error) {
	if columns == nil {
		return streams.StreamDecl{}, fmt.Errorf("unknown entity %q", st.Entity)
	}
	decl := streams.StreamDecl{
		Entity:      st.Entity,
		Name:        st.Name,
		Title:       st.Title,
		Permissions: st.Permissions,
		MaxLimit:    st.MaxLimit,
	}

	for _, f := range st.ListFields {
		field, err := f.field(columns)
		if err != nil {
			return decl, fmt.Errorf("list field %q: %w", f.Name, err)
		}
		decl.ListFields = append(decl.ListFields, streams.ListField{Field: field, Order: f.Order, Column: f.Column})
	}
	for _, f := range st.FilterFields {
		field, err := f.field(columns)
		if err != nil {
			return decl, fmt.Errorf("filter field %q: %w", f.Name, err)
		}
		filter, err := f.filter()
		if err != nil {
			return decl, fmt.Errorf("filter field %q: %w", f.Name, err)
		}
		decl.FilterFields = append(decl.FilterFields, streams.FilterField{Field: field, Filter: filter})
	}
	for _, f := range st.ItemFields {
		field, err := f.field(columns)
		if err != nil {
			return decl, fmt.Errorf("item field %q: %w", f.Name, err)
		}
		decl.ItemFields = append(decl.ItemFields, field)
	}

	for _, name := range st.Actions {
		newAction, ok := actionsByName[name]
		if !ok {
			return decl, fmt.Errorf("unknown action %q", name)
		}
		decl.Actions = append(decl.Actions, newAction())
	}

	keys := make([]string, 0, len(st.Where))
	for k := range st.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		i := slices.IndexFunc(columns, func(c orm.Column) bool { return c.Name == k })
		if i < 0 {
			return decl, fmt.Errorf("where: unknown column %q", k)
		}
		v, err := streams.ConverterFor(columns[i]).ToNative(st.Where[k])
		if err != nil {
			return decl, fmt.Errorf("where %q: %w", k, err)
		}
		decl.Where = append(decl.Where, orm.Eq(k, v))
	}
	return decl, nil
}
