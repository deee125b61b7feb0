package streams

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/forms"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// FrontPerms are the letters kept by front streams of publication entities.
const FrontPerms = "rx"

// DefaultMaxLimit is used when neither the declaration nor the builder sets one.
const DefaultMaxLimit = 100

// StreamDecl declares the streams of one entity. Build expands it into one
// stream per database and language of the entity.
type StreamDecl struct {
	Entity string
	// Name defaults to the lower-cased plural of Entity.
	Name string
	// Title defaults to the plural of Entity.
	Title string

	ListFields   []ListField
	FilterFields []FilterField
	// ItemFields defaults to one field per column and relation.
	ItemFields forms.Form

	// Actions defaults to DefaultActions, plus publish on admin streams of
	// publication entities and create_version on i18n streams.
	Actions     []*Action
	Permissions map[string]string
	MaxLimit    int
	Where       []orm.Expr
}

// StreamID composes the dotted id db.lang.name; empty segments are skipped.
func StreamID(db, lang, name string) string {
	var parts []string
	for _, p := range []string{db, lang, name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Registry is the flat map of stream ids to streams. It is read-only after Build.
type Registry struct {
	streams map[string]*Stream
	ids     []string
}

// Build creates the streams of decls over the mappers of reg.
func Build(reg *orm.Registry, decls []StreamDecl, defaultMaxLimit int) (*Registry, error) {
	if defaultMaxLimit < 1 {
		defaultMaxLimit = DefaultMaxLimit
	}
	r := &Registry{streams: make(map[string]*Stream)}
	for _, d := range decls {
		entity, ok := reg.Entity(d.Entity)
		if !ok {
			return nil, fmt.Errorf("stream over unknown entity %q", d.Entity)
		}
		langs := entity.Langs
		if len(langs) == 0 {
			langs = []string{""}
		}
		for i, db := range entity.DBIDs {
			for _, lang := range langs {
				s, err := d.build(reg, entity, i, db, lang, defaultMaxLimit)
				if err != nil {
					return nil, err
				}
				if _, dup := r.streams[s.ID]; dup {
					return nil, fmt.Errorf("stream %s declared twice", s.ID)
				}
				r.streams[s.ID] = s
				r.ids = append(r.ids, s.ID)
			}
		}
	}
	return r, nil
}

func (d StreamDecl) build(reg *orm.Registry, entity orm.EntityDecl, dbIndex int, db, lang string, maxLimit int) (*Stream, error) {
	mapper, err := reg.Lookup(db, lang, entity.Name)
	if err != nil {
		return nil, err
	}
	name := d.Name
	if name == "" {
		name = strings.ToLower(inflection.Plural(entity.Name))
	}
	title := d.Title
	if title == "" {
		title = inflection.Plural(entity.Name)
	}
	if d.MaxLimit > 0 {
		maxLimit = d.MaxLimit
	}

	front := entity.Publication && dbIndex == 1
	prefix := ""
	if entity.Publication {
		prefix = db
	}
	perms := maps.Clone(d.Permissions)
	if front {
		perms = auth.IntersectPerms(perms, FrontPerms)
	}

	s := &Stream{
		ID:           StreamID(prefix, lang, name),
		Name:         name,
		Title:        title,
		DBID:         db,
		Lang:         lang,
		Mapper:       mapper,
		ListFields:   d.ListFields,
		FilterFields: d.FilterFields,
		ItemFields:   d.ItemFields,
		Actions:      d.Actions,
		Permissions:  perms,
		MaxLimit:     maxLimit,
		Where:        d.Where,
	}
	if s.ItemFields == nil {
		s.ItemFields = ItemFieldsFor(mapper)
	}
	if s.ListFields == nil {
		s.ListFields = []ListField{{Field: forms.Field{Name: "id", Conv: forms.Int{}}, Order: true}}
	}
	if s.Actions == nil {
		s.Actions = DefaultActions()
		if entity.Publication && !front {
			s.Actions = append(s.Actions, PublishAction())
		}
		if len(entity.Langs) > 0 {
			s.Actions = append(s.Actions, CreateVersionAction())
		}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) validate() error {
	allowed := append(s.Mapper.AllowedKeys(), "id")
	for _, f := range s.ListFields {
		if f.Order && !slices.Contains(allowed, f.column()) {
			return fmt.Errorf("stream %s: list field %s orders by unknown column %q", s.ID, f.Name, f.column())
		}
	}
	for _, f := range s.FilterFields {
		if f.Filter == nil {
			return fmt.Errorf("stream %s: filter field %s has no filter", s.ID, f.Name)
		}
	}
	seen := map[string]bool{}
	for _, a := range s.Actions {
		if seen[a.Name] {
			return fmt.Errorf("stream %s: action %s declared twice", s.ID, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// ItemFieldsFor derives an item form from the mapper's columns and relations.
func ItemFieldsFor(m orm.Mapper) forms.Form {
	form := forms.Form{{Name: "id", Conv: forms.Int{}}}
	for _, key := range m.ColumnKeys() {
		if key == "id" || key == "state" {
			continue
		}
		col, ok := m.Table().Column(key)
		if !ok {
			continue
		}
		form = append(form, forms.Field{Name: key, Conv: ConverterFor(col), NotNone: !col.Nullable})
	}
	for _, key := range m.RelationKeys() {
		form = append(form, forms.Field{
			Name: key,
			Conv: forms.List{Item: forms.Field{Name: key, Conv: forms.Int{}, NotNone: true}},
		})
	}
	return form
}

// ConverterFor returns the wire converter of a column kind.
func ConverterFor(c orm.Column) forms.Converter {
	switch c.Kind {
	case orm.KindInt:
		return forms.Int{}
	case orm.KindBool:
		return forms.Bool{}
	case orm.KindDate:
		return forms.Date{}
	case orm.KindString:
		return forms.Str{MaxLen: c.Size}
	}
	return forms.Str{}
}

// Stream resolves a stream by its dotted id.
func (r *Registry) Stream(id string) (*Stream, error) {
	s, ok := r.streams[id]
	if !ok {
		return nil, &RouteError{Err: ErrStreamNotFound, StreamID: id}
	}
	return s, nil
}

// IDs lists stream ids in build order.
func (r *Registry) IDs() []string { return slices.Clone(r.ids) }

// Streams lists streams in build order.
func (r *Registry) Streams() []*Stream {
	out := make([]*Stream, len(r.ids))
	for i, id := range r.ids {
		out[i] = r.streams[id]
	}
	return out
}
