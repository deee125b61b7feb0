package orm

import (
	"context"
	"fmt"
	"slices"
)

// I18nMapper spreads one entity over per-language tables sharing ids.
// The first language is primary and owns id generation. A row whose state
// is absent marks a language version that does not exist yet.
type I18nMapper struct {
	lang         string
	langs        []string
	bases        map[string]*BaseMapper
	commonKeys   []string
	presentState string
}

// NewI18nMapper creates the view of the entity in lang. bases must hold a
// mapper for every language in langs, all in the same database.
// presentState is the state written for existing versions.
func NewI18nMapper(lang string, langs []string, bases map[string]*BaseMapper, commonKeys []string, presentState string) (*I18nMapper, error) {
	if len(langs) == 0 || !slices.Contains(langs, lang) {
		return nil, ormErrorf("language %q is not one of %v", lang, langs)
	}
	for _, l := range langs {
		if _, ok := bases[l]; !ok {
			return nil, ormErrorf("no table for language %q", l)
		}
	}
	if presentState == "" {
		presentState = StateNormal
	}
	return &I18nMapper{
		lang:         lang,
		langs:        slices.Clone(langs),
		bases:        bases,
		commonKeys:   slices.Clone(commonKeys),
		presentState: presentState,
	}, nil
}

func (m *I18nMapper) current() *BaseMapper { return m.bases[m.lang] }
func (m *I18nMapper) primary() *BaseMapper { return m.bases[m.langs[0]] }

func (m *I18nMapper) Name() string                          { return m.current().Name() }
func (m *I18nMapper) DBID() string                          { return m.current().DBID() }
func (m *I18nMapper) Lang() string                          { return m.lang }
func (m *I18nMapper) Table() *Table                         { return m.current().Table() }
func (m *I18nMapper) ColumnKeys() []string                  { return m.current().ColumnKeys() }
func (m *I18nMapper) RelationKeys() []string                { return m.current().RelationKeys() }
func (m *I18nMapper) Relation(key string) (*Relation, bool) { return m.current().Relation(key) }
func (m *I18nMapper) AllowedKeys() []string                 { return m.current().AllowedKeys() }

// CommonKeys lists the columns mirrored into every language.
func (m *I18nMapper) CommonKeys() []string { return slices.Clone(m.commonKeys) }

// Query excludes absent versions.
func (m *I18nMapper) Query() Query {
	return m.current().Query().Where(Ne(stateKey, StateAbsent)).withMapper(m)
}

// AbsentQuery selects only absent versions.
func (m *I18nMapper) AbsentQuery() Query {
	return m.current().Query().Where(Eq(stateKey, StateAbsent)).withMapper(m)
}

func (m *I18nMapper) SelectItems(ctx context.Context, sess *Session, q Query, keys []string) ([]Item, error) {
	return m.current().SelectItems(ctx, sess, q, keys)
}

func (m *I18nMapper) SelectFirstItem(ctx context.Context, sess *Session, q Query, keys []string) (Item, error) {
	return selectFirst(ctx, sess, q, keys, m.SelectItems)
}

func (m *I18nMapper) CountItems(ctx context.Context, sess *Session, q Query) (int64, error) {
	return m.current().CountItems(ctx, sess, q)
}

// InsertItem creates a row in every language. The current language gets
// the values; the others get the common keys and state absent.
func (m *I18nMapper) InsertItem(ctx context.Context, sess *Session, values Item, keys []string) (Item, error) {
	keys = writeKeys(values, keys)
	values = withState(values, m.presentState)
	if !slices.Contains(keys, stateKey) {
		keys = append(slices.Clone(keys), stateKey)
	}
	absent := m.absentRow(values, keys)

	cur := m.current()
	var item Item
	if cur == m.primary() {
		it, err := cur.InsertItem(ctx, sess, values, keys)
		if err != nil {
			return nil, err
		}
		item = it
	} else {
		id, err := m.primary().insertRow(ctx, sess, absent)
		if err != nil {
			return nil, err
		}
		withID := cloneItem(values)
		withID["id"] = id
		it, err := cur.InsertItem(ctx, sess, withID, appendKey(keys, "id"))
		if err != nil {
			return nil, err
		}
		item = it
	}

	absent["id"] = item["id"]
	for _, l := range m.langs[1:] {
		if l == m.lang {
			continue
		}
		if _, err := m.bases[l].insertRow(ctx, sess, absent); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// insertRow writes a skeleton row in every language without defaults.
func (m *I18nMapper) insertRow(ctx context.Context, sess *Session, row Item) (int64, error) {
	keys := writeKeys(row, nil)
	absent := m.absentRow(row, keys)
	id, err := m.primary().insertRow(ctx, sess, m.rowFor(m.langs[0], row, absent))
	if err != nil {
		return 0, err
	}
	for _, l := range m.langs[1:] {
		r := cloneItem(m.rowFor(l, row, absent))
		r["id"] = id
		if _, err := m.bases[l].insertRow(ctx, sess, r); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (m *I18nMapper) rowFor(lang string, row, absent Item) Item {
	if lang == m.lang {
		return row
	}
	return absent
}

func (m *I18nMapper) absentRow(values Item, keys []string) Item {
	row := sliceOf(values, intersect(keys, m.commonKeys))
	if id, ok := values["id"]; ok && id != nil {
		row["id"] = id
	}
	row[stateKey] = StateAbsent
	return row
}

func (m *I18nMapper) UpdateItem(ctx context.Context, sess *Session, q Query, id int64, values Item, keys []string) (Item, error) {
	if err := checkExists(ctx, sess, q, id); err != nil {
		return nil, err
	}
	if err := m.updateByID(ctx, sess, id, values, keys); err != nil {
		return nil, err
	}
	return updatedItem(id, values, keys), nil
}

// updateByID writes all keys in the current language and only the common
// keys in the others.
func (m *I18nMapper) updateByID(ctx context.Context, sess *Session, id int64, values Item, keys []string) error {
	keys = writeKeys(values, keys)
	if err := m.current().updateByID(ctx, sess, id, values, keys); err != nil {
		return err
	}
	common := intersect(keys, m.commonKeys)
	common = slices.DeleteFunc(common, func(k string) bool { return k == "id" })
	if len(common) == 0 {
		return nil
	}
	for _, l := range m.langs {
		if l == m.lang {
			continue
		}
		if err := m.bases[l].updateByID(ctx, sess, id, values, common); err != nil {
			return err
		}
	}
	return nil
}

func (m *I18nMapper) DeleteItem(ctx context.Context, sess *Session, q Query, id int64) error {
	if err := checkExists(ctx, sess, q, id); err != nil {
		return err
	}
	return m.deleteByID(ctx, sess, id)
}

// deleteByID removes non-primary versions in reverse order, then the primary.
func (m *I18nMapper) deleteByID(ctx context.Context, sess *Session, id int64) error {
	for i := len(m.langs) - 1; i >= 0; i-- {
		if err := m.bases[m.langs[i]].deleteByID(ctx, sess, id); err != nil {
			return err
		}
	}
	return nil
}

// CreateVersion turns the absent version of id in the current language
// into an existing one.
func (m *I18nMapper) CreateVersion(ctx context.Context, sess *Session, id int64) error {
	item, err := m.AbsentQuery().ID(id).SelectFirstItem(ctx, sess, []string{"id"})
	if err != nil {
		return err
	}
	if item == nil {
		return &ItemNotFoundError{ID: id}
	}
	err = m.current().updateByID(ctx, sess, id, Item{stateKey: m.presentState}, []string{stateKey})
	if err != nil {
		return fmt.Errorf("failed to create %s version of %s %d: %w", m.lang, m.Name(), id, err)
	}
	return nil
}

func withState(values Item, state string) Item {
	out := cloneItem(values)
	if s, ok := out[stateKey]; !ok || s == nil {
		out[stateKey] = state
	}
	return out
}

func cloneItem(it Item) Item {
	out := make(Item, len(it)+1)
	for k, v := range it {
		out[k] = v
	}
	return out
}

func appendKey(keys []string, key string) []string {
	if slices.Contains(keys, key) {
		return keys
	}
	return append(slices.Clone(keys), key)
}
