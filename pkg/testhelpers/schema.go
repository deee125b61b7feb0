package testhelpers

import "github.com/ekaya-inc/ekaya-streams/pkg/orm"

// Database identifiers used by the sample entities.
const (
	DBMain  = "main"
	DBAdmin = "admin"
	DBFront = "front"
)

// SampleEntities covers every mapper composition:
//   - Tag, Doc: plain entities, Doc with an ordered relation to Tag
//   - Item: plain entity used by list/create/update scenarios
//   - Article: i18n over ru and en
//   - News: publication over admin and front
//   - Page: i18n and publication together
//   - Note: soft deletion
func SampleEntities() []orm.EntityDecl {
	title := orm.String("title", 255)
	date := orm.Date("date")
	date.Nullable = true

	return []orm.EntityDecl{
		{
			Name:    "Tag",
			DBIDs:   []string{DBMain},
			Columns: []orm.Column{title},
		},
		{
			Name:  "Doc",
			DBIDs: []string{DBMain},
			Columns: []orm.Column{
				title,
				date,
				{Name: "count", Kind: orm.KindInt, Nullable: true},
				{Name: "visible", Kind: orm.KindBool, Default: false},
			},
			Relations: []orm.RelationDecl{{Key: "tags", Remote: "Tag", Ordered: true}},
		},
		{
			Name:    "Item",
			DBIDs:   []string{DBMain},
			Columns: []orm.Column{title, date},
		},
		{
			Name:       "Article",
			DBIDs:      []string{DBMain},
			Langs:      []string{"ru", "en"},
			Columns:    []orm.Column{title, orm.String("title2", 255), date},
			CommonKeys: []string{"date"},
		},
		{
			Name:        "News",
			DBIDs:       []string{DBAdmin, DBFront},
			Columns:     []orm.Column{title, orm.Text("body"), date},
			CommonKeys:  []string{"date"},
			Publication: true,
		},
		{
			Name:        "Page",
			DBIDs:       []string{DBAdmin, DBFront},
			Langs:       []string{"ru", "en"},
			Columns:     []orm.Column{title, date},
			CommonKeys:  []string{"date"},
			Publication: true,
		},
		{
			Name:        "Note",
			DBIDs:       []string{DBMain},
			Columns:     []orm.Column{title},
			MarkDeleted: true,
		},
	}
}
