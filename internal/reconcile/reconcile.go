// Package reconcile merges a live database catalog with a previously
// authored schema document.
//
// The catalog is authoritative for structure: tables, columns, types,
// nullability, keys, indexes and foreign keys are regenerated from it.
// The prior document contributes names, @map/@@map directives,
// documentation, attributes the database cannot express, the position of
// emulated relations, and the datasource and generator configuration.
//
// Reconcile is pure. It performs no I/O and keeps no state between calls,
// so independent passes may run concurrently.
package reconcile

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/tordrt/reintrospect/internal/catalog"
	"github.com/tordrt/reintrospect/internal/dsl"
)

// ErrNoCatalog is returned when Reconcile is called without a catalog.
var ErrNoCatalog = errors.New("reconcile: catalog is required")

// Options configures a reconciliation pass.
type Options struct {
	// Logger receives debug records about lossy decisions. Defaults to a discard logger.
	Logger logrus.FieldLogger
	// Naming is used for tables, columns and enums the prior document does not know.
	Naming Naming
	// Provider overrides the datasource provider of the prior document.
	Provider string
	// Selected reports whether a table was read into the catalog. Prior
	// models of tables it rejects are copied unchanged. Nil selects every table.
	Selected func(table string) bool
}

// pass holds the lookup tables of one reconciliation.
type pass struct {
	cat      *catalog.Catalog
	prior    *dsl.Document
	log      logrus.FieldLogger
	naming   Naming
	provider string
	mode     *dsl.RelationModeSetting
	selected func(table string) bool

	models  []*modelPlan
	byTable map[string]*modelPlan
	// byPriorName resolves prior model names to their plans.
	byPriorName map[string]*modelPlan
	// typeNames holds model and enum names, which share a namespace.
	typeNames nameSet
	// enumBlocks maps catalog enum names to output enums.
	enumBlocks map[string]*dsl.Enum
	keptEnums map[*dsl.Enum]*dsl.Enum
	newEnums  []*dsl.Enum
	// unselected holds copies of prior models outside the table filter, by name.
	unselected map[string]*dsl.Model

	relations []*relation
}

// Reconcile produces a new document describing cat, carrying over the
// intent recorded in prior. A nil prior means a fresh introspection.
// Neither input is modified.
func Reconcile(cat *catalog.Catalog, prior *dsl.Document, opts Options) (*dsl.Document, error) {
	if cat == nil {
		return nil, ErrNoCatalog
	}
	if prior == nil {
		prior = &dsl.Document{}
	}

	p := &pass{
		cat:         cat,
		prior:       prior,
		log:         opts.Logger,
		naming:      opts.Naming,
		provider:    opts.Provider,
		selected:    opts.Selected,
		byTable:     make(map[string]*modelPlan),
		byPriorName: make(map[string]*modelPlan),
		typeNames:   make(nameSet),
		enumBlocks:  make(map[string]*dsl.Enum),
		keptEnums:   make(map[*dsl.Enum]*dsl.Enum),
		unselected:  make(map[string]*dsl.Model),
	}
	if p.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.log = l
	}
	if ds := prior.Datasource(); ds != nil {
		p.mode = ds.RelationMode
		if p.provider == "" {
			p.provider = ds.Provider()
		}
	}

	p.keepUnselected()
	p.planEnums()
	p.planModels()
	for _, m := range p.models {
		p.planScalars(m)
	}
	p.matchRelations()
	p.buildRelations()
	for _, m := range p.models {
		p.placeFields(m)
	}

	return p.document(), nil
}

// document assembles the output blocks: prior blocks in authored order,
// then new models and new enums in catalog order.
func (p *pass) document() *dsl.Document {
	out := &dsl.Document{}

	for _, b := range p.prior.Blocks {
		switch v := b.(type) {
		case *dsl.Datasource:
			out.Blocks = append(out.Blocks, p.datasource(v))
		case *dsl.Generator:
			out.Blocks = append(out.Blocks, &dsl.Generator{
				Name:       v.Name,
				Properties: append([]*dsl.Property(nil), v.Properties...),
			})
		case *dsl.Model:
			if m := p.byPriorName[v.Name]; m != nil {
				out.Blocks = append(out.Blocks, m.model)
			} else if m := p.unselected[v.Name]; m != nil {
				out.Blocks = append(out.Blocks, m)
			}
		case *dsl.Enum:
			if e := p.keptEnums[v]; e != nil {
				out.Blocks = append(out.Blocks, e)
			}
		}
	}
	for _, m := range p.models {
		if m.prior == nil {
			out.Blocks = append(out.Blocks, m.model)
		}
	}
	for _, e := range p.newEnums {
		out.Blocks = append(out.Blocks, e)
	}
	return out
}

// datasource copies the block; the legacy relation-mode key is never re-emitted.
func (p *pass) datasource(ds *dsl.Datasource) *dsl.Datasource {
	out := &dsl.Datasource{
		Name:       ds.Name,
		Properties: append([]*dsl.Property(nil), ds.Properties...),
	}
	if ds.RelationMode != nil {
		if ds.RelationMode.Legacy {
			p.log.WithField("key", dsl.ReferentialIntegrityKey).Debug("dropping legacy relation-mode setting")
		} else {
			setting := *ds.RelationMode
			out.RelationMode = &setting
		}
	}
	return out
}
