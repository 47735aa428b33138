package reconcile

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tordrt/reintrospect/internal/catalog"
	"github.com/tordrt/reintrospect/internal/dsl"
)

// relation links an owning model to a target model over column lists.
// fk is nil for emulated relations, which exist only in the prior document.
type relation struct {
	owner, target *modelPlan
	columns       []string
	refColumns    []string
	fk            *catalog.ForeignKey

	prior        *dsl.Field
	priorBackref *dsl.Field

	name    string
	forward *plannedField
	backref *plannedField
}

// keepsPosition reports whether the relation's fields stay where they were
// authored. Enforced relations move to the bottom unless relations are emulated.
func (p *pass) keepsPosition(r *relation) bool {
	return r.fk == nil || p.mode.Emulated()
}

// matchRelations collects every relation of the output: one per catalog
// foreign key, plus the prior relations without a foreign key that can
// still be matched against the catalog.
func (p *pass) matchRelations() {
	used := make(map[*dsl.Field]bool)

	for _, m := range p.models {
		for _, fk := range m.table.ForeignKeys() {
			r := &relation{
				owner:      m,
				target:     p.byTable[fk.ReferencedTable],
				columns:    fk.Columns,
				refColumns: fk.ReferencedColumns,
				fk:         fk,
			}
			r.prior = p.priorRelationField(r.owner, r.target, fk, used)
			p.relations = append(p.relations, r)
		}
	}

	for _, m := range p.models {
		if m.prior == nil {
			continue
		}
		for _, f := range m.prior.Fields {
			if p.unselected[f.Type.Name] != nil && f.Kind != dsl.ScalarField {
				p.keepUnselectedLink(m, f)
				continue
			}
			if f.Kind != dsl.RelationField || used[f] {
				continue
			}
			r, reason := p.emulatedRelation(m, f)
			if r == nil {
				m.logger(p.log).WithFields(logrus.Fields{"relation": f.Name, "reason": reason}).
					Debug("dropping unmatchable relation")
				continue
			}
			used[f] = true
			p.relations = append(p.relations, r)
		}
	}

	usedBackrefs := make(map[*dsl.Field]bool)
	for _, r := range p.relations {
		r.owner.forward = append(r.owner.forward, r)
		r.target.back = append(r.target.back, r)
		r.priorBackref = p.priorBackrefField(r, usedBackrefs)
		if r.prior == nil && r.priorBackref == nil {
			r.owner.logger(p.log).WithField("target", r.target.model.Name).Debug("adding relation")
		}
	}
}

// keepUnselectedLink keeps a prior relation or backref field of m whose
// target model is outside the table filter. Relation fields need their
// columns to still exist.
func (p *pass) keepUnselectedLink(m *modelPlan, f *dsl.Field) {
	if f.Kind == dsl.RelationField {
		cols, ok := priorColumns(m.prior, f.Relation.Fields)
		if !ok || !hasColumns(m.table, cols) {
			m.logger(p.log).WithFields(logrus.Fields{"relation": f.Name, "reason": "fields do not exist"}).
				Debug("dropping unmatchable relation")
			return
		}
	}
	m.kept = append(m.kept, &plannedField{field: copyField(f), prior: f, anchored: true})
}

// priorRelationField finds the unused prior relation field of owner that
// maps the same column pairs as fk.
func (p *pass) priorRelationField(owner, target *modelPlan, fk *catalog.ForeignKey, used map[*dsl.Field]bool) *dsl.Field {
	if owner.prior == nil || target.prior == nil {
		return nil
	}
	for _, f := range owner.prior.Fields {
		if f.Kind != dsl.RelationField || used[f] || f.Type.Name != target.prior.Name {
			continue
		}
		cols, ok := priorColumns(owner.prior, f.Relation.Fields)
		if !ok {
			continue
		}
		refs, ok := priorColumns(target.prior, f.Relation.References)
		if !ok {
			continue
		}
		if fk.Pairs(cols, refs) {
			used[f] = true
			return f
		}
	}
	return nil
}

// emulatedRelation matches a prior relation field that has no foreign key.
// It returns nil and the reason when the relation cannot be matched.
func (p *pass) emulatedRelation(owner *modelPlan, f *dsl.Field) (*relation, string) {
	target := p.byPriorName[f.Type.Name]
	if target == nil {
		return nil, "target model has no table"
	}
	if p.mode != nil && p.mode.Legacy && (owner.prior.DBName != "" || target.prior.DBName != "") {
		// The legacy setting cannot bridge @@map renames without a foreign key.
		return nil, "legacy relation mode with renamed model"
	}

	cols, ok := priorColumns(owner.prior, f.Relation.Fields)
	if !ok || !hasColumns(owner.table, cols) {
		return nil, "fields do not exist"
	}
	refs, ok := priorColumns(target.prior, f.Relation.References)
	if !ok || !hasColumns(target.table, refs) {
		return nil, "references do not exist"
	}
	if len(p.cat.ForeignKeysOn(owner.table.Name, cols)) > 0 {
		return nil, "a foreign key on the same columns references another table"
	}
	if !p.cat.IsUnique(target.table.Name, refs) {
		return nil, "references are not unique"
	}

	return &relation{
		owner:      owner,
		target:     target,
		columns:    cols,
		refColumns: refs,
		prior:      f,
	}, ""
}

func hasColumns(t *catalog.Table, columns []string) bool {
	for _, c := range columns {
		if t.Column(c) == nil {
			return false
		}
	}
	return true
}

// priorBackrefField finds the prior back side of r in the target model:
// an unused backref typed as the owner, carrying the same relation name.
func (p *pass) priorBackrefField(r *relation, used map[*dsl.Field]bool) *dsl.Field {
	if r.target.prior == nil || r.owner.prior == nil {
		return nil
	}
	name := ""
	if r.prior != nil {
		name = r.prior.Relation.Name
	}
	for _, f := range r.target.prior.Fields {
		if f.Kind != dsl.BackrefField || used[f] || f.Type.Name != r.owner.prior.Name || f.Relation.Name != name {
			continue
		}
		used[f] = true
		return f
	}
	return nil
}

// buildRelations names every relation and builds both of its fields.
func (p *pass) buildRelations() {
	pairs := make(map[string]int)
	for _, r := range p.relations {
		pairs[pairKey(r)]++
	}

	for _, r := range p.relations {
		fields := r.owner.columnsToFields(r.columns)
		refs := r.target.columnsToFields(r.refColumns)

		switch {
		case r.prior != nil && r.prior.Relation.Name != "":
			r.name = r.prior.Relation.Name
		case r.priorBackref != nil && r.priorBackref.Relation.Name != "":
			r.name = r.priorBackref.Relation.Name
		case pairs[pairKey(r)] > 1 || r.owner == r.target:
			r.name = r.owner.model.Name + "_" + strings.Join(fields, "_") + "To" + r.target.model.Name
		}

		r.forward = p.forwardField(r, fields, refs)
		r.backref = p.backrefField(r, fields)
	}
}

// pairKey identifies the unordered pair of tables a relation connects.
func pairKey(r *relation) string {
	tables := []string{r.owner.table.Name, r.target.table.Name}
	sort.Strings(tables)
	return tables[0] + "\x00" + tables[1]
}

func (p *pass) forwardField(r *relation, fields, refs []string) *plannedField {
	optional := false
	for _, c := range r.columns {
		if r.owner.table.Column(c).Nullable {
			optional = true
		}
	}

	f := &dsl.Field{
		Kind:     dsl.RelationField,
		Type:     dsl.FieldType{Name: r.target.model.Name},
		Relation: &dsl.Relation{Name: r.name, Fields: fields, References: refs},
	}
	if optional {
		f.Type.Arity = dsl.Optional
	}

	attr := &dsl.Attribute{Name: "relation"}
	if r.name != "" {
		attr.Args = append(attr.Args, &dsl.Arg{Value: dsl.String(r.name)})
	}
	attr.Args = append(attr.Args,
		&dsl.Arg{Name: "fields", Value: dsl.IdentList(fields)},
		&dsl.Arg{Name: "references", Value: dsl.IdentList(refs)},
	)
	attr.Args = append(attr.Args, p.referentialArgs(r, optional)...)
	f.Attributes = []*dsl.Attribute{attr}

	if r.prior != nil {
		f.Name = r.prior.Name
		f.Documentation = r.prior.Documentation
		if a := r.prior.Attribute("ignore"); a != nil {
			f.Attributes = append(f.Attributes, a)
		}
	} else {
		f.Name = r.owner.fieldNames.claim(
			p.naming.relationFieldName(r.target.model.Name),
			r.target.model.Name+"_"+strings.Join(fields, "_"),
		)
	}

	return &plannedField{field: f, prior: r.prior, anchored: r.prior != nil && p.keepsPosition(r)}
}

// referentialArgs renders onDelete, onUpdate and map arguments. For
// foreign keys they are derived from the catalog and omitted when they
// match the defaults; emulated relations keep what was authored.
func (p *pass) referentialArgs(r *relation, optional bool) []*dsl.Arg {
	var args []*dsl.Arg
	if r.fk == nil {
		if r.prior == nil {
			return nil
		}
		attr := r.prior.Attribute("relation")
		for _, name := range []string{"onDelete", "onUpdate", "map"} {
			if v := attr.Arg(name, -1); v != nil {
				args = append(args, &dsl.Arg{Name: name, Value: v})
			}
		}
		return args
	}

	onDelete := actionName(r.fk.OnDelete)
	if onDelete != p.defaultOnDelete(optional) {
		args = append(args, &dsl.Arg{Name: "onDelete", Value: &dsl.ConstExpr{Name: onDelete}})
	}
	if onUpdate := actionName(r.fk.OnUpdate); onUpdate != "Cascade" {
		args = append(args, &dsl.Arg{Name: "onUpdate", Value: &dsl.ConstExpr{Name: onUpdate}})
	}
	if p.explicitName(r.fk.Name, defaultForeignKeyName(r.owner.table.Name, r.columns)) {
		args = append(args, &dsl.Arg{Name: "map", Value: dsl.String(r.fk.Name)})
	}
	return args
}

func (p *pass) defaultOnDelete(optional bool) string {
	switch {
	case optional:
		return "SetNull"
	case p.provider == "sqlserver":
		return "NoAction"
	}
	return "Restrict"
}

func actionName(a catalog.ReferentialAction) string {
	switch a {
	case catalog.Restrict:
		return "Restrict"
	case catalog.Cascade:
		return "Cascade"
	case catalog.SetNull:
		return "SetNull"
	case catalog.SetDefault:
		return "SetDefault"
	}
	return "NoAction"
}

func (p *pass) backrefField(r *relation, fields []string) *plannedField {
	f := &dsl.Field{
		Kind:     dsl.BackrefField,
		Type:     dsl.FieldType{Name: r.owner.model.Name, Arity: dsl.List},
		Relation: &dsl.Relation{Name: r.name},
	}
	if p.cat.IsUnique(r.owner.table.Name, r.columns) {
		f.Type.Arity = dsl.Optional
	}
	if r.name != "" {
		f.Attributes = []*dsl.Attribute{{Name: "relation", Args: []*dsl.Arg{{Value: dsl.String(r.name)}}}}
	}

	if r.priorBackref != nil {
		f.Name = r.priorBackref.Name
		f.Documentation = r.priorBackref.Documentation
		if a := r.priorBackref.Attribute("ignore"); a != nil {
			f.Attributes = append(f.Attributes, a)
		}
	} else {
		f.Name = r.target.fieldNames.claim(
			p.naming.backrefName(r.owner.model.Name, f.Type.Arity == dsl.List),
			r.owner.model.Name+"_"+strings.Join(fields, "_"),
		)
	}

	return &plannedField{field: f, prior: r.priorBackref, anchored: r.priorBackref != nil && p.keepsPosition(r)}
}
