package reconcile

import (
	"github.com/sirupsen/logrus"

	"github.com/tordrt/reintrospect/internal/catalog"
	"github.com/tordrt/reintrospect/internal/dsl"
)

// modelPlan is the output model of one catalog table while it is being built.
type modelPlan struct {
	table *catalog.Table
	prior *dsl.Model
	model *dsl.Model

	fieldNames nameSet
	// scalars are in catalog column order.
	scalars []*plannedField
	// fieldByColumn maps column names to output scalar field names.
	fieldByColumn map[string]string
	// priorByColumn maps column names to the prior scalar field mapped to them.
	priorByColumn map[string]*dsl.Field

	forward []*relation
	back    []*relation
	// kept are prior relation and backref fields typed as unselected models.
	kept []*plannedField
}

// plannedField is an output field with the prior field it was derived from.
type plannedField struct {
	field *dsl.Field
	prior *dsl.Field
	// anchored fields keep their authored position.
	anchored bool
}

func (m *modelPlan) logger(log logrus.FieldLogger) logrus.FieldLogger {
	return log.WithFields(logrus.Fields{"model": m.model.Name, "table": m.table.Name})
}

// columnsToFields maps column names to field names of the output model.
func (m *modelPlan) columnsToFields(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = m.fieldByColumn[c]
	}
	return out
}

// priorColumns resolves prior field names of the model to column names.
// ok is false if a name is not a prior scalar field.
func priorColumns(m *dsl.Model, fields []string) (columns []string, ok bool) {
	for _, name := range fields {
		f := m.Field(name)
		if f == nil || f.Kind != dsl.ScalarField {
			return nil, false
		}
		columns = append(columns, f.ColumnName())
	}
	return columns, true
}

// keepUnselected copies the prior models whose table is absent from the
// catalog because the table filter rejected it.
func (p *pass) keepUnselected() {
	if p.selected == nil {
		return
	}
	for _, m := range p.prior.Models() {
		table := m.TableName()
		if p.cat.Table(table) != nil || p.selected(table) {
			continue
		}
		if _, dup := p.unselected[m.Name]; dup {
			continue
		}
		p.log.WithFields(logrus.Fields{"model": m.Name, "table": table}).Debug("keeping model, table not selected")
		p.unselected[m.Name] = copyModel(m)
	}
}

// copyModel copies m and its fields.
func copyModel(m *dsl.Model) *dsl.Model {
	out := &dsl.Model{
		Name:          m.Name,
		DBName:        m.DBName,
		Documentation: m.Documentation,
		Attributes:    append([]*dsl.Attribute(nil), m.Attributes...),
	}
	for _, f := range m.Fields {
		out.Fields = append(out.Fields, copyField(f))
	}
	return out
}

func copyField(f *dsl.Field) *dsl.Field {
	out := *f
	out.Attributes = append([]*dsl.Attribute(nil), f.Attributes...)
	if f.Relation != nil {
		rel := *f.Relation
		rel.Fields = append([]string(nil), f.Relation.Fields...)
		rel.References = append([]string(nil), f.Relation.References...)
		out.Relation = &rel
	}
	return &out
}

// planModels pairs catalog tables with prior models and names new models.
// Plans are kept in catalog order.
func (p *pass) planModels() {
	priorByTable := make(map[string]*dsl.Model)
	for _, m := range p.prior.Models() {
		table := m.TableName()
		if _, ok := p.unselected[m.Name]; ok {
			continue
		}
		if p.cat.Table(table) == nil {
			p.log.WithFields(logrus.Fields{"model": m.Name, "table": table}).Debug("dropping model, table does not exist")
			continue
		}
		if _, dup := priorByTable[table]; dup {
			p.log.WithFields(logrus.Fields{"model": m.Name, "table": table}).Debug("dropping model, table already mapped")
			continue
		}
		priorByTable[table] = m
	}

	for _, t := range p.cat.Tables() {
		plan := &modelPlan{
			table:         t,
			fieldNames:    make(nameSet),
			fieldByColumn: make(map[string]string),
			priorByColumn: make(map[string]*dsl.Field),
		}
		if prior := priorByTable[t.Name]; prior != nil {
			plan.prior = prior
			plan.model = &dsl.Model{
				Name:          prior.Name,
				DBName:        prior.DBName,
				Documentation: prior.Documentation,
			}
			p.byPriorName[prior.Name] = plan
		} else {
			name := p.typeNames.claim(p.naming.modelName(t.Name))
			plan.model = &dsl.Model{Name: name}
			if name != t.Name {
				plan.model.DBName = t.Name
			}
		}
		p.models = append(p.models, plan)
		p.byTable[t.Name] = plan
	}
}

func (p *pass) nativeEnums() bool {
	switch p.provider {
	case "postgresql", "postgres", "cockroachdb", "mysql":
		return true
	}
	return false
}

// planEnums regenerates enums from the catalog on providers with native
// enums. Elsewhere prior enums pass through unchanged.
func (p *pass) planEnums() {
	for _, m := range p.prior.Models() {
		p.typeNames.reserve(m.Name)
	}
	for _, e := range p.prior.Enums() {
		p.typeNames.reserve(e.Name)
	}

	if !p.nativeEnums() {
		for _, e := range p.prior.Enums() {
			out := copyEnum(e)
			p.keptEnums[e] = out
			p.enumBlocks[e.TypeName()] = out
		}
		return
	}

	referenced := make(map[string]bool)
	for _, m := range p.unselected {
		for _, f := range m.Fields {
			referenced[f.Type.Name] = true
		}
	}

	matched := make(map[string]bool)
	for _, prior := range p.prior.Enums() {
		ce, ok := p.cat.Enum(prior.TypeName())
		if !ok && referenced[prior.Name] {
			p.log.WithField("enum", prior.Name).Debug("keeping enum of an unselected model")
			out := copyEnum(prior)
			p.keptEnums[prior] = out
			p.enumBlocks[prior.TypeName()] = out
			continue
		}
		if !ok || matched[ce.Name] {
			p.log.WithField("enum", prior.Name).Debug("dropping enum, type does not exist")
			continue
		}
		matched[ce.Name] = true
		out := &dsl.Enum{
			Name:          prior.Name,
			DBName:        prior.DBName,
			Documentation: prior.Documentation,
			Attributes:    append([]*dsl.Attribute(nil), prior.Attributes...),
			Values:        enumValues(ce, prior),
		}
		p.keptEnums[prior] = out
		p.enumBlocks[ce.Name] = out
	}

	for _, ce := range p.cat.Enums() {
		if matched[ce.Name] {
			continue
		}
		name := p.typeNames.claim(p.naming.enumName(ce.Name))
		out := &dsl.Enum{Name: name, Values: enumValues(ce, nil)}
		if name != ce.Name {
			out.DBName = ce.Name
		}
		p.newEnums = append(p.newEnums, out)
		p.enumBlocks[ce.Name] = out
	}
}

// enumValues builds the members of ce in catalog order, keeping the names
// prior gave to existing database values.
func enumValues(ce catalog.Enum, prior *dsl.Enum) []*dsl.EnumValue {
	names := make(nameSet)
	priorByValue := make(map[string]*dsl.EnumValue)
	if prior != nil {
		for _, v := range prior.Values {
			priorByValue[v.DBValue()] = v
			names.reserve(v.Name)
		}
	}

	out := make([]*dsl.EnumValue, 0, len(ce.Values))
	for _, value := range ce.Values {
		if v := priorByValue[value]; v != nil {
			out = append(out, &dsl.EnumValue{Name: v.Name, Attributes: append([]*dsl.Attribute(nil), v.Attributes...)})
			continue
		}
		name := names.claim(sanitize(value))
		v := &dsl.EnumValue{Name: name}
		if name != value {
			v.Attributes = []*dsl.Attribute{mapAttribute(value)}
		}
		out = append(out, v)
	}
	return out
}

func copyEnum(e *dsl.Enum) *dsl.Enum {
	out := &dsl.Enum{
		Name:          e.Name,
		DBName:        e.DBName,
		Documentation: e.Documentation,
		Attributes:    append([]*dsl.Attribute(nil), e.Attributes...),
	}
	for _, v := range e.Values {
		out.Values = append(out.Values, &dsl.EnumValue{Name: v.Name, Attributes: append([]*dsl.Attribute(nil), v.Attributes...)})
	}
	return out
}

func mapAttribute(name string) *dsl.Attribute {
	return &dsl.Attribute{Name: "map", Args: []*dsl.Arg{{Value: dsl.String(name)}}}
}
