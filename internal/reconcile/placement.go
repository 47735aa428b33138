package reconcile

import (
	"sort"

	"github.com/tordrt/reintrospect/internal/dsl"
)

// placeFields orders the fields of m.
//
// Scalar fields come first in catalog column order. Relation and backref
// fields that move go to the bottom, forward relations before backrefs,
// each in catalog foreign-key order. Fields that keep their position are
// then inserted after the nearest field that preceded them in the prior
// document and survived, or at the front when there is none. Links to
// models outside the table filter always keep their position.
func (p *pass) placeFields(m *modelPlan) {
	list := append([]*plannedField(nil), m.scalars...)
	anchored := append([]*plannedField(nil), m.kept...)

	for _, r := range m.forward {
		if r.forward.anchored {
			anchored = append(anchored, r.forward)
		} else {
			list = append(list, r.forward)
		}
	}
	for _, r := range m.back {
		if r.backref.anchored {
			anchored = append(anchored, r.backref)
		} else {
			list = append(list, r.backref)
		}
	}

	if len(anchored) > 0 {
		priorIndex := make(map[*dsl.Field]int, len(m.prior.Fields))
		for i, f := range m.prior.Fields {
			priorIndex[f] = i
		}
		sort.SliceStable(anchored, func(i, j int) bool {
			return priorIndex[anchored[i].prior] < priorIndex[anchored[j].prior]
		})
		for _, a := range anchored {
			list = insertAfterPredecessor(list, a, m.prior.Fields[:priorIndex[a.prior]])
		}
	}

	m.model.Fields = make([]*dsl.Field, len(list))
	for i, pf := range list {
		m.model.Fields[i] = pf.field
	}
}

// insertAfterPredecessor inserts a after the last of predecessors present in list.
func insertAfterPredecessor(list []*plannedField, a *plannedField, predecessors []*dsl.Field) []*plannedField {
	pos := 0
	for j := len(predecessors) - 1; j >= 0 && pos == 0; j-- {
		for i, pf := range list {
			if pf.prior == predecessors[j] {
				pos = i + 1
				break
			}
		}
	}
	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = a
	return list
}
