package router

import (
	"maps"

	"github.com/nhle/finance-dashboard/internal/model"
)

// Policy is the escalation matrix.
//
// Types switches whole categories off; a type absent from Types is
// enabled. Matrix overrides the per-priority default for single cells.
// Without an override, high and medium escalate and low does not.
type Policy struct {
	Types  map[model.Type]bool
	Matrix map[model.Priority]map[model.Type]bool
}

// DefaultPolicy enables every type with no overrides.
func DefaultPolicy() Policy {
	return Policy{
		Types:  map[model.Type]bool{},
		Matrix: map[model.Priority]map[model.Type]bool{},
	}
}

// PolicyFromConfig builds a Policy from the escalation config section.
// Config keys are validated when the config is loaded.
func PolicyFromConfig(cfg model.EscalationConfig) Policy {
	p := DefaultPolicy()
	for t, enabled := range cfg.Types {
		p.Types[model.Type(t)] = enabled
	}
	for prio, row := range cfg.Matrix {
		cells := make(map[model.Type]bool, len(row))
		for t, on := range row {
			cells[model.Type(t)] = on
		}
		p.Matrix[model.Priority(prio)] = cells
	}
	return p
}

// Disable switches type t off for every priority.
func (p Policy) Disable(t model.Type) Policy {
	p = p.clone()
	p.Types[t] = false
	return p
}

// Set overrides the cell for priority prio and type t.
func (p Policy) Set(prio model.Priority, t model.Type, escalate bool) Policy {
	p = p.clone()
	if p.Matrix[prio] == nil {
		p.Matrix[prio] = map[model.Type]bool{}
	}
	p.Matrix[prio][t] = escalate
	return p
}

// Allows reports whether a notification of type t and priority prio is
// escalated.
func (p Policy) Allows(t model.Type, prio model.Priority) bool {
	if enabled, ok := p.Types[t]; ok && !enabled {
		return false
	}
	if cell, ok := p.Matrix[prio][t]; ok {
		return cell
	}

	switch prio {
	case model.PriorityHigh, model.PriorityMedium:
		return true
	default:
		return false
	}
}

func (p Policy) clone() Policy {
	out := Policy{
		Types:  maps.Clone(p.Types),
		Matrix: make(map[model.Priority]map[model.Type]bool, len(p.Matrix)),
	}
	if out.Types == nil {
		out.Types = map[model.Type]bool{}
	}
	for prio, row := range p.Matrix {
		out.Matrix[prio] = maps.Clone(row)
	}
	return out
}
