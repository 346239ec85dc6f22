// Package merging implements transactional account consolidation
package merging

import "context"

// Reassigner re-points one kind of dependent row from a merged-away account
// to the surviving one. Every implementation runs inside the merge
// transaction, against the context transaction, not its own connection.
type Reassigner interface {
	// Name identifies the dependent kind in merge results and audits
	Name() string
	// Reassign moves rows from sourceID to targetID and returns how many moved
	Reassign(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, error)
}

// Registry is the ordered set of dependent reassigners a merge runs.
// Registration order is execution order.
type Registry struct {
	reassigners []Reassigner
}

// NewRegistry creates a registry from the given reassigners
func NewRegistry(reassigners ...Reassigner) *Registry {
	return &Registry{reassigners: reassigners}
}

// Register appends a reassigner
func (r *Registry) Register(reassigner Reassigner) {
	r.reassigners = append(r.reassigners, reassigner)
}

// All returns the reassigners in registration order
func (r *Registry) All() []Reassigner {
	return r.reassigners
}
