package agent

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/sirupsen/logrus"
)

// Registry maps agent identifiers to the policies of other agents on
// the same team. An identifier is bound to the first policy linked
// under it and cannot be rebound.
//
// Policies are compared by identity, so they should be pointer types.
// Policies of types that cannot be compared are never the same policy.
type Registry struct {
	policies map[string]Policy
	log      logrus.FieldLogger
}

// NewRegistry returns a new, empty Registry
func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		policies: make(map[string]Policy),
		log:      log,
	}
}

// Link binds id to p. Linking the policy already bound to id again is a
// no-op. Linking a different policy under a bound id returns an error
// wrapping ErrDuplicateRegistration and leaves the Registry unchanged.
func (r *Registry) Link(id string, p Policy) error {
	if p == nil {
		return fmt.Errorf("link: cannot link nil policy for agent %q", id)
	}

	if existing, ok := r.policies[id]; ok {
		if !samePolicy(existing, p) {
			return fmt.Errorf("link: %w: agent %q is bound to another policy",
				ErrDuplicateRegistration, id)
		}
		return nil
	}

	r.policies[id] = p
	r.log.WithField("agent", id).Debug("linked policy")
	return nil
}

func samePolicy(a, b Policy) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Lookup returns the policy bound to id
func (r *Registry) Lookup(id string) (Policy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// IDs returns the bound identifiers in sorted order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of bound identifiers
func (r *Registry) Len() int {
	return len(r.policies)
}
