package gate

import (
	"sync"

	"github.com/palisadehq/palisade/pkg/secmodel"
)

// routeRule binds a path pattern to the permissions that open it. Patterns
// use the secured-path syntax, including the optional "METHOD " prefix.
type routeRule struct {
	pattern     string
	permissions []string
}

// RouteRegistry maps routes to required permissions. A request matching a
// rule is allowed if the caller holds at least one of the rule's permissions.
type RouteRegistry struct {
	mu    sync.RWMutex
	rules []routeRule
}

// NewRouteRegistry creates an empty registry.
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{}
}

// Require declares that requests matching pattern need one of the given
// permissions. Rules are evaluated in declaration order; the first match
// wins.
func (r *RouteRegistry) Require(pattern string, permissions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, routeRule{
		pattern:     pattern,
		permissions: append([]string(nil), permissions...),
	})
}

// PermissionsFor returns the required permissions of the first rule matching
// the request, or nil when no rule matches.
func (r *RouteRegistry) PermissionsFor(method, path string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if secmodel.MatchPath(rule.pattern, path, method) {
			return rule.permissions
		}
	}
	return nil
}
