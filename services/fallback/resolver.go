package fallback

// Graph exposes the declared fallbacks of each model.
type Graph interface {
	FirstFallback(id string) (string, bool)
}

// HealthView reports advisory model health.
type HealthView interface {
	IsHealthy(id string) bool
}

// Resolver expands a preferred model into the ordered chain of models to try.
type Resolver struct {
	graph Graph
}

// NewResolver creates a resolver over graph
func NewResolver(graph Graph) *Resolver {
	return &Resolver{graph: graph}
}

// Resolve returns [preferred, fb1, fb2, ...] where each element is the first
// declared fallback of the previous one. Expansion stops at a model with no
// fallback or when a model would repeat, so the chain is finite and free of
// duplicates. Unknown IDs resolve to [preferred].
func (r *Resolver) Resolve(preferred string) []string {
	chain := []string{preferred}
	seen := map[string]struct{}{preferred: {}}

	current := preferred
	for {
		next, ok := r.graph.FirstFallback(current)
		if !ok {
			return chain
		}
		if _, dup := seen[next]; dup {
			return chain
		}
		seen[next] = struct{}{}
		chain = append(chain, next)
		current = next
	}
}

// HealthyFirst stable-partitions chain so models health reports as unhealthy
// come after the healthy ones. Every model is kept.
func HealthyFirst(chain []string, health HealthView) []string {
	ordered := make([]string, 0, len(chain))
	var unhealthy []string
	for _, id := range chain {
		if health.IsHealthy(id) {
			ordered = append(ordered, id)
		} else {
			unhealthy = append(unhealthy, id)
		}
	}
	return append(ordered, unhealthy...)
}
