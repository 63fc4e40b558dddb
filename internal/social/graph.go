package social

// NeighborSource exposes directed adjacency for reachability queries.
// Unknown names must return an empty neighbor list, not an error.
type NeighborSource interface {
	Neighbors(name string) []string
}

// Adjacency is a map-backed NeighborSource, mainly for tests and
// offline analysis.
type Adjacency map[string][]string

// Neighbors returns the outgoing edges of name.
func (a Adjacency) Neighbors(name string) []string {
	return a[name]
}

// Reachable walks outgoing edges breadth-first from start for at most
// depth hops and returns every name reached. Depth zero or negative
// reaches nothing. The start node appears in the result only when a
// cycle leads back to it. Cycles terminate because each node is
// expanded at most once.
func Reachable(src NeighborSource, start string, depth int) map[string]struct{} {
	reached := make(map[string]struct{})
	if src == nil || depth <= 0 {
		return reached
	}

	visited := map[string]struct{}{start: {}}
	frontier := []string{start}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, name := range frontier {
			for _, peer := range src.Neighbors(name) {
				reached[peer] = struct{}{}
				if _, seen := visited[peer]; seen {
					continue
				}
				visited[peer] = struct{}{}
				next = append(next, peer)
			}
		}
		frontier = next
	}
	return reached
}
