// Package dependency resolves the dependency graph recorded on packs.
package dependency

const (
	DefaultMaxDepth = 10
	MaxDepth        = 10
)

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is derived on demand from stored dependency lists and never persisted.
type Graph struct {
	Root  string   `json:"root"`
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
	Depth int      `json:"depth"`
}

// DetectCycles returns the first cycle found as the path from the repeated
// node back to itself, e.g. [a b a]. It returns nil for an acyclic graph.
// Nodes are visited in node order and neighbours in edge order.
func DetectCycles(g *Graph) []string {
	if g == nil {
		return nil
	}

	adjacency := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.Nodes))
	path := make([]string, 0, len(g.Nodes))

	var visit func(node string) []string
	visit = func(node string) []string {
		state[node] = onStack
		path = append(path, node)
		for _, next := range adjacency[node] {
			switch state[next] {
			case onStack:
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] == next {
						cycle := make([]string, 0, len(path)-i+1)
						cycle = append(cycle, path[i:]...)
						return append(cycle, next)
					}
				}
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[node] = done
		return nil
	}

	for _, node := range g.Nodes {
		if state[node] != unvisited {
			continue
		}
		if cycle := visit(node); cycle != nil {
			return cycle
		}
	}
	return nil
}
