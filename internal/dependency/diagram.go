package dependency

import (
	"fmt"
	"strings"
)

// ToDiagram renders g as a mermaid flowchart. Output depends only on the
// order of nodes and edges.
func ToDiagram(g *Graph) string {
	if g == nil {
		return ""
	}

	ids := make(map[string]string, len(g.Nodes))
	used := make(map[string]struct{}, len(g.Nodes))
	idFor := func(name string) string {
		if id, ok := ids[name]; ok {
			return id
		}
		base := sanitizeID(name)
		id := base
		for n := 2; ; n++ {
			if _, taken := used[id]; !taken {
				break
			}
			id = fmt.Sprintf("%s_%d", base, n)
		}
		used[id] = struct{}{}
		ids[name] = id
		return id
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, node := range g.Nodes {
		fmt.Fprintf(&b, "  %s[\"%s\"]\n", idFor(node), strings.ReplaceAll(node, `"`, "#quot;"))
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %s --> %s\n", idFor(e.From), idFor(e.To))
	}
	return b.String()
}

func sanitizeID(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "node"
	}
	return b.String()
}
