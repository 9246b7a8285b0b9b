package dependency

import (
	"context"
	"sort"
	"strings"

	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("packhub/dependency")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Packs packdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	packs packdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("dependency.service"),
		packs: p.Packs,
	}
}

type queued struct {
	name  string
	depth int
}

// BuildGraph walks dependencies breadth-first from root. Packs at maxDepth
// still contribute their edges but are not expanded further. It returns nil
// when root is not a registered pack. Dependencies that are not registered
// appear as leaf nodes.
func (s *Service) BuildGraph(ctx context.Context, root string, maxDepth int) (*Graph, error) {
	ctx, span := tracer.Start(ctx, "dependency.build_graph")
	defer span.End()

	root = strings.TrimSpace(root)
	if maxDepth <= 0 || maxDepth > MaxDepth {
		maxDepth = DefaultMaxDepth
	}

	rootPack, err := s.packs.FindByName(ctx, s.db, root)
	if err != nil {
		return nil, err
	}
	if rootPack == nil {
		return nil, nil
	}

	graph := &Graph{
		Root:  root,
		Nodes: []string{root},
		Edges: []Edge{},
	}
	seen := map[string]struct{}{root: {}}
	queue := []queued{{name: root, depth: 0}}
	lookups := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth > graph.Depth {
			graph.Depth = current.depth
		}

		var deps []string
		if current.name == root {
			deps = rootPack.Dependencies
		} else {
			pack, err := s.packs.FindByName(ctx, s.db, current.name)
			if err != nil {
				return nil, err
			}
			lookups++
			if pack != nil {
				deps = pack.Dependencies
			}
		}

		for _, dep := range packdomain.CleanList(deps) {
			graph.Edges = append(graph.Edges, Edge{From: current.name, To: dep})
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			graph.Nodes = append(graph.Nodes, dep)
			if current.depth < maxDepth {
				queue = append(queue, queued{name: dep, depth: current.depth + 1})
			}
		}
	}

	span.SetAttributes(
		attribute.String("pack", root),
		attribute.Int("nodes", len(graph.Nodes)),
		attribute.Int("edges", len(graph.Edges)),
		attribute.Int("depth", graph.Depth),
	)
	s.log.Debug("dependency graph built",
		zap.String("pack", root),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("lookups", lookups),
	)
	return graph, nil
}

// ReverseDependencies lists packs that depend on name, most downloaded first.
func (s *Service) ReverseDependencies(ctx context.Context, name string) ([]packdomain.Dependent, error) {
	name = strings.TrimSpace(name)
	packs, err := s.packs.ListAll(ctx, s.db)
	if err != nil {
		return nil, err
	}

	out := []packdomain.Dependent{}
	for _, pack := range packs {
		for _, dep := range pack.Dependencies {
			if strings.TrimSpace(dep) == name {
				out = append(out, packdomain.Dependent{Name: pack.Name, Downloads: pack.Downloads})
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Downloads != out[j].Downloads {
			return out[i].Downloads > out[j].Downloads
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
