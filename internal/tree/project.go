package tree

import (
	"sort"
	"strings"

	"github.com/vbonduro/homeinv/internal/domain"
)

// PathSeparator joins location names in a materialized path.
const PathSeparator = " / "

type CategoryNode struct {
	domain.Category
	ItemCount int             `json:"item_count"`
	Children  []*CategoryNode `json:"children"`
}

// Categories builds the category forest and counts the non-archived items
// filed directly under each category.
func Categories(cats []domain.Category, items []domain.Item) ([]*CategoryNode, error) {
	roots, err := Build(cats)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, it := range items {
		if it.IsArchived || it.CategoryID == nil {
			continue
		}
		counts[*it.CategoryID]++
	}

	var convert func(nodes []*Node[domain.Category]) []*CategoryNode
	convert = func(nodes []*Node[domain.Category]) []*CategoryNode {
		out := make([]*CategoryNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, &CategoryNode{
				Category:  n.Value,
				ItemCount: counts[n.Value.ID],
				Children:  convert(n.Children),
			})
		}
		return out
	}
	return convert(roots), nil
}

type LocationNode struct {
	domain.Location
	Children []*LocationNode `json:"children"`
}

func Locations(locs []domain.Location) ([]*LocationNode, error) {
	roots, err := Build(locs)
	if err != nil {
		return nil, err
	}

	var convert func(nodes []*Node[domain.Location]) []*LocationNode
	convert = func(nodes []*Node[domain.Location]) []*LocationNode {
		out := make([]*LocationNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, &LocationNode{Location: n.Value, Children: convert(n.Children)})
		}
		return out
	}
	return convert(roots), nil
}

// LocationOption is a flattened location for selection lists.
type LocationOption struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullPath string `json:"full_path"`
	Depth    int    `json:"depth"`
}

// LocationOptions flattens locations ordered by full path. The cached path
// is used when present, otherwise the bare name.
func LocationOptions(locs []domain.Location) []LocationOption {
	out := make([]LocationOption, 0, len(locs))
	for _, l := range locs {
		full := l.Name
		if l.Path != nil && *l.Path != "" {
			full = *l.Path
		}
		out = append(out, LocationOption{ID: l.ID, Name: l.Name, FullPath: full, Depth: l.Depth})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FullPath < out[j].FullPath
	})
	return out
}

// PathInfo is a recomputed materialized path.
type PathInfo struct {
	Path  string
	Depth int
}

// ComputePaths derives the path and depth of every location from its
// ancestry. Roots have depth 0.
func ComputePaths(locs []domain.Location) (map[string]PathInfo, error) {
	roots, err := Build(locs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]PathInfo, len(locs))
	var visit func(nodes []*Node[domain.Location], prefix []string)
	visit = func(nodes []*Node[domain.Location], prefix []string) {
		for _, n := range nodes {
			names := append(append([]string(nil), prefix...), n.Value.Name)
			out[n.Value.ID] = PathInfo{Path: strings.Join(names, PathSeparator), Depth: len(prefix)}
			visit(n.Children, names)
		}
	}
	visit(roots, nil)
	return out, nil
}

// WouldCycle reports whether giving node id the parent newParent creates a
// cycle among nodes.
func WouldCycle[T Hierarchical](nodes []T, id string, newParent *string) bool {
	if newParent == nil {
		return false
	}
	parents := make(map[string]*string, len(nodes))
	for _, n := range nodes {
		parents[n.NodeID()] = n.NodeParentID()
	}

	seen := map[string]bool{id: true}
	cur := *newParent
	for {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		pid, ok := parents[cur]
		if !ok || pid == nil {
			return false
		}
		cur = *pid
	}
}
