// Package tree projects flat parent-referencing lists into forests.
package tree

import (
	"fmt"
	"sort"
	"strings"
)

// Hierarchical is a node in a parent-referencing list.
type Hierarchical interface {
	NodeID() string
	NodeParentID() *string
	NodeSortKey() int
}

// CyclicHierarchyError reports a parent chain that loops back on itself.
type CyclicHierarchyError struct {
	IDs []string
}

func (e *CyclicHierarchyError) Error() string {
	return fmt.Sprintf("cyclic hierarchy: %s", strings.Join(e.IDs, " -> "))
}

type Node[T Hierarchical] struct {
	Value    T
	Children []*Node[T]
}

// Build turns nodes into a forest. Children are ordered by sort key with
// input order kept among equal keys. A node whose parent is missing becomes
// a root.
func Build[T Hierarchical](nodes []T) ([]*Node[T], error) {
	if err := checkCycles(nodes); err != nil {
		return nil, err
	}

	byID := make(map[string]*Node[T], len(nodes))
	for _, n := range nodes {
		byID[n.NodeID()] = &Node[T]{Value: n}
	}

	var roots []*Node[T]
	for _, n := range nodes {
		node := byID[n.NodeID()]
		if pid := n.NodeParentID(); pid != nil {
			if parent, ok := byID[*pid]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	sortNodes(roots)
	return roots, nil
}

func sortNodes[T Hierarchical](nodes []*Node[T]) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Value.NodeSortKey() < nodes[j].Value.NodeSortKey()
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// checkCycles follows every parent chain with a visited set.
func checkCycles[T Hierarchical](nodes []T) error {
	parents := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if pid := n.NodeParentID(); pid != nil {
			parents[n.NodeID()] = *pid
		}
	}

	cleared := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		seen := map[string]int{}
		var chain []string
		id := n.NodeID()
		for {
			if cleared[id] {
				break
			}
			if at, ok := seen[id]; ok {
				return &CyclicHierarchyError{IDs: append(chain[at:], id)}
			}
			seen[id] = len(chain)
			chain = append(chain, id)
			pid, ok := parents[id]
			if !ok {
				break
			}
			id = pid
		}
		for _, c := range chain {
			cleared[c] = true
		}
	}
	return nil
}

// Walk visits every node depth first, parents before children.
func Walk[T Hierarchical](roots []*Node[T], fn func(n *Node[T], depth int)) {
	var visit func(nodes []*Node[T], depth int)
	visit = func(nodes []*Node[T], depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(roots, 0)
}

// Count returns the number of nodes in the forest.
func Count[T Hierarchical](roots []*Node[T]) int {
	n := 0
	Walk(roots, func(*Node[T], int) { n++ })
	return n
}
