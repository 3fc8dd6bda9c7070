// Package graph orders named nodes by what they provide and require.
//
// Each node provides zero or more keys and requires zero or more keys. Order
// returns the nodes so that every provider comes before its dependents, with
// ties broken by insertion order so the result is deterministic.
package graph

import (
	"fmt"
)

type node struct {
	name     string
	provides []string
	requires []string
}

// Graph is a provides/requires dependency graph. Not safe for concurrent
// mutation.
type Graph struct {
	index map[string]int
	nodes []*node
}

// New creates an empty graph
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Add registers a node. Adding the same name twice merges the declarations.
// A node always provides its own name.
func (g *Graph) Add(name string, provides, requires []string) {
	i, ok := g.index[name]
	if !ok {
		i = len(g.nodes)
		g.index[name] = i
		g.nodes = append(g.nodes, &node{name: name, provides: []string{name}})
	}
	n := g.nodes[i]
	n.provides = append(n.provides, provides...)
	n.requires = append(n.requires, requires...)
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// MissingError lists requirements no node provides, as "node#key" pairs
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("graph: %d unresolved requirement(s): %v", len(e.Keys), e.Keys)
}

// CycleError reports a dependency cycle, first node repeated at the end
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: cycle %v", e.Path)
}

// Missing returns the unresolved requirements in "node#key" form, in node
// insertion order.
func (g *Graph) Missing() []string {
	providers := g.providers()
	var missing []string
	for _, n := range g.nodes {
		for _, r := range n.requires {
			if _, ok := providers[r]; !ok {
				missing = append(missing, n.name+"#"+r)
			}
		}
	}
	return missing
}

func (g *Graph) providers() map[string]int {
	p := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		for _, k := range n.provides {
			if _, ok := p[k]; !ok {
				p[k] = i
			}
		}
	}
	return p
}

// Order returns node names with every provider ahead of the nodes requiring
// it. It fails with *MissingError or *CycleError.
func (g *Graph) Order() ([]string, error) {
	if missing := g.Missing(); len(missing) > 0 {
		return nil, &MissingError{Keys: missing}
	}

	providers := g.providers()
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]uint8, len(g.nodes))
	order := make([]string, 0, len(g.nodes))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return &CycleError{Path: g.cyclePath(stack, i)}
		}
		state[i] = visiting
		stack = append(stack, i)
		for _, r := range g.nodes[i].requires {
			dep := providers[r]
			if dep == i {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		order = append(order, g.nodes[i].name)
		return nil
	}

	for i := range g.nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (g *Graph) cyclePath(stack []int, back int) []string {
	start := 0
	for j, i := range stack {
		if i == back {
			start = j
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, i := range stack[start:] {
		path = append(path, g.nodes[i].name)
	}
	return append(path, g.nodes[back].name)
}
