package pipe

import (
	"encoding/json"
	"fmt"
)

// NodeType discriminates the kind of thing a schema Node describes.
type NodeType string

const (
	// NodeTypePipe is a single Pipe's step list. At the root of a schema
	// it lists the pipe's parent chain's steps followed by its own; a pipe
	// reached through a fork edge lists only its own steps, since the
	// forking parent's steps already appear above it in the tree.
	NodeTypePipe NodeType = "pipe"
	// NodeTypeHead is a root pipe's data source: a literal sequence, a
	// bound Iterator, or an unevaluated Producer.
	NodeTypeHead NodeType = "head"
	// NodeTypeTransform is a single TransformFunc step.
	NodeTypeTransform NodeType = "transform"
	// NodeTypeFork is a fan-out step with one edge per child pipe.
	NodeTypeFork NodeType = "fork"
	// NodeTypeEdge is one ForkStep edge, wrapping the child pipe it routes
	// into.
	NodeTypeEdge NodeType = "edge"
	// NodeTypeRef marks a child already expanded elsewhere in the tree
	// (a self-yield fork edge, or a pipe reachable through more than one
	// path) so walking a schema never recurses forever.
	NodeTypeRef NodeType = "ref"
)

// Node is one entry in a pipe's schema tree: either the pipe itself, its
// head, a transform step, a fork, or one of a fork's edges.
type Node struct {
	Identity Identity `json:"-"`
	Type     NodeType `json:"type"`
	Detail   string   `json:"detail,omitempty"`
	Edges    []Node   `json:"edges,omitempty"`
}

type nodeJSON struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   NodeType `json:"type"`
	Detail string   `json:"detail,omitempty"`
	Edges  []Node   `json:"edges,omitempty"`
}

// MarshalJSON flattens Identity into id/name fields.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		ID:     n.Identity.ID().String(),
		Name:   n.Identity.Name(),
		Type:   n.Type,
		Detail: n.Detail,
		Edges:  n.Edges,
	})
}

// Schema is the introspectable shape of a pipe: its ancestor chain, every
// transform and fork step, and every fork edge's child pipe, expanded
// recursively. It exists for debugging and tooling, not for execution —
// EvaluateGen and Dispatcher never consult it.
type Schema struct {
	Root Node `json:"root"`
}

// Schema builds the introspectable tree rooted at p: p's own steps,
// preceded by its parent chain's steps (oldest ancestor first), with every
// fork step's edges expanded into their child pipes' own steps. A pipe
// reachable more than once (most commonly a self-yield fork edge created
// by FromPipes with yieldParents) is expanded only the first time it is
// reached; later occurrences become a NodeTypeRef leaf instead of
// recursing forever.
func (p *Pipe) Schema() Schema {
	visited := make(map[IdentityID]bool)
	return Schema{Root: buildPipeNode(p, true, visited)}
}

func buildPipeNode(p *Pipe, withAncestors bool, visited map[IdentityID]bool) Node {
	if visited[p.ID()] {
		return Node{Identity: NewIdentity(p.Name()).WithID(p.ID()), Type: NodeTypeRef, Detail: fmt.Sprintf("already expanded: %s", p.Name())}
	}
	visited[p.ID()] = true

	chain := []*Pipe{p}
	if withAncestors {
		for cur := p.Parent(); cur != nil; cur = cur.Parent() {
			chain = append(chain, cur)
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	node := Node{Identity: NewIdentity(p.Name()).WithID(p.ID()), Type: NodeTypePipe}
	for _, seg := range chain {
		for i := 0; i < seg.Len(); i++ {
			node.Edges = append(node.Edges, buildStepNode(seg, i, visited))
		}
	}
	return node
}

func buildStepNode(p *Pipe, index int, visited map[IdentityID]bool) Node {
	step := p.StepAt(index)
	switch v := step.(type) {
	case []any:
		return Node{Identity: NewIdentity(fmt.Sprintf("%s[head]", p.Name())), Type: NodeTypeHead, Detail: fmt.Sprintf("literal sequence of %d items", len(v))}
	case Iterator:
		return Node{Identity: NewIdentity(fmt.Sprintf("%s[head]", p.Name())), Type: NodeTypeHead, Detail: "bound iterator"}
	case Producer:
		return Node{Identity: NewIdentity(fmt.Sprintf("%s[head]", p.Name())), Type: NodeTypeHead, Detail: "unevaluated producer"}
	case *ForkStep:
		node := Node{Identity: NewIdentity(fmt.Sprintf("%s[fork:%d]", p.Name(), index)), Type: NodeTypeFork}
		for _, edge := range v.Edges() {
			child := buildPipeNode(edge.Child, false, visited)
			node.Edges = append(node.Edges, Node{
				Identity: NewIdentity(fmt.Sprintf("-> %s", edge.Child.Name())),
				Type:     NodeTypeEdge,
				Detail:   fmt.Sprintf("entry=%d copy_on_fork=%t", edge.EntryStep, edge.CopyOnFork),
				Edges:    []Node{child},
			})
		}
		return node
	default:
		return Node{Identity: NewIdentity(fmt.Sprintf("%s[step:%d]", p.Name(), index)), Type: NodeTypeTransform}
	}
}

// Walk visits every node in the schema tree, depth-first pre-order.
func (s Schema) Walk(fn func(Node)) {
	walkNode(s.Root, fn)
}

func walkNode(n Node, fn func(Node)) {
	fn(n)
	for _, child := range n.Edges {
		walkNode(child, fn)
	}
}

// Find returns the first node matching predicate, or nil if none match.
func (s Schema) Find(predicate func(Node) bool) *Node {
	var found *Node
	s.Walk(func(n Node) {
		if found == nil && predicate(n) {
			nCopy := n
			found = &nCopy
		}
	})
	return found
}

// FindByType returns every node of the given type.
func (s Schema) FindByType(t NodeType) []Node {
	var results []Node
	s.Walk(func(n Node) {
		if n.Type == t {
			results = append(results, n)
		}
	})
	return results
}

// Count returns the total number of nodes in the schema tree.
func (s Schema) Count() int {
	count := 0
	s.Walk(func(Node) { count++ })
	return count
}
