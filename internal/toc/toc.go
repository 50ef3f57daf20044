// Package toc turns flat heading sequences into nested outlines.
package toc

// Heading is a heading recorded while rendering an entry.
type Heading struct {
	ID    string
	Text  string
	Level int
}

// Node is one outline entry. Group nodes created by Merge have Level 0.
type Node struct {
	ID       string
	Text     string
	Level    int
	Children []*Node
}

// IsGroup reports whether the node is a synthetic per-entry grouping.
func (n *Node) IsGroup() bool {
	return n.Level == 0
}

// Build nests headings by level. A heading becomes the child of the nearest
// preceding heading with a strictly lower level; otherwise it is a root.
func Build(headings []Heading) []*Node {
	var roots []*Node
	stack := make([]*Node, 0, 6)

	for _, h := range headings {
		node := &Node{ID: h.ID, Text: h.Text, Level: h.Level}

		for len(stack) > 0 && stack[len(stack)-1].Level >= node.Level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}

		stack = append(stack, node)
	}

	return roots
}

// Group is the outline of one entry in a threaded post.
type Group struct {
	ID    string
	Title string
	Roots []*Node
}

// Merge places each group's roots under a synthetic node, keeping order.
func Merge(groups []Group) []*Node {
	merged := make([]*Node, 0, len(groups))
	for _, g := range groups {
		merged = append(merged, &Node{
			ID:       g.ID,
			Text:     g.Title,
			Level:    0,
			Children: g.Roots,
		})
	}

	return merged
}

// Flat is a node paired with its depth in the tree.
type Flat struct {
	Node  *Node
	Depth int
}

// Flatten lists the tree depth first.
func Flatten(nodes []*Node) []Flat {
	var out []Flat
	var walk func([]*Node, int)
	walk = func(ns []*Node, depth int) {
		for _, n := range ns {
			out = append(out, Flat{Node: n, Depth: depth})
			walk(n.Children, depth+1)
		}
	}
	walk(nodes, 0)

	return out
}

// Count returns the number of nodes in the tree.
func Count(nodes []*Node) int {
	total := 0
	for _, n := range nodes {
		total += 1 + Count(n.Children)
	}

	return total
}
