package merge

import (
	"sort"
	"strings"
)

// Node is one component of the settings tree.
//
// A node with a Setting is a leaf; a node with Children is a branch. When
// layers disagree on shape (one defines "a" as a scalar, another defines
// "a.b") a node can be both.
type Node struct {
	Name     string
	Path     string
	Setting  *EffectiveSetting
	Children []*Node
}

// IsLeaf reports whether the node carries a setting.
func (n *Node) IsLeaf() bool { return n.Setting != nil }

// IsBranch reports whether the node has children.
func (n *Node) IsBranch() bool { return len(n.Children) > 0 }

// Child returns the direct child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// BuildHierarchy groups flat settings into a tree. A key without dots is a
// root-level leaf. Siblings are sorted by name.
func BuildHierarchy(settings []EffectiveSetting) []*Node {
	root := &Node{}
	for i := range settings {
		s := &settings[i]
		parts := strings.Split(s.Key, ".")
		node := root
		for depth, part := range parts {
			child := node.Child(part)
			if child == nil {
				child = &Node{Name: part, Path: strings.Join(parts[:depth+1], ".")}
				node.Children = append(node.Children, child)
			}
			node = child
		}
		node.Setting = s
	}
	sortNodes(root.Children)
	return root.Children
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Walk visits every node depth-first in sorted order. Returning false from
// fn skips the node's children.
func Walk(nodes []*Node, fn func(n *Node, depth int) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(n *Node, depth int) bool) {
	for _, n := range nodes {
		if fn(n, depth) {
			walk(n.Children, depth+1, fn)
		}
	}
}
