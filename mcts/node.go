package mcts

// Node holds the live search statistics for one action edge. Nodes live in a
// Tree's arena and reference their children by arena index, so the tree has
// no pointer cycles and serializes trivially for debugging.
type Node struct {
	// Action is the action id that leads from the parent to this node.
	Action int

	// Player is the player who took Action.
	Player int

	// Prior is the evaluator's probability for Action at the parent.
	Prior float64

	// ExploreCount is how many simulations have passed through this node.
	ExploreCount int

	// TotalReward accumulates backed-up values from Player's perspective.
	TotalReward float64

	// Outcome is the per-player terminal value vector once this subtree is
	// resolved, nil otherwise.
	Outcome []float64

	// Children are arena indexes of the expanded child nodes, in ascending
	// action order. Empty until this node is expanded.
	Children []int
}

// Tree is an arena of search nodes. Index 0 is the root.
type Tree struct {
	nodes []Node
}

func newTree() *Tree {
	t := &Tree{nodes: make([]Node, 0, 256)}
	t.add(Node{Action: -1, Player: -1})
	return t
}

func (t *Tree) add(n Node) int {
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

// Node returns the node at the given arena index.
func (t *Tree) Node(i int) *Node { return &t.nodes[i] }

// Root returns the root node.
func (t *Tree) Root() *Node { return &t.nodes[0] }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// RootChildren returns the root's expanded children.
func (t *Tree) RootChildren() []*Node {
	root := t.Root()
	children := make([]*Node, len(root.Children))
	for i, idx := range root.Children {
		children[i] = &t.nodes[idx]
	}
	return children
}
