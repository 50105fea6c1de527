package discovery

import "errors"

// ErrCyclicDependency is returned by Sort when the graph is not a DAG.
var ErrCyclicDependency = errors.New("discovery: cyclic module dependency")

// NodeID identifies a module inside the dependency graph.
type NodeID string

// Node is a discovered module together with the modules it depends on.
type Node struct {
	ID        NodeID
	Category  string
	FilePath  string
	DependsOn []NodeID
}

// Graph is a small dependency-query helper over a fixed node set. It is
// not thread-safe; callers own synchronisation.
type Graph struct {
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds or replaces a node.
func (g *Graph) AddNode(n Node) {
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// Get returns the stored node, or nil if absent.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Dependencies returns a defensive copy of id's immediate dependencies.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]NodeID, len(n.DependsOn))
	copy(out, n.DependsOn)
	return out
}

// Dependents returns every node that directly depends on id.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var out []NodeID
	for _, n := range g.nodes {
		for _, d := range n.DependsOn {
			if d == id {
				out = append(out, n.ID)
				break
			}
		}
	}
	return out
}

// Sort performs a deterministic topological sort over the graph using
// Kahn's algorithm: nodes with no remaining unresolved dependencies are
// peeled off in order of ascending ID (for determinism across runs),
// repeatedly, until the graph is empty. A non-empty remainder after no
// further progress indicates a cycle.
func (g *Graph) Sort() ([]NodeID, error) {
	// indegree[x] counts how many discovered nodes must be processed
	// before x, i.e. the number of x's dependencies that are present in
	// the graph. Dependencies on undiscovered modules are treated as
	// already satisfied rather than failing discovery for the whole
	// batch.
	indegree := make(map[NodeID]int, len(g.nodes))
	for id, n := range g.nodes {
		count := 0
		for _, dep := range n.DependsOn {
			if _, ok := g.nodes[dep]; ok {
				count++
			}
		}
		indegree[id] = count
	}

	var ready []NodeID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)

	var order []NodeID
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var unlocked []NodeID
		for _, dependent := range g.Dependents(next) {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		sortIDs(unlocked)
		ready = append(ready, unlocked...)
		sortIDs(ready)
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}

// Waves groups the topological order into levels: every node in a wave
// has all of its in-graph dependencies satisfied by earlier waves, so
// the nodes within one wave may be loaded concurrently. Returns
// ErrCyclicDependency under the same condition as Sort.
func (g *Graph) Waves() ([][]NodeID, error) {
	indegree := make(map[NodeID]int, len(g.nodes))
	for id, n := range g.nodes {
		count := 0
		for _, dep := range n.DependsOn {
			if _, ok := g.nodes[dep]; ok {
				count++
			}
		}
		indegree[id] = count
	}

	var waves [][]NodeID
	processed := 0
	for {
		var wave []NodeID
		for id, deg := range indegree {
			if deg == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			break
		}
		sortIDs(wave)
		for _, id := range wave {
			delete(indegree, id)
		}
		for _, id := range wave {
			for _, dependent := range g.Dependents(id) {
				if _, stillPending := indegree[dependent]; stillPending {
					indegree[dependent]--
				}
			}
		}
		waves = append(waves, wave)
		processed += len(wave)
	}

	if processed != len(g.nodes) {
		return nil, ErrCyclicDependency
	}
	return waves, nil
}

func sortIDs(ids []NodeID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
