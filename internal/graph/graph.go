// Package graph provides the dependency graph for batch task execution.
package graph

import (
	"time"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// TaskNode is one schedulable unit of work. Nodes are immutable once the
// graph is built.
type TaskNode struct {
	TaskID                  string
	Command                 string
	TargetRepository        string
	Priority                models.Priority
	EstimatedDuration       time.Duration
	RequiresPreviousSuccess bool
	// DependencyIDs are the task IDs this node depends on, in declaration order.
	DependencyIDs []string

	// index is the position of the task in the submitted list.
	index int
}

// Index returns the position of the task in the submitted list.
func (n *TaskNode) Index() int {
	return n.index
}

// DependencyEdge means From must reach a terminal state before To may start.
type DependencyEdge struct {
	From *TaskNode
	To   *TaskNode
	// RequiresSuccess is copied from To.RequiresPreviousSuccess.
	RequiresSuccess bool
}

// ExecutionGraph owns every node and edge of one batch. It is read-only
// after Build returns, so concurrent readers need no locking.
type ExecutionGraph struct {
	// nodes maps task ID to node.
	nodes map[string]*TaskNode
	// order holds nodes in submission order.
	order []*TaskNode
	// outgoing maps task ID to edges towards its dependents.
	outgoing map[string][]*DependencyEdge
	// incoming maps task ID to edges from its dependencies.
	incoming map[string][]*DependencyEdge
	edgeCount int
}

func newExecutionGraph(size int) *ExecutionGraph {
	return &ExecutionGraph{
		nodes:    make(map[string]*TaskNode, size),
		order:    make([]*TaskNode, 0, size),
		outgoing: make(map[string][]*DependencyEdge, size),
		incoming: make(map[string][]*DependencyEdge, size),
	}
}

// Node returns the node for a task ID, or nil if not found.
func (g *ExecutionGraph) Node(taskID string) *TaskNode {
	return g.nodes[taskID]
}

// Nodes returns all nodes in submission order.
func (g *ExecutionGraph) Nodes() []*TaskNode {
	out := make([]*TaskNode, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of nodes in the graph.
func (g *ExecutionGraph) Len() int {
	return len(g.order)
}

// EdgeCount returns the number of edges in the graph.
func (g *ExecutionGraph) EdgeCount() int {
	return g.edgeCount
}

// Dependencies returns the edges pointing at taskID, one per dependency.
func (g *ExecutionGraph) Dependencies(taskID string) []*DependencyEdge {
	return g.incoming[taskID]
}

// Dependents returns the edges leaving taskID, one per dependent task.
func (g *ExecutionGraph) Dependents(taskID string) []*DependencyEdge {
	return g.outgoing[taskID]
}

// Edges returns every edge, grouped by source node in submission order.
func (g *ExecutionGraph) Edges() []*DependencyEdge {
	edges := make([]*DependencyEdge, 0, g.edgeCount)
	for _, n := range g.order {
		edges = append(edges, g.outgoing[n.TaskID]...)
	}
	return edges
}

func (g *ExecutionGraph) addNode(n *TaskNode) {
	n.index = len(g.order)
	g.nodes[n.TaskID] = n
	g.order = append(g.order, n)
}

func (g *ExecutionGraph) addEdge(from, to *TaskNode) {
	edge := &DependencyEdge{From: from, To: to, RequiresSuccess: to.RequiresPreviousSuccess}
	g.outgoing[from.TaskID] = append(g.outgoing[from.TaskID], edge)
	g.incoming[to.TaskID] = append(g.incoming[to.TaskID], edge)
	g.edgeCount++
}
