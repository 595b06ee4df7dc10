package graph

import (
	"github.com/google/uuid"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// Builder constructs execution graphs and computes their execution order.
type Builder struct {
	// priorityOrdering breaks ties in the ready queue by priority.
	priorityOrdering bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPriorityOrdering makes CalculateTopologicalOrder release ready tasks by
// descending priority, then submission order. The default is first-ready,
// first-out.
func WithPriorityOrdering() BuilderOption {
	return func(b *Builder) { b.priorityOrdering = true }
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.debugLog = fn
		}
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs the graph for a batch. It fails on an empty list, on a
// duplicate task ID and on a dependency that names a task outside the batch.
// Cycles are not checked here; see ValidateNoCyclicDependencies.
func (b *Builder) Build(tasks []models.TaskRequest) (*ExecutionGraph, error) {
	if len(tasks) == 0 {
		return nil, ErrEmptyBatch
	}

	b.debugLog("[graph.Build] building graph from %d tasks", len(tasks))
	g := newExecutionGraph(len(tasks))

	// First pass: register all tasks as nodes.
	for _, req := range tasks {
		id := req.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, exists := g.nodes[id]; exists {
			return nil, &DuplicateTaskError{TaskID: id}
		}

		deps := make([]string, 0, len(req.DependsOn))
		seen := make(map[string]bool, len(req.DependsOn))
		for _, depID := range req.DependsOn {
			if seen[depID] {
				continue
			}
			seen[depID] = true
			deps = append(deps, depID)
		}

		g.addNode(&TaskNode{
			TaskID:                  id,
			Command:                 req.Command,
			TargetRepository:        req.TargetRepository,
			Priority:                req.Priority,
			EstimatedDuration:       req.EstimatedDuration,
			RequiresPreviousSuccess: req.RequiresPreviousSuccess,
			DependencyIDs:           deps,
		})
	}

	// Second pass: build edges from the declared dependencies.
	for _, node := range g.order {
		for _, depID := range node.DependencyIDs {
			dep, exists := g.nodes[depID]
			if !exists {
				return nil, &DependencyResolutionError{TaskID: node.TaskID, MissingID: depID}
			}
			g.addEdge(dep, node)
		}
	}

	b.debugLog("[graph.Build] graph built with %d nodes and %d edges", g.Len(), g.EdgeCount())
	return g, nil
}

// dfsFrame is one entry of the explicit DFS stack.
type dfsFrame struct {
	id   string
	next int
}

// ValidateNoCyclicDependencies returns a *CircularDependencyError if the
// graph contains a cycle. It walks every node, so cycles in any connected
// component are found. The traversal uses an explicit stack so long
// dependency chains cannot overflow the goroutine stack.
func (b *Builder) ValidateNoCyclicDependencies(g *ExecutionGraph) error {
	visited := make(map[string]bool, g.Len())
	// onStack maps a node on the current DFS path to its stack position.
	onStack := make(map[string]int, g.Len())

	for _, root := range g.order {
		if visited[root.TaskID] {
			continue
		}

		stack := []dfsFrame{{id: root.TaskID}}
		visited[root.TaskID] = true
		onStack[root.TaskID] = 0

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := g.outgoing[top.id]

			if top.next >= len(edges) {
				delete(onStack, top.id)
				stack = stack[:len(stack)-1]
				continue
			}

			child := edges[top.next].To.TaskID
			top.next++

			if pos, ok := onStack[child]; ok {
				// Back edge: the path from pos to the top is the cycle.
				cycle := make([]string, 0, len(stack)-pos+1)
				for _, f := range stack[pos:] {
					cycle = append(cycle, f.id)
				}
				cycle = append(cycle, child)
				b.debugLog("[graph.Validate] cycle detected: %v", cycle)
				return &CircularDependencyError{Cycle: cycle}
			}
			if visited[child] {
				continue
			}

			visited[child] = true
			onStack[child] = len(stack)
			stack = append(stack, dfsFrame{id: child})
		}
	}

	return nil
}

// CalculateTopologicalOrder returns the nodes ordered so that every
// dependency precedes its dependents, using Kahn's algorithm. Ties are
// broken by submission order unless the builder uses priority ordering.
// A *CircularDependencyError is returned if some nodes cannot be ordered.
func (b *Builder) CalculateTopologicalOrder(g *ExecutionGraph) ([]*TaskNode, error) {
	inDegree := make(map[string]int, g.Len())
	queue := make([]*TaskNode, 0, g.Len())

	for _, n := range g.order {
		inDegree[n.TaskID] = len(g.incoming[n.TaskID])
		if inDegree[n.TaskID] == 0 {
			queue = b.enqueue(queue, n)
		}
	}

	result := make([]*TaskNode, 0, g.Len())
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		result = append(result, n)

		for _, edge := range g.outgoing[n.TaskID] {
			inDegree[edge.To.TaskID]--
			if inDegree[edge.To.TaskID] == 0 {
				queue = b.enqueue(queue, edge.To)
			}
		}
	}

	if len(result) != g.Len() {
		var residual []string
		for _, n := range g.order {
			if inDegree[n.TaskID] > 0 {
				residual = append(residual, n.TaskID)
			}
		}
		return nil, &CircularDependencyError{Cycle: residual}
	}

	return result, nil
}

// enqueue appends n to the ready queue, keeping the queue sorted by
// descending priority when priority ordering is enabled.
func (b *Builder) enqueue(queue []*TaskNode, n *TaskNode) []*TaskNode {
	if !b.priorityOrdering {
		return append(queue, n)
	}

	i := len(queue)
	for i > 0 && before(n, queue[i-1]) {
		i--
	}
	queue = append(queue, nil)
	copy(queue[i+1:], queue[i:])
	queue[i] = n
	return queue
}

// before reports whether a should leave the ready queue ahead of b.
func before(a, b *TaskNode) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.index < b.index
}
