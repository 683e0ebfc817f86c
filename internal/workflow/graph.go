package workflow

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidGraph wraps every compile failure.
	ErrInvalidGraph = errors.New("workflow: invalid graph")
	// ErrUnknownStep is returned when a run names a step the graph lacks.
	ErrUnknownStep = errors.New("workflow: unknown step")
	// ErrUnknownRoute is returned when a router yields an unmapped label.
	ErrUnknownRoute = errors.New("workflow: unknown route")
)

type conditional struct {
	route   Router
	targets map[string]string
}

// Builder accumulates a graph definition. Errors are collected and reported
// by Compile.
type Builder struct {
	steps map[string]Step
	order []string
	edges map[string]string
	conds map[string]conditional
	entry string
	errs  []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		steps: make(map[string]Step),
		edges: make(map[string]string),
		conds: make(map[string]conditional),
	}
}

// AddStep registers s under its name.
func (b *Builder) AddStep(s Step) *Builder {
	name := s.Name()
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("step with empty name"))
	case isTerminal(name):
		b.errs = append(b.errs, fmt.Errorf("step name %q is reserved", name))
	case b.steps[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("duplicate step %q", name))
	default:
		b.steps[name] = s
		b.order = append(b.order, name)
	}
	return b
}

// AddEdge adds an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	if b.hasTransition(from) {
		b.errs = append(b.errs, fmt.Errorf("step %q already has an outgoing transition", from))
		return b
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdges routes from through route, mapping each label to a
// target step or terminal.
func (b *Builder) AddConditionalEdges(from string, route Router, targets map[string]string) *Builder {
	if b.hasTransition(from) {
		b.errs = append(b.errs, fmt.Errorf("step %q already has an outgoing transition", from))
		return b
	}
	if route == nil || len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("conditional edge from %q needs a router and targets", from))
		return b
	}
	copied := make(map[string]string, len(targets))
	for label, to := range targets {
		copied[label] = to
	}
	b.conds[from] = conditional{route: route, targets: copied}
	return b
}

// SetEntry names the first step of a fresh run.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

func (b *Builder) hasTransition(from string) bool {
	_, e := b.edges[from]
	_, c := b.conds[from]
	return e || c
}

// Compile validates the definition and freezes it.
func (b *Builder) Compile() (*Graph, error) {
	errs := append([]error(nil), b.errs...)

	if b.entry == "" {
		errs = append(errs, errors.New("entry not set"))
	} else if b.steps[b.entry] == nil {
		errs = append(errs, fmt.Errorf("entry %q is not a step", b.entry))
	}

	succ := make(map[string][]string, len(b.steps))
	for _, name := range b.order {
		if to, ok := b.edges[name]; ok {
			succ[name] = []string{to}
			continue
		}
		if c, ok := b.conds[name]; ok {
			labels := make([]string, 0, len(c.targets))
			for label := range c.targets {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			for _, label := range labels {
				succ[name] = append(succ[name], c.targets[label])
			}
			continue
		}
		errs = append(errs, fmt.Errorf("step %q has no outgoing transition", name))
	}

	for from := range b.edges {
		if b.steps[from] == nil {
			errs = append(errs, fmt.Errorf("edge from unknown step %q", from))
		}
	}
	for from := range b.conds {
		if b.steps[from] == nil {
			errs = append(errs, fmt.Errorf("conditional edge from unknown step %q", from))
		}
	}
	for from, targets := range succ {
		for _, to := range targets {
			if !isTerminal(to) && b.steps[to] == nil {
				errs = append(errs, fmt.Errorf("edge %q -> %q targets unknown step", from, to))
			}
		}
	}

	if cycle := findCycle(b.order, succ); cycle != "" {
		errs = append(errs, fmt.Errorf("cycle through step %q", cycle))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}

	g := &Graph{
		steps: make(map[string]Step, len(b.steps)),
		order: append([]string(nil), b.order...),
		edges: make(map[string]string, len(b.edges)),
		conds: make(map[string]conditional, len(b.conds)),
		entry: b.entry,
	}
	for k, v := range b.steps {
		g.steps[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	for k, v := range b.conds {
		g.conds[k] = v
	}
	return g, nil
}

// findCycle returns a step on a cycle, or "" when the graph is acyclic.
func findCycle(order []string, succ map[string][]string) string {
	const (
		unvisited = iota
		visiting
		done
	)
	color := make(map[string]int, len(order))
	var visit func(n string) string
	visit = func(n string) string {
		color[n] = visiting
		for _, next := range succ[n] {
			if isTerminal(next) {
				continue
			}
			switch color[next] {
			case visiting:
				return next
			case unvisited:
				if c := visit(next); c != "" {
					return c
				}
			}
		}
		color[n] = done
		return ""
	}
	for _, n := range order {
		if color[n] == unvisited {
			if c := visit(n); c != "" {
				return c
			}
		}
	}
	return ""
}

func isTerminal(name string) bool {
	return name == Pause || name == End
}

// Graph is an immutable, validated step graph. It is safe for concurrent use.
type Graph struct {
	steps map[string]Step
	order []string
	edges map[string]string
	conds map[string]conditional
	entry string
}

// Entry returns the first step of a fresh run.
func (g *Graph) Entry() string { return g.entry }

// Steps returns step names in registration order.
func (g *Graph) Steps() []string { return append([]string(nil), g.order...) }

// Step looks up a step by name.
func (g *Graph) Step(name string) (Step, bool) {
	s, ok := g.steps[name]
	return s, ok
}

// Next resolves the transition out of from given the current state.
func (g *Graph) Next(from string, s State) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	c, ok := g.conds[from]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, from)
	}
	label := c.route(s)
	to, ok := c.targets[label]
	if !ok {
		return "", fmt.Errorf("%w: %q from %q", ErrUnknownRoute, label, from)
	}
	return to, nil
}

// New compiles the standard branding-to-post graph over deps.
func New(deps Dependencies) (*Graph, error) {
	b := NewBuilder()
	for _, s := range NewSteps(deps) {
		b.AddStep(s)
	}
	return b.
		SetEntry(StepCreateBranding).
		AddEdge(StepCreateBranding, StepCreateVisuals).
		AddEdge(StepCreateVisuals, StepGenerateImage).
		AddEdge(StepGenerateImage, StepCheckRequirements).
		AddConditionalEdges(StepCheckRequirements, RouteAfterRequirements, map[string]string{
			RouteGeneratePost: StepGeneratePost,
			RoutePause:        Pause,
		}).
		AddEdge(StepGeneratePost, StepPostToFacebook).
		AddEdge(StepPostToFacebook, End).
		Compile()
}
