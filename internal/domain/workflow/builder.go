package workflow

import (
	"context"
	"fmt"
)

// GuardFunc decides whether a transition may be taken
type GuardFunc func(ctx context.Context) bool

// Builder collects transitions and produces state machines
type Builder struct {
	transitions map[State]map[Trigger][]transition
}

// Configuration adds transitions leaving one state
type Configuration struct {
	from    State
	builder *Builder
}

type transition struct {
	to    State
	guard GuardFunc
}

type machine struct {
	current     State
	transitions map[State]map[Trigger][]transition
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger][]transition)}
}

// Configure returns the configuration for transitions leaving state
func (b *Builder) Configure(state State) *Configuration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.transitions[state]; !ok {
		b.transitions[state] = make(map[Trigger][]transition)
	}
	return &Configuration{from: state, builder: b}
}

// Permit allows trigger to move the machine to state to
func (c *Configuration) Permit(trigger Trigger, to State) *Configuration {
	return c.PermitIf(trigger, to, nil)
}

// PermitIf allows trigger to move the machine to state to when guard passes
func (c *Configuration) PermitIf(trigger Trigger, to State, guard GuardFunc) *Configuration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	byTrigger := c.builder.transitions[c.from]
	byTrigger[trigger] = append(byTrigger[trigger], transition{to: to, guard: guard})
	return c
}

// Build creates a machine starting in initial. Later changes to the builder
// do not affect machines already built.
func (b *Builder) Build(initial State) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	snapshot := make(map[State]map[Trigger][]transition, len(b.transitions))
	for state, byTrigger := range b.transitions {
		copied := make(map[Trigger][]transition, len(byTrigger))
		for trigger, ts := range byTrigger {
			copied[trigger] = append([]transition(nil), ts...)
		}
		snapshot[state] = copied
	}

	return &machine{current: initial, transitions: snapshot}
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.transitions[m.current][trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	candidates := m.transitions[m.current][trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range candidates {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.current)
}
