package sched

import (
	"fmt"

	"nikand.dev/go/heap"
)

type (
	Entity struct {
		Node  any
		Phase Phase

		// Deps is populated only while the entity is yielded.
		Deps []Dep

		Err   ErrKind
		Cause error

		// cycle detection bookkeeping, index == -1 means unvisited this pass
		index   int
		low     int
		comp    int
		onStack bool

		freed bool
	}

	// Pool is an index-addressed table of entities.
	// Entities refer to each other by ID only.
	Pool struct {
		ents   []Entity
		byNode map[any]ID

		free heap.Heap[ID]
	}
)

func NewPool() *Pool {
	return &Pool{
		byNode: make(map[any]ID),
		free:   heap.Heap[ID]{Less: idLess},
	}
}

// Add creates an entity for node in the Parsed phase.
// The lowest freed index is recycled first.
func (p *Pool) Add(node any) ID {
	if _, ok := p.byNode[node]; ok {
		panic(fmt.Sprintf("node registered twice: %v", node))
	}

	var id ID

	if p.free.Len() != 0 {
		id = p.free.Pop()
	} else {
		id = ID(len(p.ents))
		p.ents = append(p.ents, Entity{})
	}

	p.ents[id] = Entity{
		Node:  node,
		Phase: Parsed,
		index: -1,
		comp:  -1,
	}

	p.byNode[node] = id

	return id
}

// Free releases a finished entity. Its index may be recycled by a later Add.
func (p *Pool) Free(id ID) {
	e := p.Get(id)

	if e.freed {
		panic(fmt.Sprintf("entity %d freed twice", id))
	}

	if e.Phase != Run && e.Err == NoError {
		panic(fmt.Sprintf("entity %d freed in phase %v", id, e.Phase))
	}

	delete(p.byNode, e.Node)

	*e = Entity{freed: true, index: -1}

	p.free.Push(id)
}

func (p *Pool) Lookup(node any) (ID, bool) {
	id, ok := p.byNode[node]

	return id, ok
}

// Get returns the entity. The pointer is valid until the next Add.
func (p *Pool) Get(id ID) *Entity {
	if id < 0 || int(id) >= len(p.ents) {
		panic(fmt.Sprintf("entity index out of range: %d (len %d)", id, len(p.ents)))
	}

	return &p.ents[id]
}

func (p *Pool) Len() int { return len(p.ents) }

func (p *Pool) Phase(id ID) Phase { return p.Get(id).Phase }

func (p *Pool) Failed(id ID) bool { return p.Get(id).Err != NoError }

// Satisfied reports whether the edge is dated: its target already reached the phase.
func (p *Pool) Satisfied(d Dep) bool {
	return p.ents[d.Target].Phase >= d.Phase
}

// Need records a wait-for edge from id.
func (p *Pool) Need(id ID, d Dep) {
	e := p.Get(id)
	_ = p.Get(d.Target)

	for i, x := range e.Deps {
		if x.Target == d.Target {
			e.Deps[i].Phase = max(x.Phase, d.Phase)
			return
		}
	}

	e.Deps = append(e.Deps, d)
}

// SetError sets the sticky error flag. The first cause wins.
func (p *Pool) SetError(id ID, k ErrKind, err error) {
	e := p.Get(id)

	if e.Err != NoError {
		return
	}

	e.Err = k
	e.Cause = err
}

func (p *Pool) AnyFailed() bool {
	for _, e := range p.ents {
		if e.Err != NoError {
			return true
		}
	}

	return false
}

func idLess(d []ID, i, j int) bool {
	return d[i] < d[j]
}
