package core

import (
	"fundcore/core/events"
	"fundcore/core/state"
)

type mark struct {
	journal int
	events  int
}

// savepoints pairs ledger snapshots with the event buffer so a reverted
// sub-operation also drops the events it emitted.
type savepoints struct {
	state  *state.Manager
	buffer *events.Buffer
	marks  []mark
}

func newSavepoints(m *state.Manager, buf *events.Buffer) *savepoints {
	return &savepoints{state: m, buffer: buf}
}

func (s *savepoints) Snapshot() int {
	s.marks = append(s.marks, mark{journal: s.state.Snapshot(), events: s.buffer.Len()})
	return len(s.marks) - 1
}

func (s *savepoints) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.marks) {
		return
	}
	m := s.marks[id]
	s.state.RevertToSnapshot(m.journal)
	s.buffer.Truncate(m.events)
	s.marks = s.marks[:id]
}

func (s *savepoints) reset() { s.marks = s.marks[:0] }
