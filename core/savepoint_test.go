package core

import (
	"testing"

	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/storage"
)

func TestSavepointRevertDropsWritesAndEvents(t *testing.T) {
	m := state.NewManager(storage.NewMemDB())
	buf := &events.Buffer{}
	sp := newSavepoints(m, buf)

	if err := m.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("put a: %v", err)
	}
	buf.Emit(events.Typed{Evt: &types.Event{Type: "outer"}})

	id := sp.Snapshot()
	if err := m.KVPut([]byte("b"), uint64(2)); err != nil {
		t.Fatalf("put b: %v", err)
	}
	buf.Emit(events.Typed{Evt: &types.Event{Type: "inner"}})
	sp.RevertToSnapshot(id)

	var got uint64
	ok, err := m.KVGet([]byte("b"), &got)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if ok {
		t.Fatalf("reverted write still visible")
	}
	ok, err = m.KVGet([]byte("a"), &got)
	if err != nil || !ok || got != 1 {
		t.Fatalf("outer write lost: ok=%v got=%d err=%v", ok, got, err)
	}
	if buf.Len() != 1 || buf.Events()[0].EventType() != "outer" {
		t.Fatalf("unexpected events after revert: %v", buf.Events())
	}
	if len(sp.marks) != 0 {
		t.Fatalf("expected marks popped, got %d", len(sp.marks))
	}
}

func TestSavepointNestedRevert(t *testing.T) {
	m := state.NewManager(storage.NewMemDB())
	buf := &events.Buffer{}
	sp := newSavepoints(m, buf)

	outer := sp.Snapshot()
	buf.Emit(events.Typed{Evt: &types.Event{Type: "first"}})
	inner := sp.Snapshot()
	buf.Emit(events.Typed{Evt: &types.Event{Type: "second"}})

	sp.RevertToSnapshot(inner)
	if buf.Len() != 1 {
		t.Fatalf("inner revert kept %d events", buf.Len())
	}
	sp.RevertToSnapshot(outer)
	if buf.Len() != 0 {
		t.Fatalf("outer revert kept %d events", buf.Len())
	}

	// Stale ids are ignored.
	sp.RevertToSnapshot(inner)
	sp.RevertToSnapshot(-1)
}
