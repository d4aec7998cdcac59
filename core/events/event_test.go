package events

import (
	"testing"

	"fundcore/core/types"
)

type recorder struct{ got []string }

func (r *recorder) Emit(evt Event) { r.got = append(r.got, evt.EventType()) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(Typed{Evt: &types.Event{Type: "a"}})
	buf.Emit(Typed{Evt: &types.Event{Type: "b"}})
	buf.Emit(nil)
	if buf.Len() != 2 {
		t.Fatalf("expected 2 pending events, got %d", buf.Len())
	}
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.got) != 2 || rec.got[0] != "a" || rec.got[1] != "b" {
		t.Fatalf("unexpected flush order %v", rec.got)
	}
	if buf.Len() != 0 {
		t.Fatalf("flush must clear the buffer")
	}
}

func TestBufferReset(t *testing.T) {
	var buf Buffer
	buf.Emit(Typed{Evt: &types.Event{Type: "a"}})
	buf.Reset()
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.got) != 0 {
		t.Fatalf("reset events must not be delivered")
	}
}

func TestBufferTruncate(t *testing.T) {
	var buf Buffer
	buf.Emit(Typed{Evt: &types.Event{Type: "kept"}})
	mark := buf.Len()
	buf.Emit(Typed{Evt: &types.Event{Type: "reverted"}})
	buf.Truncate(mark)
	buf.Truncate(5)
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.got) != 1 || rec.got[0] != "kept" {
		t.Fatalf("unexpected events after truncate %v", rec.got)
	}
}

func TestOperationEvent(t *testing.T) {
	op := Operation{Kind: "pool.buy", Entity: "FND", State: map[string]string{"cash": "10"}, At: 42}
	evt := op.Event()
	if evt.Type != TypeOperation {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["state"] != `{"cash":"10"}` {
		t.Fatalf("unexpected state %s", evt.Attributes["state"])
	}
	if evt.Attributes["at"] != "42" || evt.Attributes["caller"] != "" {
		t.Fatalf("unexpected attributes %v", evt.Attributes)
	}
	if Payload(op) == nil || Payload(Typed{}) != nil {
		t.Fatalf("payload extraction mismatch")
	}
}

func TestMultiSkipsNil(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Emit(Typed{Evt: &types.Event{Type: "x"}})
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected fan-out to both recorders")
	}
}
