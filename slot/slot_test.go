package slot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hootrhino/ecatmaster/ecerr"
	"github.com/hootrhino/ecatmaster/wire"
)

func TestReplaceFailsWhenNotIdle(t *testing.T) {
	s := New(0)
	if _, err := s.Replace(wire.Command{Code: wire.BRD}, 2); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if _, err := s.Replace(wire.Command{Code: wire.BRD}, 2); !errors.Is(err, ecerr.ErrBackPressure) {
		t.Fatalf("expected back pressure, got %v", err)
	}
}

func TestStateMachineHappyPath(t *testing.T) {
	s := New(2)
	gen, err := s.Replace(wire.Command{Code: wire.BRD}, 2)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if s.State() != Created {
		t.Fatalf("expected Created, got %v", s.State())
	}

	view, ok := s.Sendable()
	if !ok {
		t.Fatal("expected sendable view")
	}
	if s.State() != Sending {
		t.Fatalf("expected Sending, got %v", s.State())
	}

	if err := view.MarkSent(); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if s.State() != Sent {
		t.Fatalf("expected Sent, got %v", s.State())
	}

	done := make(chan struct{})
	var gotWKC uint16
	go func() {
		defer close(done)
		_, _, wkc, err := s.AwaitResponse(context.Background(), gen)
		if err != nil {
			t.Errorf("await: %v", err)
		}
		gotWKC = wkc
	}()

	arena := make([]byte, 2)
	time.Sleep(5 * time.Millisecond)
	if err := s.WakeDone(gen, wire.Command{Code: wire.BRD}, wire.PDUFlags{Length: 2}, 0, 1, []byte{0xAB, 0xCD}, arena); err != nil {
		t.Fatalf("wake done: %v", err)
	}
	<-done

	if s.State() != Done {
		t.Fatalf("expected Done, got %v", s.State())
	}
	if gotWKC != 1 {
		t.Fatalf("expected wkc 1, got %d", gotWKC)
	}
	if arena[0] != 0xAB || arena[1] != 0xCD {
		t.Fatalf("expected arena to receive response data, got %v", arena)
	}
}

func TestSendableResurfacesAfterFailedSend(t *testing.T) {
	s := New(0)
	if _, err := s.Replace(wire.Command{Code: wire.BRD}, 2); err != nil {
		t.Fatalf("replace: %v", err)
	}
	view1, ok := s.Sendable()
	if !ok {
		t.Fatal("expected view")
	}
	if s.State() != Sending {
		t.Fatalf("expected Sending, got %v", s.State())
	}

	// Simulate a dropped view: never call MarkSent. The next scan should
	// still find the slot sendable instead of it being stuck forever.
	view2, ok := s.Sendable()
	if !ok {
		t.Fatal("expected slot to resurface while Sending")
	}
	if view1.Index != view2.Index {
		t.Fatalf("index mismatch across resurfacing views")
	}
}

func TestCommandMismatchLeavesSlotSent(t *testing.T) {
	s := New(5)
	gen, err := s.Replace(wire.Command{Code: wire.FPRD}, 2)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	view, _ := s.Sendable()
	_ = view.MarkSent()

	err = s.WakeDone(gen, wire.Command{Code: wire.BWR}, wire.PDUFlags{Length: 2}, 0, 1, []byte{1, 2}, make([]byte, 2))
	var mismatch *ecerr.CommandMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected CommandMismatch, got %v", err)
	}
	if s.State() != Sent {
		t.Fatalf("expected slot to remain Sent, got %v", s.State())
	}
}

func TestTimeoutReturnsSlotToIdle(t *testing.T) {
	s := New(1)
	gen, err := s.Replace(wire.Command{Code: wire.BRD}, 2)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	view, _ := s.Sendable()
	_ = view.MarkSent()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, _, _, err = s.AwaitResponse(ctx, gen)
	if !errors.Is(err, ecerr.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("expected slot back to Idle, got %v", s.State())
	}
	if s.Command().Code != 0 {
		t.Fatalf("expected command cleared on idle, got %v", s.Command())
	}

	// The same index should be immediately reusable.
	if _, err := s.Replace(wire.Command{Code: wire.FPRD}, 4); err != nil {
		t.Fatalf("reuse after timeout: %v", err)
	}
}

func TestStaleResponseAfterTimeoutIsDropped(t *testing.T) {
	s := New(3)
	gen, err := s.Replace(wire.Command{Code: wire.BRD}, 2)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	view, _ := s.Sendable()
	_ = view.MarkSent()

	s.cancelToIdle(gen)

	// A late response for the old generation must not be applied.
	arena := make([]byte, 2)
	err = s.WakeDone(gen, wire.Command{Code: wire.BRD}, wire.PDUFlags{Length: 2}, 0, 1, []byte{0xAB, 0xCD}, arena)
	if !errors.Is(err, ecerr.ErrInvalidState) {
		t.Fatalf("expected dropped stale response, got %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("expected Idle, got %v", s.State())
	}
	if arena[0] != 0 || arena[1] != 0 {
		t.Fatalf("stale response must not write to the arena, got %v", arena)
	}
}

// TestStaleResponseDoesNotCorruptRecycledArena is the exact race the
// generation tag exists to prevent: a response for a slot's old
// generation must be rejected before it ever touches the arena, even
// though the same index has since been recycled (by a Replace) to a
// brand new request with its own payload already copied in.
func TestStaleResponseDoesNotCorruptRecycledArena(t *testing.T) {
	s := New(3)
	oldGen, err := s.Replace(wire.Command{Code: wire.BRD}, 2)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	view, _ := s.Sendable()
	_ = view.MarkSent()
	s.cancelToIdle(oldGen)

	// The pool hands this index to a new request; its payload is already
	// sitting in the shared arena before the stale response arrives.
	newGen, err := s.Replace(wire.Command{Code: wire.FPRD}, 2)
	if err != nil {
		t.Fatalf("replace for new occupant: %v", err)
	}
	arena := []byte{0x11, 0x22}

	// A very late response tagged with the old generation must be
	// rejected without writing to arena at all.
	err = s.WakeDone(oldGen, wire.Command{Code: wire.BRD}, wire.PDUFlags{Length: 2}, 0, 1, []byte{0xFF, 0xFF}, arena)
	if !errors.Is(err, ecerr.ErrInvalidState) {
		t.Fatalf("expected stale response to be rejected, got %v", err)
	}
	if arena[0] != 0x11 || arena[1] != 0x22 {
		t.Fatalf("stale response corrupted the new occupant's arena: got %v", arena)
	}
	if s.Generation() != newGen {
		t.Fatalf("generation changed unexpectedly")
	}
}
