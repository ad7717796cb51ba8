// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// Package slot implements one reusable in-flight-PDU state machine: the
// Idle -> Created -> Sending -> Sent -> Done lifecycle, and the
// single-consumer rendezvous a request goroutine suspends on while
// waiting for a response. A Slot never owns the payload arena itself --
// the pool slices that out and hands the matching range to whichever
// endpoint currently owns the slot's state.
package slot

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hootrhino/ecatmaster/ecerr"
	"github.com/hootrhino/ecatmaster/wire"
)

// State is one state in the slot's lifecycle.
type State uint8

const (
	Idle State = iota
	Created
	Sending
	Sent
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Created:
		return "Created"
	case Sending:
		return "Sending"
	case Sent:
		return "Sent"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// tag packs (generation, state) into one atomic word: the low byte is
// the State, the remaining bits are a generation counter bumped on every
// successful Replace. A consumer that suspended against generation G is
// unaffected by -- and ignores -- anything that happens to the slot
// after it moves to a later generation.
const stateBits = 8
const stateMask = 1<<stateBits - 1

func pack(generation uint32, state State) uint32 {
	return generation<<stateBits | uint32(state)
}

func unpack(tag uint32) (generation uint32, state State) {
	return tag >> stateBits, State(tag & stateMask)
}

// Slot is one of the pool's N reusable PDU slots.
type Slot struct {
	index uint8
	tag   atomic.Uint32

	mu      sync.Mutex
	command wire.Command
	dataLen uint16
	flags   wire.PDUFlags
	irq     uint16
	wkc     uint16
	waitCh  chan struct{}
	taken   bool // the consumer has read the Done result
}

// New creates a Slot at the given pool index, initially Idle.
func New(index uint8) *Slot {
	return &Slot{index: index}
}

// Index returns the slot's fixed array index, which equals its wire PDU
// index for the slot's entire non-Idle lifetime.
func (s *Slot) Index() uint8 { return s.index }

// State returns the slot's current lifecycle state.
func (s *Slot) State() State {
	_, st := unpack(s.tag.Load())
	return st
}

// Generation returns the slot's current generation counter, useful for
// callers (the pool) that need to correlate a SendableView or an
// in-flight await with the exact allocation that produced it.
func (s *Slot) Generation() uint32 {
	gen, _ := unpack(s.tag.Load())
	return gen
}

// Command returns the command most recently stashed by Replace.
func (s *Slot) Command() wire.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.command
}

// DataLen returns the data length most recently stashed by Replace.
func (s *Slot) DataLen() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataLen
}

// Replace transitions Idle -> Created, or Done -> Created once the
// previous consumer has read its result through AwaitResponse. It fails
// with ecerr.ErrBackPressure otherwise; the caller (the pool's allocator)
// decides whether to retry with a different index or give up. On success
// it returns the new generation, which the caller must thread through to
// AwaitResponse.
func (s *Slot) Replace(command wire.Command, dataLen uint16) (uint32, error) {
	old := s.tag.Load()
	gen, st := unpack(old)
	if st == Done {
		s.mu.Lock()
		taken := s.taken
		s.mu.Unlock()
		if !taken {
			return 0, ecerr.ErrBackPressure
		}
	} else if st != Idle {
		return 0, ecerr.ErrBackPressure
	}
	newGen := gen + 1
	if !s.tag.CompareAndSwap(old, pack(newGen, Created)) {
		return 0, ecerr.ErrBackPressure
	}

	s.mu.Lock()
	s.command = command
	s.dataLen = dataLen
	s.flags = wire.PDUFlags{}
	s.irq = 0
	s.wkc = 0
	s.waitCh = make(chan struct{})
	s.taken = false
	s.mu.Unlock()

	return newGen, nil
}

// SendableView is a transient handle permitting exactly one serialization
// pass over a Created (or a previously claimed but not yet sent) slot.
type SendableView struct {
	slot       *Slot
	generation uint32

	Index   uint8
	Command wire.Command
	DataLen uint16
}

// Sendable returns a view and transitions Created -> Sending. If the
// slot is already Sending (a prior scan claimed it but the pump never
// reached MarkSent -- e.g. a failed socket write) it is resurfaced
// as-is rather than being skipped, so a failed send is retried on the
// next scan instead of stalling the slot forever.
func (s *Slot) Sendable() (SendableView, bool) {
	for {
		old := s.tag.Load()
		gen, st := unpack(old)
		switch st {
		case Sending:
			return s.viewAt(gen), true
		case Created:
			if s.tag.CompareAndSwap(old, pack(gen, Sending)) {
				return s.viewAt(gen), true
			}
			// lost race (e.g. a concurrent cancellation); reread and retry.
		default:
			return SendableView{}, false
		}
	}
}

func (s *Slot) viewAt(gen uint32) SendableView {
	s.mu.Lock()
	cmd, dl := s.command, s.dataLen
	s.mu.Unlock()
	return SendableView{slot: s, generation: gen, Index: s.index, Command: cmd, DataLen: dl}
}

// MarkSent transitions Sending -> Sent. It fails silently (returns
// ecerr.ErrInvalidState) if the slot moved on for any reason -- the pump
// treats that as "nothing to do", per the design's self-healing policy.
func (v SendableView) MarkSent() error {
	old := pack(v.generation, Sending)
	if !v.slot.tag.CompareAndSwap(old, pack(v.generation, Sent)) {
		return ecerr.ErrInvalidState
	}
	return nil
}

// AwaitResponse suspends the calling goroutine until the slot reaches
// Done for the given generation, or until ctx is done. It is a
// single-consumer rendezvous: at most one goroutine should call this for
// a given generation. Re-calling after Done has already fired returns
// immediately with the same result, since the wake channel stays closed,
// until a later Replace recycles the slot; a successful return is what
// allows that Replace.
func (s *Slot) AwaitResponse(ctx context.Context, generation uint32) (wire.PDUFlags, uint16, uint16, error) {
	s.mu.Lock()
	gen, _ := unpack(s.tag.Load())
	if gen != generation {
		s.mu.Unlock()
		return wire.PDUFlags{}, 0, 0, ecerr.ErrInvalidState
	}
	ch := s.waitCh
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		select {
		case <-ch:
			// Response landed in the same instant the deadline fired; fall
			// through and report it instead of a spurious timeout.
		default:
			s.cancelToIdle(generation)
			return wire.PDUFlags{}, 0, 0, ecerr.ErrTimeout
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen, _ := unpack(s.tag.Load()); gen != generation {
		return wire.PDUFlags{}, 0, 0, ecerr.ErrInvalidState
	}
	s.taken = true
	return s.flags, s.irq, s.wkc, nil
}

// cancelToIdle is called by a timed-out or cancelled consumer. It
// transitions the slot back to Idle (regardless of its current state)
// provided the generation hasn't already moved on, and clears the
// command, data length and wake handle so a stale read can't observe
// them.
func (s *Slot) cancelToIdle(generation uint32) {
	old := s.tag.Load()
	gen, _ := unpack(old)
	if gen != generation {
		return
	}
	s.tag.CompareAndSwap(old, pack(gen, Idle))

	s.mu.Lock()
	s.command = wire.Command{}
	s.dataLen = 0
	s.flags = wire.PDUFlags{}
	s.irq = 0
	s.wkc = 0
	s.waitCh = nil
	s.mu.Unlock()
}

// WakeDone is called by the RX path once a response for this slot's
// index has been parsed. It verifies the echoed command's opcode
// matches the one that was sent, copies data into arena and flags/irq/wkc
// into the slot, and transitions Sent -> Done, waking the consumer. The
// arena write only happens once the generation/state check above and the
// command check below have both passed, so a late or stray response for
// an index that has since timed out and been recycled to a new request
// can never clobber that new request's payload: it is rejected before it
// touches arena at all. A response for a slot not in Sent (stray frame,
// race with a timeout) is reported back as ecerr.ErrInvalidState so the
// caller can drop it silently; a command mismatch is reported as
// *ecerr.CommandMismatch and leaves the slot in Sent so a subsequent
// correct response -- or the timeout -- can still resolve it.
func (s *Slot) WakeDone(generation uint32, command wire.Command, flags wire.PDUFlags, irq, wkc uint16, data, arena []byte) error {
	old := s.tag.Load()
	gen, st := unpack(old)
	if gen != generation || st != Sent {
		return ecerr.ErrInvalidState
	}

	s.mu.Lock()
	if s.tag.Load() != old {
		s.mu.Unlock()
		return ecerr.ErrInvalidState
	}
	sentCommand := s.command
	if command.Code != sentCommand.Code {
		s.mu.Unlock()
		return &ecerr.CommandMismatch{Sent: byte(sentCommand.Code), Received: byte(command.Code)}
	}
	n := len(data)
	if n > len(arena) {
		n = len(arena)
	}
	copy(arena[:n], data[:n])
	s.flags = flags
	s.irq = irq
	s.wkc = wkc
	ch := s.waitCh
	s.mu.Unlock()

	if !s.tag.CompareAndSwap(old, pack(gen, Done)) {
		return ecerr.ErrInvalidState
	}
	close(ch)
	return nil
}
