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

// Package pduloop is the fixed-capacity slot pool, the blocking-TX /
// non-blocking-RX pump, and the async pdu_tx request contract that
// multiplex many concurrent PDU requests onto one raw L2 socket. See
// slot for the per-slot state machine and wire for the frame codec.
package pduloop

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hootrhino/ecatmaster/ecerr"
	"github.com/hootrhino/ecatmaster/logx"
	"github.com/hootrhino/ecatmaster/metrics"
	"github.com/hootrhino/ecatmaster/slot"
	"github.com/hootrhino/ecatmaster/wire"
)

// DefaultTimeout is the deadline pdu_tx arms when the caller does not
// supply a context with its own deadline.
const DefaultTimeout = 30 * time.Millisecond

// Pool owns the fixed array of slots and the back-to-back payload arena
// they share. It is constructed once and the slot array and arena are
// sized at construction; each allocation still creates a fresh wake
// channel for its slot, so the request path is not allocation-free.
type Pool struct {
	n int
	m int

	arena []byte
	slots []*slot.Slot

	counter atomic.Uint32

	masterMAC [6]byte
	destMAC   [6]byte

	waker *Waker

	Metrics *metrics.Counters
	log     *logx.Logger
}

// Config fixes the pool's capacity and identity at construction.
type Config struct {
	// N is the maximum number of concurrent in-flight PDUs, 1..=256.
	N int
	// M is the maximum PDU payload size in bytes.
	M int
	// MasterMAC overrides the default pseudo source MAC. Zero value
	// means "use wire.MasterMAC".
	MasterMAC [6]byte
	// DestMAC is the destination address written into outbound frames.
	// Zero value means broadcast (ff:ff:ff:ff:ff:ff).
	DestMAC [6]byte
	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger *logx.Logger
}

// newPool constructs a Pool with N slots, each given an M-byte exclusive
// range of the backing arena. N must be in [1, 256]; M must be > 0.
func newPool(cfg Config) (*Pool, error) {
	if cfg.N < 1 || cfg.N > 256 {
		return nil, fmt.Errorf("pduloop: N must be in [1,256], got %d", cfg.N)
	}
	if cfg.M <= 0 {
		return nil, fmt.Errorf("pduloop: M must be > 0, got %d", cfg.M)
	}

	master := cfg.MasterMAC
	if master == ([6]byte{}) {
		master = wire.MasterMAC
	}
	dest := cfg.DestMAC
	if dest == ([6]byte{}) {
		dest = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	}
	log := cfg.Logger
	if log == nil {
		log = logx.Nop()
	}

	p := &Pool{
		n:         cfg.N,
		m:         cfg.M,
		arena:     make([]byte, cfg.N*cfg.M),
		slots:     make([]*slot.Slot, cfg.N),
		masterMAC: master,
		destMAC:   dest,
		waker:     newWaker(),
		Metrics:   &metrics.Counters{},
		log:       log,
	}
	for i := range p.slots {
		p.slots[i] = slot.New(uint8(i))
	}
	return p, nil
}

// N returns the pool's configured slot count.
func (p *Pool) N() int { return p.n }

// M returns the pool's configured max PDU payload size.
func (p *Pool) M() int { return p.m }

// frameData returns slot idx's exclusive arena range. idx must be in
// range; callers (pool-internal, plus Rx after validating the index
// from a parsed PDU) are expected to have already range-checked it.
func (p *Pool) frameData(idx uint8) []byte {
	start := int(idx) * p.m
	return p.arena[start : start+p.m]
}

// slotAt validates idx against the pool's bounds and returns the slot.
func (p *Pool) slotAt(idx int) (*slot.Slot, error) {
	if idx < 0 || idx >= p.n {
		return nil, &ecerr.InvalidIndex{Index: idx}
	}
	return p.slots[idx], nil
}

// allocate picks the next slot via the monotonic counter (reduced modulo
// N) and transitions it to Created. It never overwrites a busy slot: if
// the chosen slot is neither Idle nor Done with its result already read,
// it fails with ErrBackPressure and
// leaves slot selection entirely up to the caller to retry.
func (p *Pool) allocate(command wire.Command, dataLen uint16) (uint8, uint32, error) {
	if int(dataLen) > p.m {
		return 0, 0, ecerr.ErrTooLong
	}
	raw := p.counter.Add(1) - 1
	idx := uint8(raw % uint32(p.n))

	gen, err := p.slots[idx].Replace(command, dataLen)
	if err != nil {
		p.Metrics.BackPressure.Add(1)
		p.log.Debugf("allocate: slot %d busy, back pressure", idx)
		return 0, 0, err
	}
	p.Metrics.Allocations.Add(1)
	return idx, gen, nil
}

// SlotStatus is a point-in-time view of one slot, used by diag to dump
// pool occupancy.
type SlotStatus struct {
	Index   uint8
	State   slot.State
	Command wire.Command
	DataLen uint16
}

// Snapshot returns the current state of every slot, for diagnostics.
func (p *Pool) Snapshot() []SlotStatus {
	out := make([]SlotStatus, p.n)
	for i, s := range p.slots {
		out[i] = SlotStatus{
			Index:   s.Index(),
			State:   s.State(),
			Command: s.Command(),
			DataLen: s.DataLen(),
		}
	}
	return out
}
