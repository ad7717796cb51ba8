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

package pduloop

import (
	"context"
	"errors"

	"github.com/hootrhino/ecatmaster/ecerr"
	"github.com/hootrhino/ecatmaster/metrics"
	"github.com/hootrhino/ecatmaster/slot"
	"github.com/hootrhino/ecatmaster/wire"
)

// Tx is the request-API and pump-TX-side handle onto a Pool. Both sides
// are safe to use from many goroutines; PduTx is the blocking request
// contract application code calls, while NextSendableFrame is the
// single-consumer pump primitive.
type Tx struct {
	pool *Pool
}

// PduTx enqueues one request, waits for its response (or ctx's
// deadline, or DefaultTimeout if ctx carries none), and returns the
// response payload together with its working counter. The returned
// slice aliases the pool's arena and is only valid until the slot is
// recycled by a later allocation of the same index; callers that need
// to keep the bytes around must copy them.
func (t *Tx) PduTx(ctx context.Context, command wire.Command, data []byte, dataLen uint16) ([]byte, uint16, error) {
	pool := t.pool
	if int(dataLen) > pool.m || len(data) > pool.m {
		return nil, 0, ecerr.ErrTooLong
	}

	idx, gen, err := pool.allocate(command, dataLen)
	if err != nil {
		return nil, 0, err
	}

	buf := pool.frameData(idx)
	clear(buf)
	n := int(dataLen)
	if len(data) < n {
		n = len(data)
	}
	copy(buf[:n], data[:n])

	if !pool.waker.TryNotify() {
		pool.log.Debugf("tx waker already pending; relying on the pump's own scan")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	s := pool.slots[idx]
	_, _, wkc, err := s.AwaitResponse(ctx, gen)
	if err != nil {
		switch {
		case errors.Is(err, ecerr.ErrTimeout):
			pool.Metrics.Timeouts.Add(1)
		default:
			var mismatch *ecerr.CommandMismatch
			if errors.As(err, &mismatch) {
				pool.Metrics.CommandMismatch.Add(1)
			}
		}
		return nil, 0, err
	}

	return buf[:dataLen], wkc, nil
}

// Response pairs a decoded value with the working counter its PDU came
// back with, mirroring the source's PduResponse<T> tuple. Construct one
// with NewResponse so Wkc has a path back to the originating pool's
// counters.
type Response[T any] struct {
	Value   T
	WKC     uint16
	metrics *metrics.Counters
}

// NewResponse builds a Response tied to t's pool, so a subsequent Wkc
// mismatch is recorded in that pool's metrics. Callers typically call
// this right after decoding a PduTx payload into T.
func NewResponse[T any](t *Tx, value T, wkc uint16) Response[T] {
	return Response[T]{Value: value, WKC: wkc, metrics: t.pool.Metrics}
}

// Wkc returns Value if WKC equals expected, and an *ecerr.WorkingCounter
// otherwise, bumping the originating pool's WorkingCounterMismatch
// counter on a mismatch. context is a short label identifying the check,
// surfaced in the error for diagnostics.
func (r Response[T]) Wkc(expected uint16, context string) (T, error) {
	if r.WKC == expected {
		return r.Value, nil
	}
	if r.metrics != nil {
		r.metrics.WorkingCounterMismatch.Add(1)
	}
	var zero T
	return zero, &ecerr.WorkingCounter{Expected: expected, Received: r.WKC, Context: context}
}

// NextSendableFrame scans slots in index order for the first one that is
// Created (or was claimed Sending by a prior scan but never actually
// sent -- see slot.Sendable) and returns a SendableFrame view over it.
// It returns false if no slot has anything to send right now.
func (t *Tx) NextSendableFrame() (*SendableFrame, bool) {
	for _, s := range t.pool.slots {
		if view, ok := s.Sendable(); ok {
			return &SendableFrame{pool: t.pool, view: view}, true
		}
	}
	return nil, false
}

// SendableFrame is a transient handle the pump uses to serialize exactly
// one Created/Sending slot into a caller-provided buffer and then mark
// it sent.
type SendableFrame struct {
	pool *Pool
	view slot.SendableView
}

// Index returns the underlying slot index.
func (f *SendableFrame) Index() uint8 { return f.view.Index }

// WriteEthernetPacket serializes the frame's command, index and the
// slot's current arena contents into buf, returning the exact sub-slice
// of buf that was written -- a single contiguous range ready to hand to
// the socket with no further copying.
func (f *SendableFrame) WriteEthernetPacket(buf []byte) ([]byte, error) {
	data := f.pool.frameData(f.view.Index)
	pdu := wire.PDU{
		Command: f.view.Command,
		Index:   f.view.Index,
		Data:    data[:f.view.DataLen],
	}
	return wire.EncodeEthernetFrame(buf, f.pool.destMAC, f.pool.masterMAC, pdu, f.view.DataLen)
}

// MarkSent transitions the underlying slot Sending -> Sent. It returns an
// error only when the slot is no longer Sending for this view's
// generation (for example its request timed out and returned it to
// Idle); the slot is then left as it is.
func (f *SendableFrame) MarkSent() error {
	return f.view.MarkSent()
}
