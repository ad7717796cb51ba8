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

// Package ecerr is the flat error taxonomy shared by every layer of the
// PDU loop: codec, slot state machine, pool, request API and pump. Each
// request-level value is a terminal outcome for the affected request and
// does not stop the loop; ErrSendFrame and ErrReceiveFrame (with
// PartialSend) are pump-level failures that end Loop.Run.
package ecerr

import "fmt"

// Sentinel errors. Use errors.Is against these; CommandMismatch and
// WorkingCounter carry extra fields and should be inspected with
// errors.As.
var (
	// ErrBackPressure is returned when the slot selected by the
	// monotonic counter is still in use (neither Idle nor Done with its
	// result already read). Also known as "SwapState" at the
	// slot layer.
	ErrBackPressure = fmt.Errorf("pduloop: no free slot (back pressure)")

	// ErrTooLong is returned when a requested payload exceeds the
	// pool's configured maximum PDU data length.
	ErrTooLong = fmt.Errorf("pduloop: payload exceeds max PDU length")

	// ErrTimeout is returned when a request's deadline elapses before
	// the slot reaches Done.
	ErrTimeout = fmt.Errorf("pduloop: timed out waiting for response")

	// ErrInvalidState is returned internally when a slot transition's
	// precondition no longer holds (lost race, already recycled). It
	// is never surfaced to a pdu_tx caller directly.
	ErrInvalidState = fmt.Errorf("pduloop: slot not in expected state")

	// ErrSendFrame marks a hard socket write failure. Fatal to the pump.
	ErrSendFrame = fmt.Errorf("pduloop: send frame failed")

	// ErrReceiveFrame marks a hard socket read failure. Fatal to the pump.
	ErrReceiveFrame = fmt.Errorf("pduloop: receive frame failed")
)

// InvalidIndex is returned when a PDU index does not map to a slot in
// range [0, N).
type InvalidIndex struct {
	Index int
}

func (e *InvalidIndex) Error() string {
	return fmt.Sprintf("pduloop: invalid slot index %d", e.Index)
}

// CommandMismatch is returned when the command code echoed by a
// responder does not match the command code that was sent for the same
// PDU index.
type CommandMismatch struct {
	Sent     byte
	Received byte
}

func (e *CommandMismatch) Error() string {
	return fmt.Sprintf("pduloop: command mismatch: sent=0x%02X received=0x%02X", e.Sent, e.Received)
}

// WorkingCounter is returned by pduloop's Response.Wkc when the working
// counter attached to a response does not equal the value the caller
// expected.
type WorkingCounter struct {
	Expected uint16
	Received uint16
	Context  string
}

func (e *WorkingCounter) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("pduloop: working counter mismatch (%s): expected %d, got %d", e.Context, e.Expected, e.Received)
	}
	return fmt.Sprintf("pduloop: working counter mismatch: expected %d, got %d", e.Expected, e.Received)
}

// PartialSend is returned when a pump write to the socket wrote fewer
// bytes than the serialized frame required.
type PartialSend struct {
	Len  int
	Sent int
}

func (e *PartialSend) Error() string {
	return fmt.Sprintf("pduloop: partial send: wrote %d of %d bytes", e.Sent, e.Len)
}

// Validation wraps a codec-level parse failure (bad frame header, short
// buffer, unknown command code, leftover bytes after the declared PDU
// length).
type Validation struct {
	Reason string
}

func (e *Validation) Error() string {
	return fmt.Sprintf("pduloop: validation error: %s", e.Reason)
}
