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
	"errors"

	"github.com/hootrhino/ecatmaster/ecerr"
	"github.com/hootrhino/ecatmaster/wire"
)

// Rx is the pump-RX-side handle onto a Pool.
type Rx struct {
	pool *Pool
}

// ReceiveFrame parses one raw Ethernet frame. Frames whose EtherType
// isn't EtherCAT, or whose source MAC is the master's own (the frame has
// circulated the ring and come back), are dropped silently. A response
// for an index out of range, or for a slot not currently Sent, is also
// dropped silently -- both are expected races (a stray frame, a response
// that lost to a timeout) rather than faults.
//
// The one error ReceiveFrame does return is a command-code mismatch
// between what was sent and what a responder echoed back: the caller
// (the pump driver loop) logs it and keeps running, while the original
// pdu_tx caller eventually times out, since the slot is left in Sent.
//
// The arena write for the response payload happens inside WakeDone
// itself, gated by the same generation/state check that validates the
// rest of the response -- ReceiveFrame never touches the arena directly.
// The generation handed to WakeDone is the slot's own at the moment the
// frame is looked up, so this rejects a slot that is recycled between
// that lookup and the write. The wire carries no generation: a late
// response that arrives after its index was recycled, while the new
// request is already Sent with the same command code, is delivered to
// that new request.
func (r *Rx) ReceiveFrame(raw []byte) error {
	pool := r.pool

	hdr, payload, err := wire.DecodeEthernetFrame(raw)
	if err != nil {
		pool.log.Warnf("dropping short ethernet frame: %v", err)
		return nil
	}
	if hdr.EtherType != wire.EtherTypeECAT || hdr.Src == pool.masterMAC {
		return nil
	}

	pdu, err := wire.DecodeECATPayload(payload)
	if err != nil {
		pool.Metrics.DecodeErrors.Add(1)
		pool.log.Warnf("dropping malformed ecat frame: %v", err)
		return nil
	}

	s, serr := pool.slotAt(int(pdu.Index))
	if serr != nil {
		pool.Metrics.Dropped.Add(1)
		pool.log.Warnf("dropping frame with out-of-range index %d", pdu.Index)
		return nil
	}

	gen := s.Generation()
	buf := pool.frameData(pdu.Index)

	err = s.WakeDone(gen, pdu.Command, pdu.Flags, pdu.IRQ, pdu.WorkingCounter, pdu.Data, buf)
	if err == nil {
		return nil
	}

	var mismatch *ecerr.CommandMismatch
	if errors.As(err, &mismatch) {
		pool.Metrics.CommandMismatch.Add(1)
		pool.log.Debugf("command mismatch on slot %d: %v", pdu.Index, mismatch)
		return err
	}

	// Any other error here means the slot moved on (not Sent, or a
	// different generation) between slotAt and WakeDone -- a stray or
	// late frame. Drop it silently.
	pool.Metrics.Dropped.Add(1)
	return nil
}
