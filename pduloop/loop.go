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
	"fmt"

	"github.com/hootrhino/ecatmaster/ecerr"
	"github.com/hootrhino/ecatmaster/socket"
)

// Loop bundles a Pool with its Tx and Rx handles and drives the
// send/receive pump over a single L2Socket. Application code only needs
// Loop for the pump side; the request side (PduTx) is reachable directly
// off Loop.Tx, or can be handed out on its own since Tx holds only a
// *Pool pointer.
type Loop struct {
	Pool *Pool
	Tx   *Tx
	Rx   *Rx
}

// New builds a Pool per cfg together with the Tx/Rx handles over it.
func New(cfg Config) (*Loop, error) {
	pool, err := newPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Loop{
		Pool: pool,
		Tx:   &Tx{pool: pool},
		Rx:   &Rx{pool: pool},
	}, nil
}

// Run drains sendable frames and polls for inbound ones over sock until
// ctx is cancelled or a hard socket error occurs. Per frame:
//
//   - every currently-sendable slot is serialized and written before a
//     single non-blocking read is attempted, so a burst of requests
//     queued between two scans all go out together;
//   - a write that only partially lands, or an encode failure, is a hard
//     error: the wire protocol has no notion of a partial PDU, so there
//     is no safe way to continue using the socket. The slot itself is
//     left Sending, ready to resend once the caller reconnects;
//   - socket.ErrWouldBlock from a read means nothing is queued right
//     now, not a fault;
//   - a frame that fails to parse, or that updates a slot, is handled by
//     Rx.ReceiveFrame and never aborts the loop -- only a transport-level
//     read error does.
func (l *Loop) Run(ctx context.Context, sock socket.L2Socket) error {
	buf := make([]byte, socket.MaxFrameLen)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for {
			frame, ok := l.Tx.NextSendableFrame()
			if !ok {
				break
			}
			out, err := frame.WriteEthernetPacket(buf)
			if err != nil {
				return fmt.Errorf("pduloop: encode slot %d: %w", frame.Index(), err)
			}
			n, err := sock.Write(out)
			if err != nil {
				return fmt.Errorf("%w: %v", ecerr.ErrSendFrame, err)
			}
			if n != len(out) {
				return fmt.Errorf("%w: %w", ecerr.ErrSendFrame, &ecerr.PartialSend{Len: len(out), Sent: n})
			}
			if err := frame.MarkSent(); err != nil {
				l.Pool.log.Warnf("mark sent slot %d: %v", frame.Index(), err)
			}
		}

		n, err := sock.Read(buf)
		switch {
		case errors.Is(err, socket.ErrWouldBlock):
		case err != nil:
			return fmt.Errorf("%w: %v", ecerr.ErrReceiveFrame, err)
		default:
			if rerr := l.Rx.ReceiveFrame(buf[:n]); rerr != nil {
				l.Pool.log.Debugf("receive_frame: %v", rerr)
			}
		}

		l.Pool.waker.Park(ctx)
	}
}
