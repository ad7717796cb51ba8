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

package socket

import "sync"

// Pipe is an in-memory L2Socket fake: every Write is appended to an
// outbound queue a test can drain with Sent, and every injected frame
// (via Inject) is queued for the next Read. It requires no interface
// name or root privileges, so it is what the pool's own tests and a
// "-simulate" dev mode use in place of a real NIC.
type Pipe struct {
	mu       sync.Mutex
	outbound [][]byte
	inbound  [][]byte
	closed   bool
}

// NewPipe creates an empty Pipe.
func NewPipe() *Pipe {
	return &Pipe{}
}

// Write records frame as sent and returns its full length.
func (p *Pipe) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errClosed
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	p.outbound = append(p.outbound, cp)
	return len(buf), nil
}

// Read pops the oldest injected frame into buf, or returns ErrWouldBlock
// if none is queued.
func (p *Pipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errClosed
	}
	if len(p.inbound) == 0 {
		return 0, ErrWouldBlock
	}
	frame := p.inbound[0]
	p.inbound = p.inbound[1:]
	n := copy(buf, frame)
	return n, nil
}

// Inject queues frame to be returned by a future Read, simulating a
// response arriving from the wire.
func (p *Pipe) Inject(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	p.inbound = append(p.inbound, cp)
}

// Sent drains and returns every frame written so far, in order.
func (p *Pipe) Sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.outbound
	p.outbound = nil
	return out
}

// Close marks the pipe closed; further Read/Write calls fail.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

var errClosed = pipeClosedError{}

type pipeClosedError struct{}

func (pipeClosedError) Error() string { return "socket: pipe closed" }
