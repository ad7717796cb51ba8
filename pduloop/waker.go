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
	"time"
)

// Waker is the pump's single wake slot: a size-1 doorbell that a request
// goroutine rings (best-effort, never blocking) after allocating a slot,
// and that the pump parks on between scans. Exactly one goroutine (the
// pump) should ever call Park; any number of request goroutines call
// TryNotify.
type Waker struct {
	ch chan struct{}
}

func newWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// TryNotify performs a non-blocking wake. It returns false if the
// doorbell is already rung (someone else's notification is still
// pending, or the pump simply hasn't drained it yet) -- callers log and
// move on rather than block, since the pump also scans on its own
// periodic tick regardless.
func (w *Waker) TryNotify() bool {
	select {
	case w.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// pollInterval bounds how long the pump ever sleeps without being
// notified, so non-blocking reads still get polled even when nothing new
// is queued to send.
const pollInterval = 2 * time.Millisecond

// Park blocks until either TryNotify rings the doorbell, ctx is done, or
// the poll interval elapses -- whichever comes first.
func (w *Waker) Park(ctx context.Context) {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-w.ch:
	case <-ctx.Done():
	case <-timer.C:
	}
}
