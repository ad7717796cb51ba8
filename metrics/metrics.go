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

// Package metrics holds the plain atomic counters the pool bumps on the
// request path. There is no metrics server here -- just the counters and
// a Snapshot, grounded the same way the teacher's register scheduler
// tracks read/error counts inline rather than through a separate
// framework.
package metrics

import "sync/atomic"

// Counters tallies allocation outcomes and RX-side rejections across the
// lifetime of one Pool.
type Counters struct {
	Allocations    atomic.Uint64
	BackPressure   atomic.Uint64
	Timeouts       atomic.Uint64
	CommandMismatch atomic.Uint64
	WorkingCounterMismatch atomic.Uint64
	DecodeErrors   atomic.Uint64
	Dropped        atomic.Uint64
}

// Snapshot is a point-in-time, allocation-free copy of Counters' values.
type Snapshot struct {
	Allocations            uint64
	BackPressure           uint64
	Timeouts               uint64
	CommandMismatch        uint64
	WorkingCounterMismatch uint64
	DecodeErrors           uint64
	Dropped                uint64
}

// Snapshot reads every counter.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Allocations:            c.Allocations.Load(),
		BackPressure:           c.BackPressure.Load(),
		Timeouts:               c.Timeouts.Load(),
		CommandMismatch:        c.CommandMismatch.Load(),
		WorkingCounterMismatch: c.WorkingCounterMismatch.Load(),
		DecodeErrors:           c.DecodeErrors.Load(),
		Dropped:                c.Dropped.Load(),
	}
}
