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

// Package diag writes point-in-time CSV dumps of slot pool occupancy and
// counters, for an operator to redirect to a file on demand (see the
// daemon's SIGUSR1 handler) rather than a standing metrics endpoint.
package diag

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/hootrhino/ecatmaster/metrics"
	"github.com/hootrhino/ecatmaster/pduloop"
)

var slotHeader = []string{"index", "state", "command", "adp_or_logical", "ado", "data_len"}

// WriteSlots dumps one row per slot in snap, in index order.
func WriteSlots(w io.Writer, snap []pduloop.SlotStatus) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(slotHeader); err != nil {
		return fmt.Errorf("diag: write header: %w", err)
	}
	for _, s := range snap {
		row := []string{
			strconv.Itoa(int(s.Index)),
			s.State.String(),
			s.Command.Code.String(),
			strconv.FormatUint(uint64(s.Command.ADP()), 10),
			strconv.FormatUint(uint64(s.Command.ADO()), 10),
			strconv.FormatUint(uint64(s.DataLen), 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("diag: write slot %d: %w", s.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var countersHeader = []string{
	"allocations", "back_pressure", "timeouts", "command_mismatch",
	"working_counter_mismatch", "decode_errors", "dropped",
}

// WriteCounters dumps a single-row CSV of the pool's cumulative metrics.
func WriteCounters(w io.Writer, snap metrics.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(countersHeader); err != nil {
		return fmt.Errorf("diag: write header: %w", err)
	}
	row := []string{
		strconv.FormatUint(snap.Allocations, 10),
		strconv.FormatUint(snap.BackPressure, 10),
		strconv.FormatUint(snap.Timeouts, 10),
		strconv.FormatUint(snap.CommandMismatch, 10),
		strconv.FormatUint(snap.WorkingCounterMismatch, 10),
		strconv.FormatUint(snap.DecodeErrors, 10),
		strconv.FormatUint(snap.Dropped, 10),
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("diag: write counters: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
