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

package diag

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/hootrhino/ecatmaster/metrics"
	"github.com/hootrhino/ecatmaster/pduloop"
	"github.com/hootrhino/ecatmaster/slot"
	"github.com/hootrhino/ecatmaster/wire"
)

func TestWriteSlotsRoundTrip(t *testing.T) {
	snap := []pduloop.SlotStatus{
		{Index: 0, State: slot.Idle, Command: wire.Command{}, DataLen: 0},
		{Index: 1, State: slot.Sent, Command: wire.NewPhysicalCommand(wire.FPRD, 1, 0x20), DataLen: 4},
	}

	var buf bytes.Buffer
	if err := WriteSlots(&buf, snap); err != nil {
		t.Fatalf("WriteSlots: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != len(snap)+1 {
		t.Fatalf("expected %d rows (header + %d slots), got %d", len(snap)+1, len(snap), len(rows))
	}
	if got := rows[0]; len(got) != len(slotHeader) {
		t.Fatalf("header has %d columns, want %d", len(got), len(slotHeader))
	}

	secondRow := rows[2]
	if secondRow[0] != "1" {
		t.Fatalf("index column = %q, want %q", secondRow[0], "1")
	}
	if secondRow[1] != "Sent" {
		t.Fatalf("state column = %q, want %q", secondRow[1], "Sent")
	}
	if secondRow[2] != "FPRD" {
		t.Fatalf("command column = %q, want %q", secondRow[2], "FPRD")
	}
	if secondRow[5] != "4" {
		t.Fatalf("data_len column = %q, want %q", secondRow[5], "4")
	}
}

func TestWriteCountersRoundTrip(t *testing.T) {
	c := &metrics.Counters{}
	c.Allocations.Add(10)
	c.Timeouts.Add(2)
	c.CommandMismatch.Add(1)

	var buf bytes.Buffer
	if err := WriteCounters(&buf, c.Snapshot()); err != nil {
		t.Fatalf("WriteCounters: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 data row, got %d rows", len(rows))
	}
	if rows[0][0] != "allocations" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "10" {
		t.Fatalf("allocations column = %q, want %q", rows[1][0], "10")
	}
	if rows[1][2] != "2" {
		t.Fatalf("timeouts column = %q, want %q", rows[1][2], "2")
	}
	if rows[1][3] != "1" {
		t.Fatalf("command_mismatch column = %q, want %q", rows[1][3], "1")
	}
}
