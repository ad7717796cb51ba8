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

//go:build linux

package socket

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AFPacket is a raw Linux AF_PACKET/SOCK_RAW socket bound to a single
// interface, taking every Ethernet frame the NIC sees (ETH_P_ALL) and
// handing writes straight to the driver. This is the production
// implementation of L2Socket; socket.Pipe stands in for it in tests and
// on non-Linux dev machines.
type AFPacket struct {
	fd    int
	iface string
}

// NewAFPacket opens a non-blocking raw socket on the named interface.
func NewAFPacket(iface string) (*AFPacket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("socket: af_packet socket: %w", err)
	}

	ifi, err := unix.IfNameIndex()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: list interfaces: %w", err)
	}
	ifIndex := -1
	for _, e := range ifi {
		if e.Name == iface {
			ifIndex = int(e.Index)
			break
		}
	}
	if ifIndex < 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: interface %q not found", iface)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifIndex,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: bind to %q: %w", iface, err)
	}

	return &AFPacket{fd: fd, iface: iface}, nil
}

func htons(v uint32) uint16 {
	return uint16(v<<8&0xFF00 | v>>8&0xFF)
}

// Read returns ErrWouldBlock when the non-blocking socket has nothing
// queued, matching the L2Socket contract.
func (s *AFPacket) Read(buf []byte) (int, error) {
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("socket: read %s: %w", s.iface, err)
	}
	return n, nil
}

// Write sends buf as a single Ethernet frame on the bound interface.
func (s *AFPacket) Write(buf []byte) (int, error) {
	n, err := unix.Write(s.fd, buf)
	if err != nil {
		return n, fmt.Errorf("socket: write %s: %w", s.iface, err)
	}
	return n, nil
}

// Close releases the socket file descriptor.
func (s *AFPacket) Close() error {
	return unix.Close(s.fd)
}
