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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hootrhino/ecatmaster/config"
	"github.com/hootrhino/ecatmaster/diag"
	"github.com/hootrhino/ecatmaster/logx"
	"github.com/hootrhino/ecatmaster/pduloop"
	"github.com/hootrhino/ecatmaster/socket"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ecatmasterd: %v\n", err)
		os.Exit(1)
	}

	level, _ := logx.ParseLevel(cfg.Log.Level)
	log := logx.New(os.Stderr, level, "ecatmasterd")

	runID := uuid.New()
	log.Infof("starting run %s (interface=%q simulate=%v slots=%d payload=%dB)",
		runID, cfg.Master.Interface, cfg.Master.Simulate, cfg.Pool.Slots, cfg.Pool.PayloadBytes)

	master, err := config.ParseMAC(cfg.Master.MAC)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	dest, err := config.ParseMAC(cfg.Master.DestMAC)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	loop, err := pduloop.New(pduloop.Config{
		N:         cfg.Pool.Slots,
		M:         cfg.Pool.PayloadBytes,
		MasterMAC: master,
		DestMAC:   dest,
		Logger:    log.With("pump"),
	})
	if err != nil {
		log.Errorf("build pdu loop: %v", err)
		os.Exit(1)
	}

	var sock socket.L2Socket
	if cfg.Master.Simulate {
		log.Warnf("running in -simulate mode against an in-memory socket; no frames reach the wire")
		sock = socket.NewPipe()
	} else {
		sock, err = socket.NewAFPacket(cfg.Master.Interface)
		if err != nil {
			log.Errorf("open raw socket on %q: %v", cfg.Master.Interface, err)
			os.Exit(1)
		}
	}
	defer sock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go func() {
		for {
			select {
			case s := <-sigCh:
				log.Infof("received signal %v, shutting down", s)
				cancel()
				return
			case <-dumpCh:
				dumpDiagnostics(log, loop)
			}
		}
	}()

	if err := loop.Run(ctx, sock); err != nil && ctx.Err() == nil {
		log.Errorf("pump exited: %v", err)
		os.Exit(1)
	}
	log.Infof("stopped")
}

// dumpDiagnostics writes a slot-occupancy and counters CSV snapshot to
// stderr, triggered by SIGUSR1 so an operator can inspect a running
// daemon without a standing metrics endpoint.
func dumpDiagnostics(log *logx.Logger, loop *pduloop.Loop) {
	log.Infof("--- slot snapshot ---")
	if err := diag.WriteSlots(os.Stderr, loop.Pool.Snapshot()); err != nil {
		log.Errorf("write slot snapshot: %v", err)
	}
	log.Infof("--- counters ---")
	if err := diag.WriteCounters(os.Stderr, loop.Pool.Metrics.Snapshot()); err != nil {
		log.Errorf("write counters: %v", err)
	}
}
