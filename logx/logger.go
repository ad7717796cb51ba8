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

// Package logx is the leveled logger used across the PDU loop. It mirrors
// the shape of a typical field-bus master's logger: a small level enum,
// a prefix per subsystem, and an io.Writer sink, with no hard dependency
// on any particular logging framework.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Level is the severity of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone // disables logging entirely
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelNone:  "NONE",
}

var namesToLevel = map[string]Level{
	"DEBUG": LevelDebug,
	"INFO":  LevelInfo,
	"WARN":  LevelWarn,
	"ERROR": LevelError,
	"NONE":  LevelNone,
}

// ParseLevel maps a case-insensitive string to a Level.
func ParseLevel(s string) (Level, error) {
	if lvl, ok := namesToLevel[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return LevelInfo, fmt.Errorf("logx: unknown level %q", s)
}

// Logger is a small, mutex-protected leveled logger. Messages below the
// configured level are dropped before formatting. When the sink is a
// terminal, timestamps are rendered relative to start-up using
// go-humanize so long-running master processes get readable log output
// instead of a wall-clock timestamp on every line.
type Logger struct {
	mu       sync.Mutex
	level    Level
	out      io.Writer
	prefix   string
	start    time.Time
	relative bool
}

// New creates a Logger writing to out with the given minimum level and
// subsystem prefix (e.g. "pump", "tx", "rx"). If out is nil, os.Stderr is
// used. Relative (humanized) timestamps are used automatically when out
// is a terminal.
func New(out io.Writer, level Level, prefix string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	relative := false
	if f, ok := out.(*os.File); ok {
		relative = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Logger{
		level:    level,
		out:      out,
		prefix:   prefix,
		start:    time.Now(),
		relative: relative,
	}
}

// With returns a copy of the logger scoped to a more specific prefix,
// e.g. l.With("slot[3]").
func (l *Logger) With(suffix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := l.prefix
	if prefix != "" {
		prefix = prefix + "." + suffix
	} else {
		prefix = suffix
	}
	return &Logger{level: l.level, out: l.out, prefix: prefix, start: l.start, relative: l.relative}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level || l.level == LevelNone {
		return
	}
	msg := fmt.Sprintf(format, args...)
	var ts string
	if l.relative {
		ts = humanize.RelTime(l.start, time.Now(), "", "")
		if ts == "now" {
			ts = "+0s"
		}
	} else {
		ts = time.Now().Format(time.RFC3339)
	}
	fmt.Fprintf(l.out, "%s [%s] <%s> %s\n", ts, levelNames[level], l.prefix, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

// Nop returns a Logger that drops every message; useful as a default
// when the caller does not want logging wired up.
func Nop() *Logger {
	return New(io.Discard, LevelNone, "")
}
