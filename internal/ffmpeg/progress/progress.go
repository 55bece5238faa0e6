// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具
//
// Package progress monitors a running FFmpeg through its -progress output.
//
// Start binds a loopback listener, launches FFmpeg with
// "-progress tcp://127.0.0.1:<port>" and accepts the connection FFmpeg opens.
// A goroutine then reads the key=value lines, folds them into Progress
// snapshots and sends them on the session's event channel. FFmpeg's own
// stdout and stderr are left alone.

package progress

import (
	"fmt"
	"time"
)

// Status of a snapshot
type Status int

const (
	StatusContinue Status = iota
	StatusEnd
)

func (s Status) String() string {
	if s == StatusEnd {
		return "end"
	}
	return "continue"
}

// MarshalText renders the status the way FFmpeg writes it
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses "continue" or "end"
func (s *Status) UnmarshalText(text []byte) error {
	st, ok := parseStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown status: %q", text)
	}
	*s = st
	return nil
}

func parseStatus(v string) (Status, bool) {
	switch v {
	case "continue":
		return StatusContinue, true
	case "end":
		return StatusEnd, true
	}
	return 0, false
}

// Progress is one progress report. A nil field was not reported.
type Progress struct {
	Frame      *uint64        `json:"frame,omitempty"`
	FPS        *float64       `json:"fps,omitempty"`
	TotalSize  *uint64        `json:"total_size,omitempty"`
	OutTime    *time.Duration `json:"out_time,omitempty"`
	DupFrames  *uint64        `json:"dup_frames,omitempty"`
	DropFrames *uint64        `json:"drop_frames,omitempty"`
	Speed      *float64       `json:"speed,omitempty"`
	Status     Status         `json:"status"`
}

// IsEnd reports whether this is the last snapshot of a session
func (p Progress) IsEnd() bool {
	return p.Status == StatusEnd
}

func (p Progress) String() string {
	s := fmt.Sprintf("status=%s", p.Status)
	if p.Frame != nil {
		s += fmt.Sprintf(" frame=%d", *p.Frame)
	}
	if p.FPS != nil {
		s += fmt.Sprintf(" fps=%.2f", *p.FPS)
	}
	if p.TotalSize != nil {
		s += fmt.Sprintf(" size=%d", *p.TotalSize)
	}
	if p.OutTime != nil {
		s += fmt.Sprintf(" time=%s", *p.OutTime)
	}
	if p.DupFrames != nil {
		s += fmt.Sprintf(" dup=%d", *p.DupFrames)
	}
	if p.DropFrames != nil {
		s += fmt.Sprintf(" drop=%d", *p.DropFrames)
	}
	if p.Speed != nil {
		s += fmt.Sprintf(" speed=%.3gx", *p.Speed)
	}
	return s
}

// Event is one item of a session stream: a snapshot or the terminal error.
type Event struct {
	Progress Progress
	Err      error
}
