// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package progress

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func feed(t *testing.T, acc *Accumulator, pairs ...string) (Progress, bool) {
	t.Helper()
	var snapshot Progress
	var published bool
	for i := 0; i+1 < len(pairs); i += 2 {
		s, p, err := acc.Add(pairs[i], pairs[i+1])
		if err != nil {
			t.Fatalf("Add(%q, %q) returned error: %v", pairs[i], pairs[i+1], err)
		}
		if p {
			if published {
				t.Fatalf("more than one snapshot published")
			}
			snapshot, published = s, true
		}
	}
	return snapshot, published
}

func TestAccumulatorAllFields(t *testing.T) {
	var acc Accumulator
	p, ok := feed(t, &acc,
		"frame", "100",
		"fps", "29.97",
		"total_size", "204800",
		"out_time_us", "3500000",
		"dup_frames", "2",
		"drop_frames", "1",
		"speed", "1.02x",
		"progress", "continue",
	)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if p.Frame == nil || *p.Frame != 100 {
		t.Fatalf("frame: %v", p.Frame)
	}
	if p.FPS == nil || *p.FPS != 29.97 {
		t.Fatalf("fps: %v", p.FPS)
	}
	if p.TotalSize == nil || *p.TotalSize != 204800 {
		t.Fatalf("total_size: %v", p.TotalSize)
	}
	if p.OutTime == nil || *p.OutTime != 3500*time.Millisecond {
		t.Fatalf("out_time: %v", p.OutTime)
	}
	if p.DupFrames == nil || *p.DupFrames != 2 {
		t.Fatalf("dup_frames: %v", p.DupFrames)
	}
	if p.DropFrames == nil || *p.DropFrames != 1 {
		t.Fatalf("drop_frames: %v", p.DropFrames)
	}
	if p.Speed == nil || *p.Speed != 1.02 {
		t.Fatalf("speed: %v", p.Speed)
	}
	if p.Status != StatusContinue {
		t.Fatalf("status: %v", p.Status)
	}
}

func TestAccumulatorUntouchedFieldsAbsent(t *testing.T) {
	var acc Accumulator
	p, ok := feed(t, &acc, "frame", "7", "progress", "end")
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if p.Frame == nil || *p.Frame != 7 {
		t.Fatalf("frame: %v", p.Frame)
	}
	if p.FPS != nil || p.TotalSize != nil || p.OutTime != nil || p.DupFrames != nil || p.DropFrames != nil || p.Speed != nil {
		t.Fatalf("unexpected fields set: %s", p)
	}
	if !p.IsEnd() {
		t.Fatalf("expected end status, got %v", p.Status)
	}
}

func TestAccumulatorResetsAfterPublish(t *testing.T) {
	var acc Accumulator
	if _, ok := feed(t, &acc, "frame", "1", "fps", "25", "speed", "2x", "progress", "continue"); !ok {
		t.Fatal("expected first snapshot")
	}

	p, ok := feed(t, &acc, "total_size", "10", "progress", "continue")
	if !ok {
		t.Fatal("expected second snapshot")
	}
	if p.Frame != nil || p.FPS != nil || p.Speed != nil {
		t.Fatalf("fields leaked from previous cycle: %s", p)
	}
	if p.TotalSize == nil || *p.TotalSize != 10 {
		t.Fatalf("total_size: %v", p.TotalSize)
	}
}

func TestAccumulatorIgnoresUnknownKeys(t *testing.T) {
	var acc Accumulator
	p, ok := feed(t, &acc,
		"bitrate", "1234.5kbits/s",
		"out_time", "00:00:03.500000",
		"stream_0_0_q", "28.0",
		"progress", "continue",
	)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if p.Frame != nil || p.OutTime != nil {
		t.Fatalf("unknown keys changed the snapshot: %s", p)
	}
}

func TestAccumulatorNotAvailable(t *testing.T) {
	var acc Accumulator
	p, ok := feed(t, &acc, "frame", "0", "speed", "N/A", "out_time_us", "N/A", "progress", "continue")
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if p.Speed != nil || p.OutTime != nil {
		t.Fatalf("N/A values should stay absent: %s", p)
	}
	if p.Frame == nil || *p.Frame != 0 {
		t.Fatalf("frame: %v", p.Frame)
	}
}

func TestAccumulatorNotAvailableOnlyForSpeedAndTime(t *testing.T) {
	for _, key := range []string{"frame", "fps", "total_size", "dup_frames", "drop_frames"} {
		var acc Accumulator
		_, _, err := acc.Add(key, "N/A")
		if !errors.Is(err, ErrConversion) {
			t.Fatalf("%s=N/A: expected conversion error, got %v", key, err)
		}
		var perr *Error
		if !errors.As(err, &perr) || perr.Key != key || perr.Value != "N/A" {
			t.Fatalf("%s=N/A: error lost the offending text: %#v", key, err)
		}
	}
}

func TestAccumulatorNegativeOutTime(t *testing.T) {
	var acc Accumulator
	p, _ := feed(t, &acc, "out_time_us", "-23220", "progress", "continue")
	if p.OutTime == nil || *p.OutTime != -23220*time.Microsecond {
		t.Fatalf("out_time: %v", p.OutTime)
	}
}

func TestAccumulatorConversionErrors(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"frame", "notanumber"},
		{"frame", "-1"},
		{"fps", "fast"},
		{"total_size", "1.5"},
		{"out_time_us", "3.5s"},
		{"dup_frames", ""},
		{"drop_frames", "x"},
		{"speed", "abcx"},
		{"speed", "x"},
		{"speed", ""},
	}

	for _, tt := range tests {
		var acc Accumulator
		_, published, err := acc.Add(tt.key, tt.value)
		if published {
			t.Fatalf("%s=%q: unexpected snapshot", tt.key, tt.value)
		}
		if !errors.Is(err, ErrConversion) {
			t.Fatalf("%s=%q: expected conversion error, got %v", tt.key, tt.value, err)
		}
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("%s=%q: expected *Error, got %T", tt.key, tt.value, err)
		}
		if perr.Key != tt.key || perr.Value != tt.value {
			t.Fatalf("%s=%q: error carries %s=%q", tt.key, tt.value, perr.Key, perr.Value)
		}
		if perr.Err == nil {
			t.Fatalf("%s=%q: missing cause", tt.key, tt.value)
		}
	}
}

func TestAccumulatorConversionCause(t *testing.T) {
	var acc Accumulator
	_, _, err := acc.Add("frame", "notanumber")

	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Fatalf("expected *strconv.NumError in chain, got %v", err)
	}
	if numErr.Num != "notanumber" {
		t.Fatalf("unexpected text in cause: %q", numErr.Num)
	}
}

func TestAccumulatorUnknownStatus(t *testing.T) {
	var acc Accumulator
	feed(t, &acc, "frame", "1")

	_, published, err := acc.Add("progress", "unknown")
	if published {
		t.Fatal("unexpected snapshot")
	}
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected unknown status error, got %v", err)
	}
	if errors.Is(err, ErrConversion) {
		t.Fatal("status error must not match the conversion sentinel")
	}
}

func TestStatusText(t *testing.T) {
	var s Status
	if err := s.UnmarshalText([]byte("end")); err != nil || s != StatusEnd {
		t.Fatalf("UnmarshalText(end) = %v, %v", s, err)
	}
	if b, _ := StatusContinue.MarshalText(); string(b) != "continue" {
		t.Fatalf("MarshalText = %q", b)
	}
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
