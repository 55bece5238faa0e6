// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package progress

import (
	"errors"
	"strconv"
	"time"
	"unicode/utf8"
)

// notAvailable is what FFmpeg writes for speed and out_time_us before it
// can compute them. Any other key carrying it is a conversion error.
const notAvailable = "N/A"

var errEmptySpeed = errors.New("empty value")

// Accumulator folds key=value pairs into Progress snapshots. It is not safe
// for concurrent use; a session owns exactly one.
type Accumulator struct {
	cur Progress
}

// Add applies one pair. When key is "progress" the completed snapshot is
// returned with published set and the accumulator starts over. A non-nil
// error is fatal for the stream.
func (a *Accumulator) Add(key, value string) (snapshot Progress, published bool, err error) {
	switch key {
	case "frame":
		err = setUint(&a.cur.Frame, key, value)
	case "fps":
		err = setFloat(&a.cur.FPS, key, value, value)
	case "total_size":
		err = setUint(&a.cur.TotalSize, key, value)
	case "out_time_us":
		if value != notAvailable {
			err = setMicros(&a.cur.OutTime, key, value)
		}
	case "dup_frames":
		err = setUint(&a.cur.DupFrames, key, value)
	case "drop_frames":
		err = setUint(&a.cur.DropFrames, key, value)
	case "speed":
		if value == notAvailable {
			break
		}
		if value == "" {
			return Progress{}, false, &Error{Kind: KindConversion, Key: key, Value: value, Err: errEmptySpeed}
		}
		// strip the unit, "1.02x" -> "1.02"
		_, size := utf8.DecodeLastRuneInString(value)
		err = setFloat(&a.cur.Speed, key, value, value[:len(value)-size])
	case "progress":
		status, ok := parseStatus(value)
		if !ok {
			return Progress{}, false, &Error{Kind: KindStatus, Key: key, Value: value}
		}
		a.cur.Status = status
		snapshot = a.cur
		a.Reset()
		return snapshot, true, nil
	}
	return Progress{}, false, err
}

// Reset drops the fields collected so far
func (a *Accumulator) Reset() {
	a.cur = Progress{}
}

func setUint(dst **uint64, key, value string) error {
	x, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return &Error{Kind: KindConversion, Key: key, Value: value, Err: err}
	}
	*dst = &x
	return nil
}

func setFloat(dst **float64, key, raw, num string) error {
	x, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return &Error{Kind: KindConversion, Key: key, Value: raw, Err: err}
	}
	*dst = &x
	return nil
}

// out_time_us is signed: FFmpeg reports a negative time until the first
// packet with a valid timestamp has been muxed.
func setMicros(dst **time.Duration, key, value string) error {
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return &Error{Kind: KindConversion, Key: key, Value: value, Err: err}
	}
	d := time.Duration(us) * time.Microsecond
	*dst = &d
	return nil
}
