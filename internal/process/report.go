// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package process

import (
	"container/ring"
	"sync"
	"time"
)

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}

// report keeps the last lines FFmpeg wrote to stderr
type report struct {
	log   *ring.Ring
	lines int
	last  string
	lock  sync.RWMutex
}

func newReport(lines int) *report {
	if lines <= 0 {
		lines = 100
	}
	return &report{log: ring.New(lines), lines: lines}
}

func (r *report) Add(line string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.log.Value = Line{Timestamp: time.Now(), Data: line}
	r.log = r.log.Next()
	r.last = line
}

func (r *report) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.log = ring.New(r.lines)
	r.last = ""
}

// Lines returns the kept lines, oldest first
func (r *report) Lines() []Line {
	var out []Line
	r.lock.RLock()
	r.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(Line))
		}
	})
	r.lock.RUnlock()
	return out
}

func (r *report) Last() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.last
}
