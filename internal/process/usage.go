// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package process

import (
	"sync"

	gopsutilprocess "github.com/shirou/gopsutil/v3/process"
)

// Usage samples CPU and memory of a running process
type Usage interface {
	Start(pid int) error
	Stop()
	Current() (cpu float64, memory uint64)
}

// sysUsage 使用 gopsutil 采集进程 CPU 和内存
type sysUsage struct {
	mu   sync.RWMutex
	proc *gopsutilprocess.Process
}

// NewSysUsage returns a Usage backed by gopsutil
func NewSysUsage() Usage {
	return &sysUsage{}
}

func (u *sysUsage) Start(pid int) error {
	proc, err := gopsutilprocess.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.proc = proc
	u.mu.Unlock()
	return nil
}

func (u *sysUsage) Stop() {
	u.mu.Lock()
	u.proc = nil
	u.mu.Unlock()
}

func (u *sysUsage) Current() (cpu float64, memory uint64) {
	u.mu.RLock()
	proc := u.proc
	u.mu.RUnlock()
	if proc == nil {
		return 0, 0
	}
	if pct, err := proc.CPUPercent(); err == nil {
		cpu = pct
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		memory = mem.RSS
	}
	return cpu, memory
}

type nullUsage struct{}

func (nullUsage) Start(pid int) error        { return nil }
func (nullUsage) Stop()                      {}
func (nullUsage) Current() (float64, uint64) { return 0, 0 }
