// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package api

import (
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/progress"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/skills"
)

// ProcessConfigIO is API input/output
type ProcessConfigIO struct {
	ID      string   `json:"id"`
	Address string   `json:"address"`
	Options []string `json:"options"`
}

// ProcessConfigRequest for Add/Update
type ProcessConfigRequest struct {
	ID             string            `json:"id"`
	Reference      string            `json:"reference"`
	Input          []ProcessConfigIO `json:"input" binding:"required"`
	Output         []ProcessConfigIO `json:"output" binding:"required"`
	Options        []string          `json:"options"`
	Reconnect      bool              `json:"reconnect"`
	ReconnectDelay uint64            `json:"reconnect_delay_seconds"`
	Autostart      bool              `json:"autostart"`
	StaleTimeout   uint64            `json:"stale_timeout_seconds"`
}

// Process represents a task in API response
type Process struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Reference string         `json:"reference"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
	Config    *ProcessConfig `json:"config,omitempty"`
	State     *ProcessState  `json:"state,omitempty"`
	Report    *ProcessReport `json:"report,omitempty"`
}

// ProcessConfig in API format
type ProcessConfig struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Reference      string            `json:"reference"`
	Input          []ProcessConfigIO `json:"input"`
	Output         []ProcessConfigIO `json:"output"`
	Options        []string          `json:"options"`
	Reconnect      bool              `json:"reconnect"`
	ReconnectDelay uint64            `json:"reconnect_delay_seconds"`
	Autostart      bool              `json:"autostart"`
	StaleTimeout   uint64            `json:"stale_timeout_seconds"`
}

// ProcessState for API
type ProcessState struct {
	Order     string    `json:"order"`
	State     string    `json:"exec"`
	Runtime   int64     `json:"runtime_seconds"`
	Reconnect int64     `json:"reconnect_seconds"`
	LastLog   string    `json:"last_logline"`
	LastError string    `json:"last_error,omitempty"`
	Progress  *Progress `json:"progress"`
	Memory    uint64    `json:"memory_bytes"`
	CPU       float64   `json:"cpu_usage"`
	Command   []string  `json:"command"`
}

// Progress is a snapshot reported by FFmpeg. Fields FFmpeg did not report
// are omitted.
type Progress struct {
	Frame  *uint64  `json:"frame,omitempty"`
	FPS    *float64 `json:"fps,omitempty"`
	Size   *uint64  `json:"size_bytes,omitempty"`
	Time   *float64 `json:"time_seconds,omitempty"`
	Speed  *float64 `json:"speed,omitempty"`
	Drop   *uint64  `json:"drop,omitempty"`
	Dup    *uint64  `json:"dup,omitempty"`
	Status string   `json:"status"`
}

func newProgress(p progress.Progress) *Progress {
	out := &Progress{
		Frame:  p.Frame,
		FPS:    p.FPS,
		Size:   p.TotalSize,
		Speed:  p.Speed,
		Drop:   p.DropFrames,
		Dup:    p.DupFrames,
		Status: p.Status.String(),
	}
	if p.OutTime != nil {
		secs := p.OutTime.Seconds()
		out.Time = &secs
	}
	return out
}

// ProcessReport for logs
type ProcessReport struct {
	CreatedAt int64       `json:"created_at"`
	Prelude   []string    `json:"prelude"`
	Log       [][2]string `json:"log"`
}

// CommandRequest for start/stop/restart
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// Skills of the FFmpeg binary
type Skills struct {
	FFmpeg struct {
		Version       string    `json:"version"`
		Configuration string    `json:"configuration"`
		Libraries     []Library `json:"libraries"`
	} `json:"ffmpeg"`
	Protocols struct {
		Input  []string `json:"input"`
		Output []string `json:"output"`
	} `json:"protocols"`
	Progress bool `json:"progress"`
}

// Library is a linked av library
type Library struct {
	Name     string `json:"name"`
	Compiled string `json:"compiled"`
	Linked   string `json:"linked"`
}

func newSkills(s skills.Skills) Skills {
	out := Skills{Progress: s.SupportsProgress()}
	out.FFmpeg.Version = s.Version
	out.FFmpeg.Configuration = s.Configuration
	out.FFmpeg.Libraries = make([]Library, 0, len(s.Libraries))
	for _, l := range s.Libraries {
		out.FFmpeg.Libraries = append(out.FFmpeg.Libraries, Library(l))
	}
	out.Protocols.Input = s.Protocols.Input
	out.Protocols.Output = s.Protocols.Output
	return out
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
