// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package task

import (
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/command"
)

// ConfigIO is input/output config
type ConfigIO struct {
	ID      string   `json:"id"`
	Address string   `json:"address"`
	Options []string `json:"options"`
}

// Config for a transcoding task
type Config struct {
	ID             string     `json:"id"`
	Reference      string     `json:"reference"`
	Input          []ConfigIO `json:"input"`
	Output         []ConfigIO `json:"output"`
	Options        []string   `json:"options"`
	Reconnect      bool       `json:"reconnect"`
	ReconnectDelay uint64     `json:"reconnect_delay_seconds"`
	Autostart      bool       `json:"autostart"`
	StaleTimeout   uint64     `json:"stale_timeout_seconds"`
}

// CreateCommand builds the FFmpeg invocation from config. Options are passed
// through verbatim; the program is filled in by the ffmpeg package.
func (c *Config) CreateCommand() command.Command {
	cmd := command.New("")
	for _, o := range c.Options {
		cmd = cmd.WithOption(command.Raw(o))
	}
	for _, in := range c.Input {
		cmd = cmd.WithInput(newFile(in))
	}
	for _, out := range c.Output {
		cmd = cmd.WithOutput(newFile(out))
	}
	return cmd
}

func newFile(io ConfigIO) command.File {
	f := command.NewFile(io.Address)
	for _, o := range io.Options {
		f = f.WithOption(command.Raw(o))
	}
	return f
}

// validate checks addresses against the FFmpeg validators
func (c *Config) validate(validInput, validOutput func(string) bool) error {
	if len(c.Input) == 0 || len(c.Output) == 0 {
		return ErrInvalidConfig
	}
	for _, in := range c.Input {
		if !validInput(in.Address) {
			return ErrInvalidInputAddress
		}
	}
	for _, out := range c.Output {
		if !validOutput(out.Address) {
			return ErrInvalidOutputAddress
		}
	}
	return nil
}
