// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ZSC714725/ffprogress/internal/config"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg"
	"github.com/ZSC714725/ffprogress/internal/logger"
)

type globalFlags struct {
	config   string
	ffmpeg   string
	logLevel string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads the config file once and applies flag overrides
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg := config.Default()
		if path := strings.TrimSpace(c.flags.config); path != "" {
			loaded, err := config.Load(path)
			if err != nil {
				c.configErr = err
				return
			}
			cfg = loaded
		}
		if c.flags.ffmpeg != "" {
			cfg.FFmpeg.Path = c.flags.ffmpeg
		}
		if c.flags.logLevel != "" {
			cfg.Log.Level = c.flags.logLevel
		}
		if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(prefix string) logger.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logger.New(prefix)
	}
	level, _ := logger.ParseLevel(cfg.Log.Level)
	return logger.NewWithLevel(prefix, level)
}

// ffmpeg resolves and probes the configured binary
func (c *commandContext) ffmpeg() (ffmpeg.FFmpeg, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	in, err := ffmpeg.NewValidator(cfg.FFmpeg.Access.Input.Allow, cfg.FFmpeg.Access.Input.Block)
	if err != nil {
		return nil, fmt.Errorf("input access: %w", err)
	}
	out, err := ffmpeg.NewValidator(cfg.FFmpeg.Access.Output.Allow, cfg.FFmpeg.Access.Output.Block)
	if err != nil {
		return nil, fmt.Errorf("output access: %w", err)
	}

	return ffmpeg.New(ffmpeg.Config{
		Binary:          cfg.FFmpeg.Path,
		MaxLogLines:     cfg.FFmpeg.MaxLogLines,
		AcceptTimeout:   cfg.FFmpeg.AcceptTimeoutDuration(),
		ValidatorInput:  in,
		ValidatorOutput: out,
	})
}
