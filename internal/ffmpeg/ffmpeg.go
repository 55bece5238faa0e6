// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package ffmpeg

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg/command"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/progress"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/skills"
	"github.com/ZSC714725/ffprogress/internal/logger"
	"github.com/ZSC714725/ffprogress/internal/process"
)

// FFmpeg manages FFmpeg binary and skills
type FFmpeg interface {
	New(config ProcessConfig) (process.Process, error)
	// Command returns an empty command for the resolved binary
	Command() command.Command
	AcceptTimeout() time.Duration
	ValidateInput(address string) bool
	ValidateOutput(address string) bool
	Skills() skills.Skills
	ReloadSkills() error
}

// ProcessConfig for creating a process
type ProcessConfig struct {
	Reconnect      bool
	ReconnectDelay time.Duration
	StaleTimeout   time.Duration
	Command        command.Command
	Logger         logger.Logger
	OnExit         func()
	OnStart        func()
	OnStateChange  func(from, to string)
	OnProgress     func(p progress.Progress)
}

// Config for FFmpeg
type Config struct {
	Binary          string
	MaxLogLines     int
	AcceptTimeout   time.Duration
	ValidatorInput  Validator
	ValidatorOutput Validator
}

type ffmpeg struct {
	binary        string
	validatorIn   Validator
	validatorOut  Validator
	skills        skills.Skills
	logLines      int
	acceptTimeout time.Duration
	skillsLock    sync.RWMutex
}

// New creates FFmpeg. It fails if the binary can't be found, can't be probed
// or can't write progress to a TCP socket.
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}

	f := &ffmpeg{
		binary:        binary,
		logLines:      config.MaxLogLines,
		acceptTimeout: config.AcceptTimeout,
	}

	if f.logLines <= 0 {
		f.logLines = 100
	}

	if config.ValidatorInput != nil {
		f.validatorIn = config.ValidatorInput
	} else {
		f.validatorIn, _ = NewValidator(nil, nil)
	}
	if config.ValidatorOutput != nil {
		f.validatorOut = config.ValidatorOutput
	} else {
		f.validatorOut, _ = NewValidator(nil, nil)
	}

	s, err := skills.New(f.binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	if !s.SupportsProgress() {
		return nil, fmt.Errorf("invalid ffmpeg: %s has no tcp output protocol for -progress", f.binary)
	}
	f.skills = s

	return f, nil
}

func (f *ffmpeg) New(config ProcessConfig) (process.Process, error) {
	return process.New(process.Config{
		Command:        config.Command.WithProgram(f.binary),
		Reconnect:      config.Reconnect,
		ReconnectDelay: config.ReconnectDelay,
		StaleTimeout:   config.StaleTimeout,
		AcceptTimeout:  f.acceptTimeout,
		LogLines:       f.logLines,
		Logger:         config.Logger,
		OnStart:        config.OnStart,
		OnExit:         config.OnExit,
		OnStateChange:  config.OnStateChange,
		OnProgress:     config.OnProgress,
	})
}

func (f *ffmpeg) Command() command.Command {
	return command.New(f.binary)
}

func (f *ffmpeg) AcceptTimeout() time.Duration {
	return f.acceptTimeout
}

func (f *ffmpeg) ValidateInput(address string) bool {
	return f.validatorIn.IsValid(address)
}

func (f *ffmpeg) ValidateOutput(address string) bool {
	return f.validatorOut.IsValid(address)
}

func (f *ffmpeg) Skills() skills.Skills {
	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return f.skills
}

func (f *ffmpeg) ReloadSkills() error {
	s, err := skills.New(f.binary)
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	f.skillsLock.Lock()
	f.skills = s
	f.skillsLock.Unlock()
	return nil
}
