// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package task

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/progress"
	"github.com/ZSC714725/ffprogress/internal/logger"
	"github.com/ZSC714725/ffprogress/internal/process"

	"github.com/lithammer/shortuuid/v4"
)

// Task is a transcoding task
type Task struct {
	ID        string
	Reference string
	Config    *Config
	CreatedAt int64
	UpdatedAt int64
	Order     string

	proc process.Process
}

// Status returns process status
func (t *Task) Status() process.Status {
	return t.proc.Status()
}

// Progress returns the latest progress snapshot and whether one was received
func (t *Task) Progress() (progress.Progress, bool) {
	return t.proc.Progress()
}

// Subscribe streams progress snapshots until the returned func is called
func (t *Task) Subscribe() (<-chan progress.Progress, func()) {
	return t.proc.Subscribe()
}

// Log returns the tail of FFmpeg's stderr
func (t *Task) Log() []process.Line {
	return t.proc.Log()
}

// IsRunning returns whether the process is running
func (t *Task) IsRunning() bool {
	return t.proc.IsRunning()
}

// Store manages tasks in memory
type Store interface {
	Add(config *Config) (*Task, error)
	Get(id string) (*Task, error)
	List(ids []string, reference string) []*Task
	Update(id string, config *Config) (*Task, error)
	Delete(id string) error
	Start(id string) error
	Stop(id string) error
	Restart(id string) error
}

type store struct {
	ffmpeg ffmpeg.FFmpeg
	logger logger.Logger
	tasks  map[string]*Task
	mu     sync.RWMutex
}

// NewStore creates a task store
func NewStore(ff ffmpeg.FFmpeg, log logger.Logger) Store {
	if log == nil {
		log = logger.New("task")
	}
	return &store{
		ffmpeg: ff,
		logger: log,
		tasks:  make(map[string]*Task),
	}
}

func (s *store) newProcess(config *Config) (process.Process, error) {
	log := s.logger.With(config.ID)

	return s.ffmpeg.New(ffmpeg.ProcessConfig{
		Reconnect:      config.Reconnect,
		ReconnectDelay: time.Duration(config.ReconnectDelay) * time.Second,
		StaleTimeout:   time.Duration(config.StaleTimeout) * time.Second,
		Command:        config.CreateCommand(),
		Logger:         log,
		OnStateChange: func(from, to string) {
			log.Info("state %s -> %s", from, to)
		},
		OnProgress: func(p progress.Progress) {
			log.Debug("progress %s", p)
		},
	})
}

func (s *store) Add(config *Config) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(config.ID) == 0 {
		config.ID = shortuuid.New()
	}
	if err := config.validate(s.ffmpeg.ValidateInput, s.ffmpeg.ValidateOutput); err != nil {
		return nil, err
	}
	if _, exists := s.tasks[config.ID]; exists {
		return nil, ErrTaskExists
	}

	proc, err := s.newProcess(config)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	task := &Task{
		ID:        config.ID,
		Reference: config.Reference,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
		Order:     "stop",
		proc:      proc,
	}
	s.tasks[config.ID] = task

	if config.Autostart {
		task.Order = "start"
		go task.proc.Start()
	}

	return task, nil
}

func (s *store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *store) List(ids []string, reference string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if len(reference) > 0 && t.Reference != reference {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, t.ID) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Task) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out
}

func (s *store) Update(id string, config *Config) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	config.ID = id
	config.Reference = t.Reference

	if err := config.validate(s.ffmpeg.ValidateInput, s.ffmpeg.ValidateOutput); err != nil {
		return nil, err
	}

	proc, err := s.newProcess(config)
	if err != nil {
		return nil, err
	}

	wasRunning := t.proc.IsRunning()
	if wasRunning {
		t.proc.Stop(true)
	}

	t.Config = config
	t.UpdatedAt = time.Now().Unix()
	t.proc = proc
	t.Order = "stop"

	if wasRunning || config.Autostart {
		t.Order = "start"
		go t.proc.Start()
	}

	return t, nil
}

func (s *store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}

	t.proc.Stop(true)
	delete(s.tasks, id)
	return nil
}

func (s *store) Start(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	s.setOrder(t, "start")
	return t.proc.Start()
}

func (s *store) Stop(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	s.setOrder(t, "stop")
	return t.proc.Stop(true)
}

func (s *store) Restart(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	t.proc.Stop(true)
	s.setOrder(t, "start")
	return t.proc.Start()
}

func (s *store) setOrder(t *Task, order string) {
	s.mu.Lock()
	t.Order = order
	s.mu.Unlock()
}
