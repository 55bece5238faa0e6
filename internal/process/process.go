// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具
//
// Package process supervises FFmpeg runs: it starts them through a progress
// session, keeps the latest snapshot and the tail of stderr, and handles
// stop, stale detection and reconnects.

package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg/command"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/progress"
)

// Process represents a process
type Process interface {
	Status() Status
	Start() error
	Stop(wait bool) error
	Kill(wait bool) error
	IsRunning() bool

	// Progress returns the latest snapshot of the current or last run
	Progress() (progress.Progress, bool)
	// Log returns the tail of FFmpeg's stderr
	Log() []Line
	// Subscribe delivers snapshots as they arrive. Slow subscribers miss
	// intermediate snapshots. The returned func unsubscribes and closes the
	// channel.
	Subscribe() (<-chan progress.Progress, func())
}

// Config for a process
type Config struct {
	Command        command.Command
	Reconnect      bool
	ReconnectDelay time.Duration
	StaleTimeout   time.Duration
	AcceptTimeout  time.Duration
	LogLines       int
	Usage          Usage
	OnStart        func()
	OnExit         func()
	OnStateChange  func(from, to string)
	OnProgress     func(p progress.Progress)
	Logger         Logger
}

// Status of a process
type Status struct {
	State     string
	States    States
	Order     string
	Duration  time.Duration
	Time      time.Time
	LastLine  string
	LastError string
	CPU       float64
	Memory    uint64
}

// States cumulative counts
type States struct {
	Finished  uint64
	Starting  uint64
	Running   uint64
	Finishing uint64
	Failed    uint64
	Killed    uint64
}

func (s *States) count(state stateType) {
	switch state {
	case stateFinished:
		s.Finished++
	case stateStarting:
		s.Starting++
	case stateRunning:
		s.Running++
	case stateFinishing:
		s.Finishing++
	case stateFailed:
		s.Failed++
	case stateKilled:
		s.Killed++
	}
}

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type stateType string

const (
	stateFinished  stateType = "finished"
	stateStarting  stateType = "starting"
	stateRunning   stateType = "running"
	stateFinishing stateType = "finishing"
	stateFailed    stateType = "failed"
	stateKilled    stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning || s == stateFinishing
}

var transitions = map[stateType][]stateType{
	stateFinished:  {stateStarting},
	stateStarting:  {stateFinishing, stateRunning, stateFailed},
	stateRunning:   {stateFinished, stateFinishing, stateFailed, stateKilled},
	stateFinishing: {stateFinished, stateFailed, stateKilled},
	stateFailed:    {stateStarting},
	stateKilled:    {stateStarting},
}

// ffmpeg exits with 255 when it is interrupted
const exitInterrupted = 255

type process struct {
	command       command.Command
	acceptTimeout time.Duration
	proc          *command.Process

	state struct {
		state  stateType
		time   time.Time
		states States
		lock   sync.Mutex
	}
	order struct {
		order string
		lock  sync.Mutex
	}
	progress struct {
		last  progress.Progress
		valid bool
		err   error
		lock  sync.RWMutex
	}
	subscribers struct {
		subs map[chan progress.Progress]struct{}
		lock sync.Mutex
	}
	stale struct {
		last    time.Time
		timeout time.Duration
		cancel  context.CancelFunc
		lock    sync.Mutex
	}
	reconn struct {
		enable bool
		delay  time.Duration
		timer  *time.Timer
		lock   sync.Mutex
	}
	killTimer     *time.Timer
	killTimerLock sync.Mutex
	report        *report
	logger        Logger
	usage         Usage
	callbacks     struct {
		onStart       func()
		onExit        func()
		onStateChange func(from, to string)
		onProgress    func(p progress.Progress)
		lock          sync.Mutex
	}
}

// New creates a new process
func New(config Config) (Process, error) {
	if len(config.Command.Program) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}

	p := &process{
		command:       config.Command.WithStderr(command.StdioPipe),
		acceptTimeout: config.AcceptTimeout,
		report:        newReport(config.LogLines),
		logger:        config.Logger,
		usage:         config.Usage,
	}

	if p.logger == nil {
		p.logger = &nopLogger{}
	}
	if p.usage == nil {
		p.usage = NewSysUsage()
	}

	p.order.order = "stop"
	p.initState(stateFinished)
	p.subscribers.subs = make(map[chan progress.Progress]struct{})
	p.reconn.enable = config.Reconnect
	p.reconn.delay = config.ReconnectDelay
	p.stale.last = time.Now()
	p.stale.timeout = config.StaleTimeout
	p.callbacks.onStart = config.OnStart
	p.callbacks.onExit = config.OnExit
	p.callbacks.onStateChange = config.OnStateChange
	p.callbacks.onProgress = config.OnProgress

	return p, nil
}

func (p *process) initState(state stateType) {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	p.state.state = state
	p.state.time = time.Now()
}

func (p *process) setState(state stateType) error {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	prev := p.state.state
	allowed, ok := transitions[prev]
	if !ok {
		return fmt.Errorf("unhandled state: %s", prev)
	}
	if !slices.Contains(allowed, state) {
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	p.state.state = state
	p.state.time = time.Now()
	p.state.states.count(state)

	if p.callbacks.onStateChange != nil {
		go p.callbacks.onStateChange(prev.String(), state.String())
	}
	return nil
}

func (p *process) getState() stateType {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}

func (p *process) isRunning() bool {
	return p.getState().IsRunning()
}

func (p *process) Status() Status {
	cpu, memory := p.usage.Current()

	p.state.lock.Lock()
	stateTime := p.state.time
	stateString := p.state.state.String()
	states := p.state.states
	p.state.lock.Unlock()

	p.order.lock.Lock()
	order := p.order.order
	p.order.lock.Unlock()

	s := Status{
		State:    stateString,
		States:   states,
		Order:    order,
		Duration: time.Since(stateTime),
		Time:     stateTime,
		LastLine: p.report.Last(),
		CPU:      cpu,
		Memory:   memory,
	}

	p.progress.lock.RLock()
	if p.progress.err != nil {
		s.LastError = p.progress.err.Error()
	}
	p.progress.lock.RUnlock()

	return s
}

func (p *process) IsRunning() bool {
	return p.isRunning()
}

func (p *process) Progress() (progress.Progress, bool) {
	p.progress.lock.RLock()
	defer p.progress.lock.RUnlock()
	return p.progress.last, p.progress.valid
}

func (p *process) Log() []Line {
	return p.report.Lines()
}

func (p *process) Subscribe() (<-chan progress.Progress, func()) {
	ch := make(chan progress.Progress, 8)

	p.subscribers.lock.Lock()
	p.subscribers.subs[ch] = struct{}{}
	p.subscribers.lock.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subscribers.lock.Lock()
			delete(p.subscribers.subs, ch)
			close(ch)
			p.subscribers.lock.Unlock()
		})
	}
}

func (p *process) broadcast(snapshot progress.Progress) {
	p.subscribers.lock.Lock()
	defer p.subscribers.lock.Unlock()
	for ch := range p.subscribers.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (p *process) Start() error {
	p.order.lock.Lock()
	defer p.order.lock.Unlock()

	if p.order.order == "start" {
		return nil
	}
	p.order.order = "start"
	return p.start()
}

func (p *process) start() error {
	if p.isRunning() {
		return nil
	}

	p.unreconnect()
	p.setState(stateStarting)

	p.report.Reset()
	p.progress.lock.Lock()
	p.progress.last = progress.Progress{}
	p.progress.valid = false
	p.progress.err = nil
	p.progress.lock.Unlock()

	session, err := progress.Start(context.Background(), p.command, progress.Config{
		AcceptTimeout: p.acceptTimeout,
		Logger:        p.logger,
	})
	if err != nil {
		p.setState(stateFailed)
		p.report.Add(err.Error())
		p.progress.lock.Lock()
		p.progress.err = err
		p.progress.lock.Unlock()
		p.logger.Error("start %s: %v", p.command.Program, err)
		p.reconnect()
		return err
	}

	p.proc = session.Process()
	if err := p.usage.Start(p.proc.Pid()); err != nil {
		p.logger.Debug("usage sampling for pid %d: %v", p.proc.Pid(), err)
	}

	p.setState(stateRunning)
	p.logger.Info("started pid %d, progress on %s", p.proc.Pid(), session.Addr)

	if p.callbacks.onStart != nil {
		go p.callbacks.onStart()
	}

	if p.stale.timeout != 0 {
		p.stale.lock.Lock()
		ctx, cancel := context.WithCancel(context.Background())
		p.stale.cancel = cancel
		p.stale.lock.Unlock()
		go p.staler(ctx)
	}

	go p.supervise(session)

	return nil
}

func (p *process) Stop(wait bool) error {
	p.order.lock.Lock()
	defer p.order.lock.Unlock()

	if p.order.order == "stop" {
		return nil
	}
	p.order.order = "stop"
	return p.stop(wait)
}

func (p *process) Kill(wait bool) error {
	if !p.isRunning() {
		return nil
	}
	p.order.lock.Lock()
	defer p.order.lock.Unlock()
	return p.stop(wait)
}

func (p *process) stop(wait bool) error {
	if !p.isRunning() {
		p.unreconnect()
		return nil
	}
	if p.getState() == stateFinishing {
		return nil
	}

	p.setState(stateFinishing)

	wg := sync.WaitGroup{}
	if wait {
		wg.Add(1)
		p.callbacks.lock.Lock()
		cb := p.callbacks.onExit
		p.callbacks.onExit = func() {
			if cb != nil {
				cb()
			}
			wg.Done()
		}
		p.callbacks.lock.Unlock()
	}

	// SIGINT lets ffmpeg write the trailer, SIGKILL if it takes too long
	proc := p.proc
	err := proc.Interrupt()
	if err != nil {
		err = proc.Kill()
	} else {
		p.killTimerLock.Lock()
		p.killTimer = time.AfterFunc(5*time.Second, func() {
			proc.Kill()
		})
		p.killTimerLock.Unlock()
	}

	if err == nil && wait {
		wg.Wait()
	}

	if err != nil {
		p.report.Add(err.Error())
		p.setState(stateFailed)
	}
	return err
}

func (p *process) reconnect() {
	if !p.reconn.enable {
		return
	}
	p.unreconnect()

	p.reconn.lock.Lock()
	defer p.reconn.lock.Unlock()

	p.reconn.timer = time.AfterFunc(p.reconn.delay, func() {
		p.order.lock.Lock()
		defer p.order.lock.Unlock()
		p.start()
	})
}

func (p *process) unreconnect() {
	p.reconn.lock.Lock()
	defer p.reconn.lock.Unlock()

	if p.reconn.timer != nil {
		p.reconn.timer.Stop()
		p.reconn.timer = nil
	}
}

func (p *process) touch() {
	p.stale.lock.Lock()
	p.stale.last = time.Now()
	p.stale.lock.Unlock()
}

func (p *process) staler(ctx context.Context) {
	p.touch()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			p.stale.lock.Lock()
			last := p.stale.last
			timeout := p.stale.timeout
			p.stale.lock.Unlock()

			if t.Sub(last) > timeout {
				p.logger.Info("no progress for %s, stopping", timeout)
				p.order.lock.Lock()
				p.stop(false)
				p.order.lock.Unlock()
				return
			}
		}
	}
}

// supervise drains stderr and the progress stream, then reaps the process.
func (p *process) supervise(session *progress.Session) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.reader(session.Process().Stderr)
	}()
	go func() {
		defer wg.Done()
		p.monitor(session)
	}()
	wg.Wait()

	p.waiter(session)
}

func (p *process) reader(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLine)

	for scanner.Scan() {
		p.report.Add(scanner.Text())
	}
}

func (p *process) monitor(session *progress.Session) {
	for ev := range session.Events() {
		if ev.Err != nil {
			p.logger.Error("progress: %v", ev.Err)
			p.progress.lock.Lock()
			p.progress.err = ev.Err
			p.progress.lock.Unlock()
			continue
		}

		p.progress.lock.Lock()
		p.progress.last = ev.Progress
		p.progress.valid = true
		p.progress.lock.Unlock()

		p.touch()
		p.broadcast(ev.Progress)

		p.callbacks.lock.Lock()
		cb := p.callbacks.onProgress
		p.callbacks.lock.Unlock()
		if cb != nil {
			cb(ev.Progress)
		}
	}
}

func (p *process) waiter(session *progress.Session) {
	err := session.Process().Wait()
	session.Close()

	switch code, ok := command.ExitCode(err); {
	case err == nil:
		p.setState(stateFinished)
	case !ok || code < 0:
		p.setState(stateKilled)
	case code == exitInterrupted:
		p.setState(stateFinished)
	default:
		p.logger.Error("exited with code %d", code)
		p.setState(stateFailed)
	}

	p.usage.Stop()

	p.killTimerLock.Lock()
	if p.killTimer != nil {
		p.killTimer.Stop()
		p.killTimer = nil
	}
	p.killTimerLock.Unlock()

	p.stale.lock.Lock()
	if p.stale.cancel != nil {
		p.stale.cancel()
		p.stale.cancel = nil
	}
	p.stale.lock.Unlock()

	p.callbacks.lock.Lock()
	if p.callbacks.onExit != nil {
		go p.callbacks.onExit()
	}
	p.callbacks.lock.Unlock()

	p.order.lock.Lock()
	defer p.order.lock.Unlock()

	if p.order.order == "start" {
		p.reconnect()
	}
}

// scanLine splits on \n and \r, so each progress update ffmpeg redraws with
// a carriage return becomes its own line.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
