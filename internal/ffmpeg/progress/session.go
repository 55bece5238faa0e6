// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package progress

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg/command"

	"github.com/google/uuid"
)

// maxLineSize caps a single progress line. A longer line fails the session
// with bufio.ErrTooLong.
const maxLineSize = 64 * 1024

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// Config for a session
type Config struct {
	// AcceptTimeout bounds the wait for FFmpeg to connect. Zero waits
	// until the context is done.
	AcceptTimeout time.Duration
	Logger        Logger
}

// Session is a running FFmpeg together with the stream of its progress.
//
// The caller owns the process: the session never waits for it, signals it or
// reads its stdio once Start has returned.
type Session struct {
	ID   string
	Addr string

	proc   *command.Process
	conn   net.Conn
	events chan Event
	logger Logger

	done      chan struct{}
	closeOnce sync.Once
}

var aLongTimeAgo = time.Unix(1, 0)

// Start launches cmd with "-progress tcp://127.0.0.1:<port>" appended to its
// global options and returns once FFmpeg has connected back. Failures to
// listen, spawn or accept are returned as an *Error of KindIO; the child is
// killed when the accept fails.
//
// Cancelling ctx after Start has returned has the same effect as Close.
func Start(ctx context.Context, cmd command.Command, config Config) (*Session, error) {
	logger := config.Logger
	if logger == nil {
		logger = &nopLogger{}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, ioError("listen", err)
	}
	defer ln.Close()

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, ioError("listen", fmt.Errorf("unexpected listener %T", ln))
	}
	port := tcpLn.Addr().(*net.TCPAddr).Port
	addr := fmt.Sprintf("tcp://127.0.0.1:%d", port)

	proc, err := cmd.WithOption(command.KeyValue("progress", addr)).Start()
	if err != nil {
		return nil, ioError("spawn", err)
	}

	conn, err := accept(ctx, tcpLn, config.AcceptTimeout)
	if err != nil {
		proc.Kill()
		proc.Wait()
		return nil, ioError("accept", err)
	}

	s := &Session{
		ID:     uuid.NewString(),
		Addr:   addr,
		proc:   proc,
		conn:   conn,
		events: make(chan Event, 1),
		logger: logger,
		done:   make(chan struct{}),
	}
	logger.Debug("progress %s: pid %d connected from %s", s.ID, proc.Pid(), conn.RemoteAddr())

	stop := context.AfterFunc(ctx, func() { s.Close() })
	go s.readLoop(stop)

	return s, nil
}

func accept(ctx context.Context, ln *net.TCPListener, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		ln.SetDeadline(time.Now().Add(timeout))
	}
	stop := context.AfterFunc(ctx, func() { ln.SetDeadline(aLongTimeAgo) })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return conn, nil
}

// Events returns the progress stream. It yields snapshots in the order their
// progress= lines arrived and is closed after a snapshot with StatusEnd, after
// an event carrying an error, when FFmpeg closes the connection, or after
// Close. At most one event carries an error and it is always the last one.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Process returns the FFmpeg process
func (s *Session) Process() *command.Process {
	return s.proc
}

// Close stops the stream. The read loop drops whatever it was about to send,
// closes the connection and closes the events channel. FFmpeg keeps running.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}

func (s *Session) readLoop(stop func() bool) {
	defer stop()
	defer close(s.events)
	defer s.conn.Close()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	var acc Accumulator

	for scanner.Scan() {
		if !s.handle(&acc, scanner.Text()) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if s.publish(Event{Err: ioError("read", err)}) {
			s.logger.Error("progress %s: read: %v", s.ID, err)
		}
		return
	}
	s.logger.Debug("progress %s: connection closed", s.ID)
}

// handle processes one line and reports whether the loop should go on.
func (s *Session) handle(acc *Accumulator, line string) bool {
	key, value, ok := ParseLine(line)
	if !ok {
		s.publish(Event{Err: &Error{Kind: KindFraming, Value: strings.TrimRight(line, "\r\n")}})
		return false
	}

	snapshot, published, err := acc.Add(key, value)
	if err != nil {
		s.publish(Event{Err: err})
		return false
	}
	if !published {
		return true
	}

	if !s.publish(Event{Progress: snapshot}) {
		return false
	}
	if snapshot.IsEnd() {
		s.logger.Debug("progress %s: end", s.ID)
		return false
	}
	return true
}

// publish blocks until the consumer takes ev or the session is closed.
func (s *Session) publish(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		s.logger.Debug("progress %s: consumer gone, dropping event", s.ID)
		return false
	}
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
