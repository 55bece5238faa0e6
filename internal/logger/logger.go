// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package logger

import (
	"fmt"
	"log"
	"strings"
)

// Level is the minimum severity a logger writes
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelError:
		return "error"
	}
	return "info"
}

// ParseLevel parses "debug", "info" or "error". An empty string is info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
	// With returns a logger that adds prefix after the current one
	With(prefix string) Logger
}

type defaultLogger struct {
	prefix string
	level  Level
}

// New creates an info level logger
func New(prefix string) Logger {
	return NewWithLevel(prefix, LevelInfo)
}

// NewWithLevel creates a logger that drops messages below level
func NewWithLevel(prefix string, level Level) Logger {
	if prefix != "" && !strings.HasSuffix(prefix, " ") {
		prefix += ": "
	}
	return &defaultLogger{prefix: prefix, level: level}
}

func (l *defaultLogger) With(prefix string) Logger {
	return NewWithLevel(l.prefix+prefix, l.level)
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	l.print(LevelInfo, "[INFO] ", format, args)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.print(LevelError, "[ERROR] ", format, args)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	l.print(LevelDebug, "[DEBUG] ", format, args)
}

func (l *defaultLogger) print(level Level, tag, format string, args []interface{}) {
	if level < l.level {
		return
	}
	log.Printf(tag+l.prefix+format, args...)
}
