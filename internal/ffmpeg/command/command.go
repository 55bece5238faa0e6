// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具
//
// Package command describes an FFmpeg invocation as an immutable value and
// turns it into a running process.

package command

import (
	"slices"
)

// Stdio is the disposition of one standard stream of the child process
type Stdio int

const (
	// StdioNull connects the stream to the null device
	StdioNull Stdio = iota
	// StdioInherit shares the stream with the current process
	StdioInherit
	// StdioPipe exposes the stream on the returned Process
	StdioPipe
)

type paramKind int

const (
	paramFlag paramKind = iota
	paramKeyValue
	paramRaw
)

// Parameter is a single command line option
type Parameter struct {
	kind  paramKind
	key   string
	value string
}

// Flag renders as "-name"
func Flag(name string) Parameter {
	return Parameter{kind: paramFlag, key: name}
}

// KeyValue renders as "-key value"
func KeyValue(key, value string) Parameter {
	return Parameter{kind: paramKeyValue, key: key, value: value}
}

// Raw renders arg verbatim
func Raw(arg string) Parameter {
	return Parameter{kind: paramRaw, value: arg}
}

// Key returns the option name, empty for raw parameters.
func (p Parameter) Key() string { return p.key }

// Value returns the option value, or the verbatim argument for raw parameters.
func (p Parameter) Value() string { return p.value }

func (p Parameter) appendTo(args []string) []string {
	switch p.kind {
	case paramFlag:
		return append(args, "-"+p.key)
	case paramKeyValue:
		return append(args, "-"+p.key, p.value)
	default:
		return append(args, p.value)
	}
}

// File is an input or output address with its per-file options
type File struct {
	URL     string
	Options []Parameter
}

// NewFile creates a File for url
func NewFile(url string, options ...Parameter) File {
	return File{URL: url, Options: options}
}

// WithOption returns a copy of f with option appended
func (f File) WithOption(option Parameter) File {
	f.Options = append(slices.Clone(f.Options), option)
	return f
}

func (f File) appendTo(args []string, input bool) []string {
	for _, o := range f.Options {
		args = o.appendTo(args)
	}
	if input {
		args = append(args, "-i")
	}
	return append(args, f.URL)
}

// Command is an immutable description of an FFmpeg run. The With* methods
// return modified copies and never touch the receiver.
type Command struct {
	Program string
	Options []Parameter
	Inputs  []File
	Outputs []File
	Env     []string
	Dir     string
	Stdin   Stdio
	Stdout  Stdio
	Stderr  Stdio
}

// New creates a command for program with all streams sent to the null device
func New(program string) Command {
	return Command{Program: program}
}

// WithProgram returns a copy running program instead
func (c Command) WithProgram(program string) Command {
	c = c.clone()
	c.Program = program
	return c
}

// WithOption returns a copy with a global option appended after all existing ones
func (c Command) WithOption(option Parameter) Command {
	c = c.clone()
	c.Options = append(c.Options, option)
	return c
}

// WithInput returns a copy with input appended
func (c Command) WithInput(input File) Command {
	c = c.clone()
	c.Inputs = append(c.Inputs, input)
	return c
}

// WithOutput returns a copy with output appended
func (c Command) WithOutput(output File) Command {
	c = c.clone()
	c.Outputs = append(c.Outputs, output)
	return c
}

// WithEnv returns a copy using env as the child's environment. A nil env
// inherits the environment of the current process.
func (c Command) WithEnv(env []string) Command {
	c = c.clone()
	c.Env = slices.Clone(env)
	return c
}

// WithDir returns a copy running in dir
func (c Command) WithDir(dir string) Command {
	c.Dir = dir
	return c
}

// WithStdin returns a copy with the stdin disposition replaced
func (c Command) WithStdin(s Stdio) Command {
	c.Stdin = s
	return c
}

// WithStdout returns a copy with the stdout disposition replaced
func (c Command) WithStdout(s Stdio) Command {
	c.Stdout = s
	return c
}

// WithStderr returns a copy with the stderr disposition replaced
func (c Command) WithStderr(s Stdio) Command {
	c.Stderr = s
	return c
}

// Args renders the argument list: global options, inputs, then outputs.
func (c Command) Args() []string {
	var args []string
	for _, o := range c.Options {
		args = o.appendTo(args)
	}
	for _, in := range c.Inputs {
		args = in.appendTo(args, true)
	}
	for _, out := range c.Outputs {
		args = out.appendTo(args, false)
	}
	return args
}

func (c Command) clone() Command {
	c.Options = slices.Clone(c.Options)
	c.Inputs = slices.Clone(c.Inputs)
	c.Outputs = slices.Clone(c.Outputs)
	c.Env = slices.Clone(c.Env)
	return c
}
