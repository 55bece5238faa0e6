// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package command

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a started command. Stdin, Stdout and Stderr are only set for
// streams with the StdioPipe disposition.
type Process struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Start spawns the command
func (c Command) Start() (*Process, error) {
	if len(c.Program) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}

	cmd := exec.Command(c.Program, c.Args()...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir

	p, err := attach(cmd, c)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		p.release()
		return nil, err
	}
	return p, nil
}

// attach wires the stdio dispositions of c into cmd. On error the pipes
// created so far are closed again and the partial Process is returned.
func attach(cmd *exec.Cmd, c Command) (p *Process, err error) {
	p = &Process{Cmd: cmd}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	switch c.Stdin {
	case StdioInherit:
		cmd.Stdin = os.Stdin
	case StdioPipe:
		if p.Stdin, err = cmd.StdinPipe(); err != nil {
			return p, fmt.Errorf("stdin pipe: %w", err)
		}
	}
	switch c.Stdout {
	case StdioInherit:
		cmd.Stdout = os.Stdout
	case StdioPipe:
		if p.Stdout, err = cmd.StdoutPipe(); err != nil {
			return p, fmt.Errorf("stdout pipe: %w", err)
		}
	}
	switch c.Stderr {
	case StdioInherit:
		cmd.Stderr = os.Stderr
	case StdioPipe:
		if p.Stderr, err = cmd.StderrPipe(); err != nil {
			return p, fmt.Errorf("stderr pipe: %w", err)
		}
	}
	return p, nil
}

// release closes both ends of every pipe of a process that never started.
func (p *Process) release() {
	for _, c := range []io.Closer{p.Stdin, p.Stdout, p.Stderr} {
		if c != nil {
			c.Close()
		}
	}
	for _, s := range []any{p.Cmd.Stdin, p.Cmd.Stdout, p.Cmd.Stderr} {
		f, ok := s.(*os.File)
		if !ok || f == os.Stdin || f == os.Stdout || f == os.Stderr {
			continue
		}
		f.Close()
	}
}

// Pid of the running process
func (p *Process) Pid() int {
	if p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// Wait waits for the process to exit. Piped streams must be drained first.
func (p *Process) Wait() error {
	return p.Cmd.Wait()
}

// Interrupt sends SIGINT, which makes FFmpeg finish the output and exit.
func (p *Process) Interrupt() error {
	return signal(p.Cmd.Process, os.Interrupt)
}

// Kill kills the process
func (p *Process) Kill() error {
	return signal(p.Cmd.Process, os.Kill)
}

// Output drains the piped stdout and stderr and waits for the process.
// Streams that are not piped come back empty.
func (p *Process) Output() (stdout, stderr []byte, err error) {
	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup

	drain := func(dst *bytes.Buffer, r io.Reader) {
		defer wg.Done()
		io.Copy(dst, r)
	}
	if p.Stdout != nil {
		wg.Add(1)
		go drain(&outBuf, p.Stdout)
	}
	if p.Stderr != nil {
		wg.Add(1)
		go drain(&errBuf, p.Stderr)
	}
	wg.Wait()

	err = p.Cmd.Wait()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// ExitCode returns the exit code carried by err, -1 if the process was
// terminated by a signal, and false if err is not an exit error.
func ExitCode(err error) (int, bool) {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 0, false
	}
	return ee.ExitCode(), true
}

func signal(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return nil
	}
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
