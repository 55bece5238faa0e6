// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strings"
)

// Library represents a linked av library
type Library struct {
	Name     string
	Compiled string
	Linked   string
}

// Skills are the detected capabilities of FFmpeg that matter for running and
// monitoring it
type Skills struct {
	Version       string
	Configuration string
	Libraries     []Library
	Protocols     struct {
		Input  []string
		Output []string
	}
}

// SupportsProgress reports whether FFmpeg can write -progress to a TCP socket
func (s Skills) SupportsProgress() bool {
	return slices.Contains(s.Protocols.Output, "tcp")
}

// New probes binary
func New(binary string) (Skills, error) {
	out, err := run(binary, "-version")
	if err != nil {
		return Skills{}, fmt.Errorf("can't run ffmpeg: %w", err)
	}

	s := parseVersion(out)
	if s.Version == "" {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}

	out, err = run(binary, "-hide_banner", "-protocols")
	if err != nil {
		return Skills{}, fmt.Errorf("can't list protocols: %w", err)
	}
	s.Protocols.Input, s.Protocols.Output = parseProtocols(out)

	return s, nil
}

func run(binary string, args ...string) ([]byte, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = []string{}
	return cmd.Output()
}

var (
	reVersion       = regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reConfiguration = regexp.MustCompile(`(?m)^\s*configuration: (.*)$`)
	reLibrary       = regexp.MustCompile(`(?m)^\s*(lib(?:[a-z]+))\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+) /\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+)`)
)

func parseVersion(data []byte) Skills {
	s := Skills{}

	if m := reVersion.FindSubmatch(data); m != nil {
		s.Version = string(m[1])
		if len(m[2]) == 0 {
			s.Version += ".0"
		}
	}
	if m := reConfiguration.FindSubmatch(data); m != nil {
		s.Configuration = string(m[1])
	}
	for _, m := range reLibrary.FindAllSubmatch(data, -1) {
		s.Libraries = append(s.Libraries, Library{
			Name:     string(m[1]),
			Compiled: string(m[2]),
			Linked:   string(m[3]),
		})
	}
	return s
}

func parseProtocols(data []byte) (input, output []string) {
	var dst *[]string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "Input:":
			dst = &input
			continue
		case "Output:":
			dst = &output
			continue
		}
		if dst == nil || line == "" {
			continue
		}
		*dst = append(*dst, line)
	}
	return input, output
}
