// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != ":8080" || cfg.FFmpeg.Path != "ffmpeg" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.FFmpeg.AcceptTimeoutDuration() != 10*time.Second {
		t.Fatalf("unexpected accept timeout %v", cfg.FFmpeg.AcceptTimeoutDuration())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  bind: "127.0.0.1:9000"
ffmpeg:
  path: /usr/local/bin/ffmpeg
  accept_timeout_seconds: 3
  access:
    input:
      allow: ["^rtmp://", "^/media/"]
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:9000" {
		t.Fatalf("bind: %q", cfg.Server.Bind)
	}
	if cfg.FFmpeg.Path != "/usr/local/bin/ffmpeg" {
		t.Fatalf("path: %q", cfg.FFmpeg.Path)
	}
	if cfg.FFmpeg.AcceptTimeoutDuration() != 3*time.Second {
		t.Fatalf("accept timeout: %v", cfg.FFmpeg.AcceptTimeoutDuration())
	}
	if len(cfg.FFmpeg.Access.Input.Allow) != 2 {
		t.Fatalf("allow rules: %v", cfg.FFmpeg.Access.Input.Allow)
	}
	if cfg.FFmpeg.MaxLogLines != 100 {
		t.Fatalf("max log lines should keep its default, got %d", cfg.FFmpeg.MaxLogLines)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level: %q", cfg.Log.Level)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[server]
bind = ":7000"

[ffmpeg]
max_log_lines = 500

[ffmpeg.access.output]
block = ["^file:"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != ":7000" {
		t.Fatalf("bind: %q", cfg.Server.Bind)
	}
	if cfg.FFmpeg.Path != "ffmpeg" {
		t.Fatalf("path default lost: %q", cfg.FFmpeg.Path)
	}
	if cfg.FFmpeg.MaxLogLines != 500 {
		t.Fatalf("max log lines: %d", cfg.FFmpeg.MaxLogLines)
	}
	if len(cfg.FFmpeg.Access.Output.Block) != 1 || cfg.FFmpeg.Access.Output.Block[0] != "^file:" {
		t.Fatalf("block rules: %v", cfg.FFmpeg.Access.Output.Block)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeFile(t, "config.json", `{}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for .json config")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yml", "server: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
