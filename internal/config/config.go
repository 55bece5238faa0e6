// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server ServerConfig `yaml:"server" toml:"server"`
	FFmpeg FFmpegConfig `yaml:"ffmpeg" toml:"ffmpeg"`
	Log    LogConfig    `yaml:"log" toml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind" toml:"bind"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path          string       `yaml:"path" toml:"path"`
	MaxLogLines   int          `yaml:"max_log_lines" toml:"max_log_lines"`
	AcceptTimeout uint64       `yaml:"accept_timeout_seconds" toml:"accept_timeout_seconds"`
	Access        AccessConfig `yaml:"access" toml:"access"`
}

// AccessConfig holds regular expressions for input and output addresses
type AccessConfig struct {
	Input  AccessRules `yaml:"input" toml:"input"`
	Output AccessRules `yaml:"output" toml:"output"`
}

// AccessRules 允许/禁止的地址表达式
type AccessRules struct {
	Allow []string `yaml:"allow" toml:"allow"`
	Block []string `yaml:"block" toml:"block"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

const (
	defaultBind          = ":8080"
	defaultFFmpeg        = "ffmpeg"
	defaultLogLines      = 100
	defaultAcceptTimeout = 10
	defaultLogLevel      = "info"
)

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: defaultBind},
		FFmpeg: FFmpegConfig{
			Path:          defaultFFmpeg,
			MaxLogLines:   defaultLogLines,
			AcceptTimeout: defaultAcceptTimeout,
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

// AcceptTimeoutDuration returns how long to wait for FFmpeg to connect back
func (c FFmpegConfig) AcceptTimeoutDuration() time.Duration {
	return time.Duration(c.AcceptTimeout) * time.Second
}

// Load 从 YAML 或 TOML 文件加载配置, 按扩展名选择格式
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// 填充空值
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = defaultBind
	}
	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = defaultFFmpeg
	}
	if cfg.FFmpeg.MaxLogLines <= 0 {
		cfg.FFmpeg.MaxLogLines = defaultLogLines
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}

	return cfg, nil
}
