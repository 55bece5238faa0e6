// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package main

import (
	"fmt"
	"strings"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg/skills"

	"github.com/spf13/cobra"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Show the FFmpeg version and whether progress reporting works",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// probe directly, ffmpeg.New refuses binaries without tcp output
			s, err := skills.New(cfg.FFmpeg.Path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValue(cfg.FFmpeg.Path, probeRows(s)))
			return nil
		},
	}
}

func probeRows(s skills.Skills) [][2]string {
	progress := "no"
	if s.SupportsProgress() {
		progress = "yes"
	}
	rows := [][2]string{
		{"Version", s.Version},
		{"Progress over TCP", progress},
		{"Input protocols", strings.Join(s.Protocols.Input, " ")},
		{"Output protocols", strings.Join(s.Protocols.Output, " ")},
	}
	for _, l := range s.Libraries {
		rows = append(rows, [2]string{l.Name, l.Linked})
	}
	return rows
}
