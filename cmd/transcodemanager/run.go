// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg/command"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/progress"
	"github.com/ZSC714725/ffprogress/internal/logger"

	"github.com/spf13/cobra"
)

type runOptions struct {
	inputs  []string
	outputs []string
	opts    []string
	flags   []string
	stderr  bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run -i INPUT -o OUTPUT [-- OUTPUT_ARGS...]",
		Short: "Run one FFmpeg job in the foreground and follow its progress",
		Long: `Run one FFmpeg job in the foreground and follow its progress.

Arguments after -- are passed verbatim before every output, e.g.
  transcodemanager run -i in.mkv -o out.mp4 --flag y -- -c:v libx264 -crf 23`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(o.inputs) == 0 || len(o.outputs) == 0 {
				return errors.New("need at least one -i and one -o")
			}

			ff, err := ctx.ffmpeg()
			if err != nil {
				return err
			}

			c, err := o.command(ff.Command(), args)
			if err != nil {
				return err
			}
			for _, in := range o.inputs {
				if !ff.ValidateInput(in) {
					return fmt.Errorf("input %q is not allowed", in)
				}
			}
			for _, out := range o.outputs {
				if !ff.ValidateOutput(out) {
					return fmt.Errorf("output %q is not allowed", out)
				}
			}

			log := ctx.logger("run")
			log.Debug("%s %s", c.Program, strings.Join(c.Args(), " "))

			session, err := progress.Start(cmd.Context(), c, progress.Config{
				AcceptTimeout: ff.AcceptTimeout(),
				Logger:        log,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			proc := session.Process()
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-sigCtx.Done()
				// ffmpeg finishes the output and reports progress=end
				proc.Interrupt()
			}()

			out := cmd.OutOrStdout()
			r := newRenderer(out, isTerminal(out), log)
			last, valid, perr := r.follow(session.Events())

			waitErr := proc.Wait()
			stop()

			fmt.Fprintln(out, renderKeyValue("summary", summaryRows(last, valid, perr, waitErr)))

			if waitErr != nil {
				if code, ok := command.ExitCode(waitErr); ok {
					return fmt.Errorf("ffmpeg exited with code %d", code)
				}
				return fmt.Errorf("ffmpeg: %w", waitErr)
			}
			if perr != nil {
				return fmt.Errorf("progress: %w", perr)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&o.inputs, "input", "i", nil, "Input address, repeatable")
	cmd.Flags().StringArrayVarP(&o.outputs, "output", "o", nil, "Output address, repeatable")
	cmd.Flags().StringArrayVar(&o.opts, "opt", nil, "Global option as key=value, repeatable")
	cmd.Flags().StringArrayVar(&o.flags, "flag", nil, "Global flag without value, repeatable")
	cmd.Flags().BoolVar(&o.stderr, "stderr", false, "Show FFmpeg's stderr")

	return cmd
}

// command builds the invocation. Global options go first, outputArgs are
// repeated in front of each output.
func (o *runOptions) command(base command.Command, outputArgs []string) (command.Command, error) {
	c := base.WithStdin(command.StdioNull)
	if o.stderr {
		c = c.WithStderr(command.StdioInherit)
	}

	for _, f := range o.flags {
		c = c.WithOption(command.Flag(strings.TrimPrefix(f, "-")))
	}
	for _, kv := range o.opts {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return c, fmt.Errorf("invalid option %q, want key=value", kv)
		}
		c = c.WithOption(command.KeyValue(strings.TrimPrefix(key, "-"), value))
	}

	for _, in := range o.inputs {
		c = c.WithInput(command.NewFile(in))
	}
	for _, out := range o.outputs {
		f := command.NewFile(out)
		for _, arg := range outputArgs {
			f = f.WithOption(command.Raw(arg))
		}
		c = c.WithOutput(f)
	}
	return c, nil
}

type renderer struct {
	w      io.Writer
	live   bool
	logger logger.Logger
	width  int
}

func newRenderer(w io.Writer, live bool, log logger.Logger) *renderer {
	return &renderer{w: w, live: live, logger: log}
}

// follow consumes events until the stream ends and returns the last snapshot
// and the terminal error, if any.
func (r *renderer) follow(events <-chan progress.Event) (last progress.Progress, valid bool, err error) {
	for ev := range events {
		if ev.Err != nil {
			err = ev.Err
			continue
		}
		last, valid = ev.Progress, true
		r.show(ev.Progress)
	}
	if r.live && valid {
		fmt.Fprintln(r.w)
	}
	return last, valid, err
}

func (r *renderer) show(p progress.Progress) {
	line := statusLine(p)
	if !r.live {
		r.logger.Info("%s", line)
		return
	}
	pad := ""
	if n := r.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	r.width = len(line)
	fmt.Fprintf(r.w, "\r%s%s", line, pad)
}

func statusLine(p progress.Progress) string {
	return fmt.Sprintf("frame=%s fps=%s size=%s time=%s speed=%s",
		formatUint(p.Frame), formatFloat(p.FPS, 1), formatSize(p.TotalSize),
		formatTime(p), formatSpeed(p.Speed))
}

func summaryRows(p progress.Progress, valid bool, perr, waitErr error) [][2]string {
	exit := "0"
	if waitErr != nil {
		exit = waitErr.Error()
		if code, ok := command.ExitCode(waitErr); ok {
			exit = strconv.Itoa(code)
		}
	}

	rows := [][2]string{}
	if valid {
		rows = append(rows,
			[2]string{"Frames", formatUint(p.Frame)},
			[2]string{"FPS", formatFloat(p.FPS, 2)},
			[2]string{"Size", formatSize(p.TotalSize)},
			[2]string{"Time", formatTime(p)},
			[2]string{"Speed", formatSpeed(p.Speed)},
			[2]string{"Duplicated", formatUint(p.DupFrames)},
			[2]string{"Dropped", formatUint(p.DropFrames)},
			[2]string{"Status", p.Status.String()},
		)
	} else {
		rows = append(rows, [2]string{"Status", "no progress received"})
	}
	if perr != nil {
		rows = append(rows, [2]string{"Progress error", perr.Error()})
	}
	rows = append(rows, [2]string{"Exit", exit})
	return rows
}

func formatUint(v *uint64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(*v, 10)
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatSpeed(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64) + "x"
}

func formatSize(v *uint64) string {
	if v == nil {
		return "-"
	}
	const unit = 1024
	if *v < unit {
		return fmt.Sprintf("%dB", *v)
	}
	div, exp := uint64(unit), 0
	for n := *v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(*v)/float64(div), "KMGTPE"[exp])
}

func formatTime(p progress.Progress) string {
	if p.OutTime == nil {
		return "-"
	}
	d := *p.OutTime
	sign := ""
	if d < 0 {
		sign, d = "-", -d
	}
	h := int64(d.Hours())
	m := int64(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%s%02d:%02d:%05.2f", sign, h, m, s)
}
