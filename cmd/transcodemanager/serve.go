// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZSC714725/ffprogress/internal/api"
	"github.com/ZSC714725/ffprogress/internal/task"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind == "" {
				bind = cfg.Server.Bind
			}

			log := ctx.logger("transcodemanager")

			ff, err := ctx.ffmpeg()
			if err != nil {
				return err
			}
			log.Info("ffmpeg %s", ff.Skills().Version)

			store := task.NewStore(ff, log.With("task"))
			handler := api.NewHandler(store, ff)

			r := gin.Default()
			r.Use(cors.Default())
			handler.Register(r.Group("/api/v3"))

			srv := &http.Server{Addr: bind, Handler: r}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				log.Info("TranscodeManager listening on %s", bind)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-sigCtx.Done():
			}

			log.Info("shutting down")
			for _, t := range store.List(nil, "") {
				if err := store.Stop(t.ID); err != nil {
					log.Error("stop task %s: %v", t.ID, err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Bind address (overrides config)")
	return cmd
}
