// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg"
	"github.com/ZSC714725/ffprogress/internal/task"

	"github.com/gin-gonic/gin"
)

// Handler holds dependencies
type Handler struct {
	store  task.Store
	ffmpeg ffmpeg.FFmpeg

	// how often a progress stream checks whether the task still runs
	pollInterval time.Duration
}

// NewHandler creates API handler
func NewHandler(store task.Store, ff ffmpeg.FFmpeg) *Handler {
	return &Handler{store: store, ffmpeg: ff, pollInterval: time.Second}
}

// Register mounts all routes on group
func (h *Handler) Register(v3 *gin.RouterGroup) {
	v3.GET("/skills", h.Skills)
	v3.POST("/skills/reload", h.ReloadSkills)

	v3.GET("/process", h.ListProcesses)
	v3.POST("/process", h.AddProcess)
	v3.GET("/process/:id", h.GetProcess)
	v3.PUT("/process/:id", h.UpdateProcess)
	v3.DELETE("/process/:id", h.DeleteProcess)
	v3.GET("/process/:id/config", h.GetConfig)
	v3.GET("/process/:id/state", h.GetState)
	v3.GET("/process/:id/report", h.GetReport)
	v3.GET("/process/:id/progress", h.StreamProgress)
	v3.PUT("/process/:id/command", h.Command)
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// AddProcess POST /api/v3/process
func (h *Handler) AddProcess(c *gin.Context) {
	var req ProcessConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	t, err := h.store.Add(requestToConfig(&req))
	if err != nil {
		switch {
		case errors.Is(err, task.ErrTaskExists):
			errResp(c, http.StatusBadRequest, "Task exists", err.Error())
		case errors.Is(err, task.ErrInvalidInputAddress), errors.Is(err, task.ErrInvalidOutputAddress):
			errResp(c, http.StatusBadRequest, "Invalid address", err.Error())
		default:
			errResp(c, http.StatusBadRequest, "Invalid config", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, taskToProcessConfig(t))
}

// ListProcesses GET /api/v3/process
func (h *Handler) ListProcesses(c *gin.Context) {
	filter := c.DefaultQuery("filter", "")
	reference := c.DefaultQuery("reference", "")
	idStr := c.DefaultQuery("id", "")

	var ids []string
	for _, id := range strings.Split(idStr, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	tasks := h.store.List(ids, reference)
	procs := make([]Process, 0, len(tasks))
	for _, t := range tasks {
		procs = append(procs, taskToProcess(t, filter))
	}

	c.JSON(http.StatusOK, procs)
}

// GetProcess GET /api/v3/process/:id
func (h *Handler) GetProcess(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, taskToProcess(t, c.DefaultQuery("filter", "")))
}

// DeleteProcess DELETE /api/v3/process/:id
func (h *Handler) DeleteProcess(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown process ID", err.Error())
			return
		}
		errResp(c, http.StatusInternalServerError, "Delete failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, "OK")
}

// UpdateProcess PUT /api/v3/process/:id
func (h *Handler) UpdateProcess(c *gin.Context) {
	id := c.Param("id")

	var req ProcessConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	t, err := h.store.Update(id, requestToConfig(&req))
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown process ID", err.Error())
			return
		}
		errResp(c, http.StatusBadRequest, "Invalid config", err.Error())
		return
	}

	c.JSON(http.StatusOK, taskToProcessConfig(t))
}

// GetConfig GET /api/v3/process/:id/config
func (h *Handler) GetConfig(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, taskToProcessConfig(t))
}

// GetState GET /api/v3/process/:id/state
func (h *Handler) GetState(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, taskToProcessState(t))
}

// GetReport GET /api/v3/process/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}

	report := taskToProcessReport(t, func(ts time.Time) string {
		return ts.Format("2006-01-02 15:04:05.000")
	})
	c.JSON(http.StatusOK, report)
}

// StreamProgress GET /api/v3/process/:id/progress
//
// Server-Sent Events, one "progress" event per snapshot. The stream ends with
// the final snapshot of a run, when the task is not running, or when the
// client goes away.
func (h *Handler) StreamProgress(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}

	ch, unsubscribe := t.Subscribe()
	defer unsubscribe()

	last, valid := t.Progress()
	if !valid && !t.IsRunning() {
		c.Status(http.StatusNoContent)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if valid {
		c.SSEvent("progress", newProgress(last))
		if last.IsEnd() || !t.IsRunning() {
			return
		}
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case p, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("progress", newProgress(p))
			return !p.IsEnd()
		case <-ticker.C:
			return t.IsRunning()
		}
	})
}

// Command PUT /api/v3/process/:id/command
func (h *Handler) Command(c *gin.Context) {
	id := c.Param("id")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	var err error
	switch req.Command {
	case "start":
		err = h.store.Start(id)
	case "stop":
		err = h.store.Stop(id)
	case "restart":
		err = h.store.Restart(id)
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: start, stop, restart")
		return
	}

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown process ID", err.Error())
			return
		}
		errResp(c, http.StatusBadRequest, "Command failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, "OK")
}

// Skills GET /api/v3/skills
func (h *Handler) Skills(c *gin.Context) {
	c.JSON(http.StatusOK, newSkills(h.ffmpeg.Skills()))
}

// ReloadSkills POST /api/v3/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if err := h.ffmpeg.ReloadSkills(); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, newSkills(h.ffmpeg.Skills()))
}

func (h *Handler) task(c *gin.Context) (*task.Task, bool) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown process ID", err.Error())
		return nil, false
	}
	return t, true
}

func requestToConfig(req *ProcessConfigRequest) *task.Config {
	cfg := &task.Config{
		ID:             req.ID,
		Reference:      req.Reference,
		Options:        req.Options,
		Reconnect:      req.Reconnect,
		ReconnectDelay: req.ReconnectDelay,
		Autostart:      req.Autostart,
		StaleTimeout:   req.StaleTimeout,
	}
	for _, in := range req.Input {
		cfg.Input = append(cfg.Input, task.ConfigIO(in))
	}
	for _, out := range req.Output {
		cfg.Output = append(cfg.Output, task.ConfigIO(out))
	}
	return cfg
}

func taskToProcessConfig(t *task.Task) *ProcessConfig {
	cfg := &ProcessConfig{
		ID:             t.ID,
		Type:           "ffmpeg",
		Reference:      t.Reference,
		Options:        t.Config.Options,
		Reconnect:      t.Config.Reconnect,
		ReconnectDelay: t.Config.ReconnectDelay,
		Autostart:      t.Config.Autostart,
		StaleTimeout:   t.Config.StaleTimeout,
	}
	for _, in := range t.Config.Input {
		cfg.Input = append(cfg.Input, ProcessConfigIO(in))
	}
	for _, out := range t.Config.Output {
		cfg.Output = append(cfg.Output, ProcessConfigIO(out))
	}
	return cfg
}

func taskToProcessState(t *task.Task) *ProcessState {
	status := t.Status()
	state := &ProcessState{
		Order:     status.Order,
		State:     status.State,
		Runtime:   int64(status.Duration.Seconds()),
		Reconnect: -1,
		LastLog:   status.LastLine,
		LastError: status.LastError,
		Memory:    status.Memory,
		CPU:       status.CPU,
		Command:   t.Config.CreateCommand().Args(),
	}
	if p, ok := t.Progress(); ok {
		state.Progress = newProgress(p)
	}
	return state
}

func taskToProcessReport(t *task.Task, format func(time.Time) string) *ProcessReport {
	lines := t.Log()
	report := &ProcessReport{
		CreatedAt: t.CreatedAt,
		Prelude:   []string{},
		Log:       make([][2]string, len(lines)),
	}
	for i, line := range lines {
		report.Log[i] = [2]string{format(line.Timestamp), line.Data}
	}
	return report
}

func taskToProcess(t *task.Task, filter string) Process {
	p := Process{
		ID:        t.ID,
		Type:      "ffmpeg",
		Reference: t.Reference,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}

	includeAll := filter == ""
	if includeAll || strings.Contains(filter, "config") {
		p.Config = taskToProcessConfig(t)
	}
	if includeAll || strings.Contains(filter, "state") {
		p.State = taskToProcessState(t)
	}
	if includeAll || strings.Contains(filter, "report") {
		p.Report = taskToProcessReport(t, func(ts time.Time) string {
			return strconv.FormatInt(ts.Unix(), 10)
		})
	}

	return p
}
