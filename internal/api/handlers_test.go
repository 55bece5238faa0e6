// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// TranscodeManager - FFmpeg 转码任务管理工具

package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZSC714725/ffprogress/internal/ffmpeg"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/command"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/progress"
	"github.com/ZSC714725/ffprogress/internal/ffmpeg/skills"
	"github.com/ZSC714725/ffprogress/internal/process"
	"github.com/ZSC714725/ffprogress/internal/task"

	"github.com/gin-gonic/gin"
)

type fakeProcess struct {
	mu      sync.Mutex
	running bool
	last    progress.Progress
	valid   bool
	subs    []chan progress.Progress
}

func (p *fakeProcess) Status() process.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := "finished"
	if p.running {
		state = "running"
	}
	return process.Status{State: state, LastLine: "frame=1", Memory: 1024, CPU: 12.5}
}

func (p *fakeProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	return nil
}

func (p *fakeProcess) Stop(bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

func (p *fakeProcess) Kill(wait bool) error { return p.Stop(wait) }

func (p *fakeProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *fakeProcess) Progress() (progress.Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.valid
}

func (p *fakeProcess) Log() []process.Line {
	return []process.Line{{Timestamp: time.Unix(100, 0), Data: "frame=1"}}
}

func (p *fakeProcess) Subscribe() (<-chan progress.Progress, func()) {
	ch := make(chan progress.Progress, 8)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch, func() {}
}

func (p *fakeProcess) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakeProcess) publish(snapshot progress.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = snapshot
	p.valid = true
	for _, ch := range p.subs {
		ch <- snapshot
	}
}

type fakeFFmpeg struct {
	procs []*fakeProcess
}

func (f *fakeFFmpeg) New(ffmpeg.ProcessConfig) (process.Process, error) {
	p := &fakeProcess{}
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakeFFmpeg) Command() command.Command     { return command.New("ffmpeg") }
func (f *fakeFFmpeg) AcceptTimeout() time.Duration { return time.Second }
func (f *fakeFFmpeg) ValidateInput(string) bool    { return true }
func (f *fakeFFmpeg) ValidateOutput(a string) bool { return !strings.HasPrefix(a, "/etc") }
func (f *fakeFFmpeg) ReloadSkills() error          { return nil }

func (f *fakeFFmpeg) Skills() skills.Skills {
	s := skills.Skills{Version: "6.1.1"}
	s.Protocols.Output = []string{"file", "tcp"}
	return s
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeFFmpeg) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ff := &fakeFFmpeg{}
	h := NewHandler(task.NewStore(ff, nil), ff)
	h.pollInterval = 20 * time.Millisecond

	r := gin.New()
	h.Register(r.Group("/api/v3"))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, ff
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

const addBody = `{"id":"t1","reference":"r","input":[{"address":"in.mp4"}],"output":[{"address":"out.mp4","options":["-c","copy"]}]}`

func TestAddAndGetProcess(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v3/process/t1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, body)
	}

	var p Process
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ID != "t1" || p.Config == nil || p.State == nil || p.Report == nil {
		t.Fatalf("unexpected process: %s", body)
	}
	if got := strings.Join(p.State.Command, " "); got != "-i in.mp4 -c copy out.mp4" {
		t.Fatalf("command: %q", got)
	}
	if p.State.Progress != nil {
		t.Fatal("no progress expected before the first snapshot")
	}
	if len(p.Report.Log) != 1 || p.Report.Log[0] != [2]string{"100", "frame=1"} {
		t.Fatalf("report: %v", p.Report.Log)
	}
}

func TestAddProcessErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v3/process", `{`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json: %d", resp.StatusCode)
	}

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v3/process",
		`{"input":[{"address":"in.mp4"}],"output":[{"address":"/etc/passwd"}]}`)
	if resp.StatusCode != http.StatusBadRequest || !bytes.Contains(body, []byte("Invalid address")) {
		t.Fatalf("invalid address: %d %s", resp.StatusCode, body)
	}

	do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)
	resp, body = do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)
	if resp.StatusCode != http.StatusBadRequest || !bytes.Contains(body, []byte("Task exists")) {
		t.Fatalf("duplicate: %d %s", resp.StatusCode, body)
	}
}

func TestUnknownProcess(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"", "/config", "/state", "/report", "/progress"} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/v3/process/nope"+path, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s: %d", path, resp.StatusCode)
		}
	}

	resp, _ := do(t, http.MethodDelete, srv.URL+"/api/v3/process/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("DELETE: %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/v3/process/nope/command", `{"command":"start"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("command: %d", resp.StatusCode)
	}
}

func TestCommandAndState(t *testing.T) {
	srv, ff := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)

	resp, body := do(t, http.MethodPut, srv.URL+"/api/v3/process/t1/command", `{"command":"jump"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown command: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPut, srv.URL+"/api/v3/process/t1/command", `{"command":"start"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", resp.StatusCode, body)
	}

	frame := uint64(42)
	ff.procs[0].publish(progress.Progress{Frame: &frame})

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v3/process/t1/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: %d %s", resp.StatusCode, body)
	}
	var state ProcessState
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if state.State != "running" || state.Memory != 1024 || state.CPU != 12.5 {
		t.Fatalf("unexpected state: %s", body)
	}
	if state.Progress == nil || state.Progress.Frame == nil || *state.Progress.Frame != 42 {
		t.Fatalf("unexpected progress: %s", body)
	}
	if state.Progress.Speed != nil || bytes.Contains(body, []byte(`"speed"`)) {
		t.Fatalf("absent fields must be omitted: %s", body)
	}
	if state.Progress.Status != "continue" {
		t.Fatalf("status: %q", state.Progress.Status)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	srv, ff := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)

	resp, body := do(t, http.MethodPut, srv.URL+"/api/v3/process/t1",
		`{"input":[{"address":"a.mp4"}],"output":[{"address":"b.mp4"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", resp.StatusCode, body)
	}
	var cfg ProcessConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.ID != "t1" || cfg.Reference != "r" || cfg.Input[0].Address != "a.mp4" {
		t.Fatalf("unexpected config: %s", body)
	}
	if len(ff.procs) != 2 {
		t.Fatalf("expected a new process, have %d", len(ff.procs))
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v3/process/t1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v3/process", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
}

func TestListFilter(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)

	_, body := do(t, http.MethodGet, srv.URL+"/api/v3/process?filter=config&id=t1,x", "")
	var procs []Process
	if err := json.Unmarshal(body, &procs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(procs) != 1 || procs[0].Config == nil || procs[0].State != nil || procs[0].Report != nil {
		t.Fatalf("unexpected list: %s", body)
	}
}

func TestSkills(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := do(t, http.MethodGet, srv.URL+"/api/v3/skills", "")
	var s Skills
	if err := json.Unmarshal(body, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.FFmpeg.Version != "6.1.1" || !s.Progress {
		t.Fatalf("unexpected skills: %s", body)
	}

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v3/skills/reload", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload: %d", resp.StatusCode)
	}
}

func TestStreamProgressNotRunning(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/v3/process/t1/progress", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestStreamProgress(t *testing.T) {
	srv, ff := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/api/v3/process", addBody)
	do(t, http.MethodPut, srv.URL+"/api/v3/process/t1/command", `{"command":"start"}`)
	proc := ff.procs[0]

	resp, err := http.Get(srv.URL + "/api/v3/process/t1/progress")
	if err != nil {
		t.Fatalf("GET progress: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type: %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for proc.subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	frame := uint64(10)
	proc.publish(progress.Progress{Frame: &frame})
	frame2 := uint64(20)
	proc.publish(progress.Progress{Frame: &frame2, Status: progress.StatusEnd})

	var events []Progress
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var p Progress
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		events = append(events, p)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if *events[0].Frame != 10 || events[0].Status != "continue" {
		t.Fatalf("first event: %+v", events[0])
	}
	if *events[1].Frame != 20 || events[1].Status != "end" {
		t.Fatalf("second event: %+v", events[1])
	}
}
