package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/runstore"
)

const defaultRunLimit = 50

// RunResponse is the API response for a run record
type RunResponse struct {
	ID               int64   `json:"id"`
	StoreCode        string  `json:"store_code"`
	TaskName         string  `json:"task_name"`
	TaskID           string  `json:"task_id"`
	ProcessID        int     `json:"process_id"`
	Test             bool    `json:"test"`
	Success          bool    `json:"success"`
	EmptyRun         bool    `json:"empty_run"`
	Status           string  `json:"status"`
	MaxMemoryUsageMB int64   `json:"max_memory_usage_mb"`
	StartAt          string  `json:"start_at"`
	FinishAt         *string `json:"finish_at,omitempty"`
	Duration         string  `json:"duration"`
}

// TaskResponse is the API response for a catalog entry
type TaskResponse struct {
	Name      string   `json:"name"`
	Title     string   `json:"title,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	Running   bool     `json:"running"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Tasks   int `json:"tasks"`
	Running int `json:"runs_running"`
}

// RunResultResponse is returned after a manual launch
type RunResultResponse struct {
	Task    string `json:"task"`
	Title   string `json:"title"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// RunErrorResponse shows why the last manual launch failed
type RunErrorResponse struct {
	Task   string `json:"task,omitempty"`
	Reason string `json:"reason"`
}

func runToResponse(r *domain.Run, now time.Time) RunResponse {
	resp := RunResponse{
		ID:               r.ID,
		StoreCode:        r.StoreCode,
		TaskName:         r.TaskName,
		TaskID:           r.TaskID,
		ProcessID:        r.ProcessID,
		Test:             r.Test,
		Success:          r.Success,
		EmptyRun:         r.EmptyRun,
		Status:           string(r.Status()),
		MaxMemoryUsageMB: r.MaxMemoryUsageMB,
		StartAt:          r.StartAt.Format(time.RFC3339),
		Duration:         r.Duration(now).Round(time.Second).String(),
	}
	if r.FinishAt != nil {
		t := r.FinishAt.Format(time.RFC3339)
		resp.FinishAt = &t
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		running, err := s.runs.ListRuns(r.Context(), runstore.ListOptions{Status: domain.RunRunning})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, StatusResponse{
			Tasks:   len(s.runner.Catalog().Names(s.runner.Config())),
			Running: len(running),
		})
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := runstore.ListOptions{TaskName: q.Get("task"), Limit: defaultRunLimit}

		if v := q.Get("status"); v != "" {
			status, ok := domain.ParseRunStatus(v)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", v))
				return
			}
			opts.Status = status
		}
		if v := q.Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive number")
				return
			}
			opts.Limit = limit
		}

		runs, err := s.runs.ListRuns(r.Context(), opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		now := s.nowFunc()
		resp := make([]RunResponse, len(runs))
		for i, run := range runs {
			resp[i] = runToResponse(run, now)
		}
		writeJSON(w, resp)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid run id")
			return
		}

		run, err := s.runs.Load(r.Context(), id)
		if errors.Is(err, runstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, runToResponse(run, s.nowFunc()))
	}
}

func (s *Server) listTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.runner.Config()
		locks := s.runner.Locks()

		names := s.runner.Catalog().Names(cfg)
		resp := make([]TaskResponse, 0, len(names))
		for _, name := range names {
			running, _ := locks.Probe(name)
			resp = append(resp, TaskResponse{
				Name:      name,
				Title:     cfg.TaskString(name, "data", "title", "", true),
				DependsOn: domain.ParseTaskList(cfg.TaskString(name, "settings", "depends_on", "", true)),
				Running:   running,
			})
		}
		writeJSON(w, resp)
	}
}

// runTaskHandler launches a task and responds with its summary. Failures
// are kept in the session and the client is sent to the error page.
func (s *Server) runTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.flash.Session(w, r)
		name := strings.TrimSpace(r.PathValue("name"))

		fail := func(reason string) {
			s.flash.Set(session, flashTaskName, name)
			s.flash.Set(session, flashErrorReason, reason)
			http.Redirect(w, r, "/api/run/error", http.StatusSeeOther)
		}

		if name == "" {
			fail("Please specify a task name!")
			return
		}

		cfg := s.runner.Config()
		task, err := s.runner.Catalog().Resolve(cfg, name)
		if err != nil {
			fail(err.Error())
			return
		}

		storeCode := strings.TrimSpace(r.FormValue("store_code"))
		if storeCode == "" {
			storeCode = cfg.General.AdminStore
		}
		test := isTruthy(r.FormValue("test"))

		s.Broadcast(SSEEvent{Type: "run_started", Data: map[string]string{"task": name, "store_code": storeCode}})

		// The run outlives a client that disconnects.
		ctx := context.WithoutCancel(r.Context())
		c := s.runner.NewController(task)
		result, err := c.LaunchFromAdmin(ctx, storeCode, name, test)
		if err != nil {
			s.logger.Error("manual launch failed", "task", name, "error", err)
			fail(err.Error())
			return
		}

		if rec := c.Record(); rec != nil {
			s.Broadcast(SSEEvent{Type: "run_finished", Data: runToResponse(rec, s.nowFunc())})
		}

		title := cfg.TaskString(name, "data", "title", "", true)
		if title == "" {
			title = name
		}
		writeJSON(w, RunResultResponse{Task: name, Title: title, Success: c.Success(), Result: result})
	}
}

func (s *Server) runErrorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.flash.Session(w, r)
		name, _ := s.flash.Take(session, flashTaskName)
		reason, ok := s.flash.Take(session, flashErrorReason)
		if !ok || reason == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		writeJSON(w, RunErrorResponse{Task: name, Reason: reason})
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
