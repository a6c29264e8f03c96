// Package cdetest implements an in-memory fake of the job-execution
// service's REST API. It exists so the client, session and CLI tests can
// spin up a real HTTP server via httptest.NewServer and drive the full job
// lifecycle against scriptable statuses and canned log bodies.
package cdetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Service is a scriptable fake job-execution service. Configure Token,
// StatusScript and logs before serving; inspect state afterwards through
// the accessor methods. All methods are safe for concurrent use.
type Service struct {
	mu        sync.Mutex
	token     string
	script    []string          // statuses served in order; the last one repeats
	logs      map[string]string // "driver/stdout" -> body
	resources map[string]map[string][]byte
	jobs      map[string]map[string]any
	runs      map[int64]*runState
	nextRunID int64

	uploads []UploadedFile

	createResourceCalls int
	deleteResourceCalls int
	deleteJobCalls      int
	statusCalls         int
	logCalls            int
}

type runState struct {
	jobName string
	nextIdx int
}

// New returns an empty fake service whose runs succeed immediately.
func New() *Service {
	return &Service{
		script:    []string{"succeeded"},
		logs:      map[string]string{},
		resources: map[string]map[string][]byte{},
		jobs:      map[string]map[string]any{},
		runs:      map[int64]*runState{},
	}
}

// SetToken makes the service reject calls without the given bearer token.
func (s *Service) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SetStatusScript scripts the statuses returned by successive run-status
// calls. Each run consumes its own copy; the final status repeats forever.
func (s *Service) SetStatusScript(statuses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append([]string(nil), statuses...)
}

// SetLog sets the body served for one driver log stream, e.g. "stdout".
func (s *Service) SetLog(stream, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs["driver/"+stream] = body
}

// ResourceFile returns the uploaded content of a file, if present.
func (s *Service) ResourceFile(namespace, fileName string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.resources[namespace]
	if !ok {
		return nil, false
	}
	data, ok := files[fileName]
	return data, ok
}

// UploadedFile is one record from the upload journal.
type UploadedFile struct {
	Namespace string
	FileName  string
	Content   []byte
}

// Uploads returns every file ever uploaded, in order, including files whose
// namespace has since been deleted.
func (s *Service) Uploads() []UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadedFile(nil), s.uploads...)
}

// SubmittedJob returns the raw submitted job spec, if present.
func (s *Service) SubmittedJob(name string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.jobs[name]
	return spec, ok
}

// CreateResourceCalls returns how many namespace creations were requested.
func (s *Service) CreateResourceCalls() int { return s.count(&s.createResourceCalls) }

// DeleteResourceCalls returns how many namespace deletions were requested.
func (s *Service) DeleteResourceCalls() int { return s.count(&s.deleteResourceCalls) }

// DeleteJobCalls returns how many job deletions were requested.
func (s *Service) DeleteJobCalls() int { return s.count(&s.deleteJobCalls) }

// StatusCalls returns how many run-status fetches were served.
func (s *Service) StatusCalls() int { return s.count(&s.statusCalls) }

// LogCalls returns how many log fetches were served.
func (s *Service) LogCalls() int { return s.count(&s.logCalls) }

func (s *Service) count(field *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *field
}

// Handler returns the HTTP handler implementing the API surface the client
// exercises.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireToken)

	r.Post("/resources", s.handleCreateResource)
	r.Delete("/resources/{name}", s.handleDeleteResource)
	r.Put("/resources/{name}/{file}", s.handleUploadResource)
	r.Post("/jobs", s.handleSubmitJob)
	r.Post("/jobs/{name}/run", s.handleRunJob)
	r.Get("/job-runs/{id}", s.handleRunStatus)
	r.Get("/job-runs/{id}/logs", s.handleRunLogs)
	r.Delete("/jobs/{name}", s.handleDeleteJob)

	return r
}

func (s *Service) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid resource spec"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.createResourceCalls++
	if _, exists := s.resources[req.Name]; exists {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "resource already exists"})
		return
	}
	s.resources[req.Name] = map[string][]byte{}
	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name, "type": req.Type})
}

func (s *Service) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteResourceCalls++
	if _, exists := s.resources[name]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "resource not found"})
		return
	}
	delete(s.resources, name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleUploadResource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fileName := chi.URLParam(r, "file")

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing file field"})
		return
	}
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable file field"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	files, exists := s.resources[name]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "resource not found"})
		return
	}
	files[fileName] = data
	s.uploads = append(s.uploads, UploadedFile{Namespace: name, FileName: fileName, Content: data})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var spec map[string]any
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid job spec"})
		return
	}
	name, _ := spec["name"].(string)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "job name is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validateMounts(spec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.jobs[name] = spec
	writeJSON(w, http.StatusCreated, map[string]any{"name": name})
}

// validateMounts checks that every mounted namespace exists and that the
// spark entry file and extra files were actually uploaded.
func (s *Service) validateMounts(spec map[string]any) error {
	mounts, _ := spec["mounts"].([]any)
	var files map[string][]byte
	for _, m := range mounts {
		mount, _ := m.(map[string]any)
		ns, _ := mount["resourceName"].(string)
		existing, ok := s.resources[ns]
		if !ok {
			return fmt.Errorf("mounted resource %q does not exist", ns)
		}
		files = existing
	}

	spark, _ := spec["spark"].(map[string]any)
	if entry, _ := spark["file"].(string); entry != "" {
		if _, ok := files[entry]; !ok {
			return fmt.Errorf("entry file %q was not uploaded", entry)
		}
	}
	extras, _ := spark["files"].([]any)
	for _, e := range extras {
		extra, _ := e.(string)
		if _, ok := files[extra]; !ok {
			return fmt.Errorf("extra file %q was not uploaded", extra)
		}
	}
	return nil
}

func (s *Service) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found"})
		return
	}
	s.nextRunID++
	id := s.nextRunID
	s.runs[id] = &runState{jobName: name}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Service) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid run id"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	run, exists := s.runs[id]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
		return
	}
	s.statusCalls++
	status := s.script[min(run.nextIdx, len(s.script)-1)]
	run.nextIdx++
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status, "job": run.jobName})
}

func (s *Service) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid run id"})
		return
	}
	logType := r.URL.Query().Get("type")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
		return
	}
	s.logCalls++
	body := s.logs[logType]
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.Copy(w, strings.NewReader(body))
}

func (s *Service) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteJobCalls++
	if _, exists := s.jobs[name]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found"})
		return
	}
	delete(s.jobs, name)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
