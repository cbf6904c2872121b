// Package server is the HTTP ingress: it parses requests, enforces the
// submission contract against the pool and reads results back through
// the store's locking discipline. All API responses are JSON.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/le-stats-sportif/webserver/internal/logging"
	"github.com/le-stats-sportif/webserver/internal/pool"
	"github.com/le-stats-sportif/webserver/internal/results"
	"github.com/le-stats-sportif/webserver/pkg/types"
)

// Server wires the HTTP surface to the job-execution core.
type Server struct {
	pool  *pool.Pool
	store *results.Store
	log   *logging.Logger
}

// Route describes one registered endpoint, used by the index page and
// the CLI route listing.
type Route struct {
	Method string
	Path   string
}

// submitPath is the POST endpoint for a job kind; the endpoint suffix
// and the kind name are the same token.
func submitPath(kind types.JobKind) string {
	return "/api/" + string(kind)
}

// New creates the ingress around its collaborators.
func New(p *pool.Pool, store *results.Store, log *logging.Logger) *Server {
	return &Server{pool: p, store: store, log: log}
}

// Routes returns the full endpoint table.
func Routes() []Route {
	routes := make([]Route, 0, len(types.Kinds)+6)
	for _, kind := range types.Kinds {
		routes = append(routes, Route{Method: http.MethodPost, Path: submitPath(kind)})
	}
	routes = append(routes,
		Route{Method: http.MethodGet, Path: "/api/get_results/{job_id}"},
		Route{Method: http.MethodGet, Path: "/api/graceful_shutdown"},
		Route{Method: http.MethodGet, Path: "/api/num_jobs"},
		Route{Method: http.MethodGet, Path: "/api/jobs"},
		Route{Method: http.MethodGet, Path: "/"},
		Route{Method: http.MethodGet, Path: "/index"},
	)
	return routes
}

// Handler builds the route table wrapped in the access-log middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, kind := range types.Kinds {
		mux.HandleFunc("POST "+submitPath(kind), s.handleSubmit(kind))
	}
	mux.HandleFunc("GET /api/get_results/{job_id}", s.handleGetResults)
	mux.HandleFunc("GET /api/graceful_shutdown", s.handleGracefulShutdown)
	mux.HandleFunc("GET /api/num_jobs", s.handleNumJobs)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index", s.handleIndex)

	return s.withAccessLog(mux)
}

// submitRequest is the body of every job-submitting POST. Kinds that
// need no state ignore the field; an empty question is accepted and
// resolved by the computation itself.
type submitRequest struct {
	Question string `json:"question"`
	State    string `json:"state"`
}

type errorBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s *Server) handleSubmit(kind types.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.logf("ERROR - bad '%s' request body: %v", kind, err)
			writeJSON(w, http.StatusBadRequest, errorBody{Status: "error", Reason: "invalid request body"})
			return
		}

		id, err := s.pool.Submit(kind, req.Question, req.State)
		if errors.Is(err, pool.ErrShuttingDown) {
			writeJSON(w, http.StatusBadRequest, errorBody{Status: "error", Reason: "shutting down"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Reason: "failed to register job"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]types.JobID{"job_id": id})
	}
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("job_id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.logf("ERROR - invalid job_id '%s': must be a positive integer", raw)
		writeJSON(w, http.StatusBadRequest, errorBody{Status: "error", Reason: "Invalid job_id"})
		return
	}
	if types.JobID(id) > s.pool.LastIssued() {
		s.logf("ERROR - invalid job_id '%s': no such job", raw)
		writeJSON(w, http.StatusBadRequest, errorBody{Status: "error", Reason: "Invalid job_id"})
		return
	}

	state, data, err := s.store.Read(types.JobID(id))
	if err != nil {
		// Every issued id has a result file; its absence is an internal
		// failure, not a client error.
		s.logf("ERROR - result file for job %d unreadable: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Reason: "Invalid job_id"})
		return
	}

	writeJSON(w, http.StatusOK, types.ResultDoc{Status: state, Data: data})
}

func (s *Server) handleGracefulShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Shutdown())
}

func (s *Server) handleNumJobs(w http.ResponseWriter, r *http.Request) {
	n := s.pool.NumPending()
	writeJSON(w, http.StatusOK, map[string]string{"num_pending_job": strconv.Itoa(n)})
}

type jobsResponse struct {
	Status string                      `json:"status"`
	Data   []map[string]types.JobState `json:"data"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	last := s.pool.LastIssued()

	jobs := make([]map[string]types.JobState, 0, last)
	for id := types.JobID(1); id <= last; id++ {
		state, _, err := s.store.Read(id)
		if err != nil {
			// Ids whose file disappeared are skipped silently.
			continue
		}
		jobs = append(jobs, map[string]types.JobState{
			fmt.Sprintf("job_id_%d", id): state,
		})
	}

	writeJSON(w, http.StatusOK, jobsResponse{Status: "done", Data: jobs})
}

// handleIndex lists the defined endpoints as plain text.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("Interact with the webserver using one of the defined routes:\n")
	for _, route := range Routes() {
		fmt.Fprintf(&b, "%s %s\n", route.Method, route.Path)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.log == nil {
		return
	}
	s.log.Printf(format, args...)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
