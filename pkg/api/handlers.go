package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/store"
)

const maxListLimit = 1000

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resultsResponse struct {
	Results []store.Result `json:"results"`
}

// handleListResults returns stored results, newest first.
func (s *server) handleListResults(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	results, err := s.store.ListResults(r.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to list results")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, resultsResponse{Results: nonNil(results)})
}

// handleLatestResults returns the newest result per (test, backend).
func (s *server) handleLatestResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.LatestResults(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list latest results")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, resultsResponse{Results: nonNil(results)})
}

// backendStatus summarizes the latest results for one backend.
type backendStatus struct {
	Backend       string `json:"backend"`
	Tests         int    `json:"tests"`
	Passed        int    `json:"passed"`
	Failed        int    `json:"failed"`
	LastTimestamp string `json:"last_timestamp"`
}

type statusResponse struct {
	Healthy  bool            `json:"healthy"`
	Backends []backendStatus `json:"backends"`
}

// handleStatus returns per-backend pass/fail counts over the latest results.
// The service is healthy when no latest result failed.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.LatestResults(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list latest results")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, summarize(results))
}

func summarize(results []store.Result) statusResponse {
	byBackend := make(map[string]*backendStatus, 4)

	for _, res := range results {
		st, ok := byBackend[res.Backend]
		if !ok {
			st = &backendStatus{Backend: res.Backend}
			byBackend[res.Backend] = st
		}

		st.Tests++

		if res.Result == string(executor.OutcomeSuccess) {
			st.Passed++
		} else {
			st.Failed++
		}

		if res.Timestamp > st.LastTimestamp {
			st.LastTimestamp = res.Timestamp
		}
	}

	resp := statusResponse{
		Healthy:  true,
		Backends: make([]backendStatus, 0, len(byBackend)),
	}

	for _, st := range byBackend {
		if st.Failed > 0 {
			resp.Healthy = false
		}

		resp.Backends = append(resp.Backends, *st)
	}

	sort.Slice(resp.Backends, func(i, j int) bool {
		return resp.Backends[i].Backend < resp.Backends[j].Backend
	})

	return resp
}

func parseListFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()

	filter := store.ListFilter{
		Test:    q.Get("test"),
		Backend: q.Get("backend"),
		Result:  q.Get("result"),
		Limit:   store.DefaultListLimit,
	}

	switch executor.Outcome(filter.Result) {
	case "", executor.OutcomeSuccess, executor.OutcomeFailure:
	default:
		return filter, fmt.Errorf("invalid result %q", filter.Result)
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}

		filter.Limit = min(limit, maxListLimit)
	}

	return filter, nil
}

func nonNil(results []store.Result) []store.Result {
	if results == nil {
		return []store.Result{}
	}

	return results
}
