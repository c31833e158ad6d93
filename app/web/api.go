package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/invopop/jsonschema"

	"github.com/reevolve/reevolve/app/service"
	"github.com/reevolve/reevolve/app/service/request"
	"github.com/reevolve/reevolve/app/web/enums"
	"github.com/reevolve/reevolve/app/web/persistence"
)

// APIApplication represents an application record in JSON API response
type APIApplication struct {
	ID           int64  `json:"id"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	FitnessLevel string `json:"fitnessLevel"`
	PrimaryGoal  string `json:"primaryGoal"`
	WhyCoaching  string `json:"whyCoaching"`
	Timestamp    string `json:"timestamp"`
}

// APISubmitResponse is the JSON response for accepted submission
type APISubmitResponse struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// APIStats represents aggregated statistics in JSON API response
type APIStats struct {
	Total           int    `json:"total"`
	Today           int    `json:"today"`
	TopGoal         string `json:"topGoal,omitempty"`
	TopGoalLabel    string `json:"topGoalLabel,omitempty"`
	LatestTimestamp string `json:"latestTimestamp,omitempty"`
}

// APIValidationError is the JSON response for submission with missing fields
type APIValidationError struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

// formatTime renders timestamps in the stored layout, UTC with milliseconds
func formatTime(t time.Time) string {
	return t.UTC().Format(persistence.TimeLayout)
}

// toAPIApplication converts persistence.Record to APIApplication
func toAPIApplication(rec persistence.Record) APIApplication {
	return APIApplication{
		ID:           rec.ID,
		FullName:     rec.FullName,
		Email:        rec.Email,
		Phone:        rec.Phone,
		FitnessLevel: rec.FitnessLevel,
		PrimaryGoal:  rec.PrimaryGoal,
		WhyCoaching:  rec.WhyCoaching,
		Timestamp:    formatTime(rec.Timestamp),
	}
}

// toAPIStats converts persistence.Stats to APIStats, empty values are omitted
func toAPIStats(st persistence.Stats) APIStats {
	res := APIStats{Total: st.Total, Today: st.Today}
	if st.TopGoal != "" {
		res.TopGoal = st.TopGoal
		res.TopGoalLabel = enums.GoalLabel(st.TopGoal)
	}
	if !st.LatestAt.IsZero() {
		res.LatestTimestamp = formatTime(st.LatestAt)
	}
	return res
}

// handleHealth reports service liveness
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": formatTime(s.now())})
}

// handleSchema returns JSON schema of the submission payload
func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, jsonschema.Reflect(&request.Submit{}))
}

// handleSubmit accepts a new application
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req request.Submit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.rejected.Inc()
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := s.records.Submit(r.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			s.metrics.rejected.Inc()
			s.writeJSON(w, http.StatusBadRequest, APIValidationError{Error: "Missing required fields", Fields: verr.Fields})
			return
		}
		s.storageError(w, "Failed to save application", err)
		return
	}

	s.metrics.submitted.Inc()
	s.writeJSON(w, http.StatusCreated, APISubmitResponse{
		ID:        rec.ID,
		Message:   "Application submitted successfully",
		Timestamp: formatTime(rec.Timestamp),
	})
}

// handleList returns all applications, newest first
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.List(r.Context())
	if err != nil {
		s.storageError(w, "Failed to fetch applications", err)
		return
	}

	resp := make([]APIApplication, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, toAPIApplication(rec))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleGet returns a single application
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "Not found")
			return
		}
		s.storageError(w, "Failed to fetch applications", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIApplication(rec))
}

// handleDelete removes a single application
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.records.Remove(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "Not found")
			return
		}
		s.storageError(w, "Failed to delete", err)
		return
	}

	s.metrics.deleted.Inc()
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}

// handleDeleteAll removes every application
func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.records.RemoveAll(r.Context())
	if err != nil {
		s.storageError(w, "Failed to clear", err)
		return
	}

	s.metrics.deleted.Add(float64(n))
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "All deleted", "deleted": n})
}

// handleStats returns aggregated statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.records.Stats(r.Context())
	if err != nil {
		s.storageError(w, "Failed to compute stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIStats(st))
}

// pathID parses {id} path value, writes 400 on failure
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "invalid application ID")
		return 0, false
	}
	return id, true
}

// storageError logs details and responds with generic message only
func (s *Server) storageError(w http.ResponseWriter, message string, err error) {
	s.metrics.storageErrors.Inc()
	log.Printf("[ERROR] %s: %v", message, err)
	s.writeJSONError(w, http.StatusInternalServerError, message)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}
