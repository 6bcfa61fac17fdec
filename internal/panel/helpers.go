package panel

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/moogar0880/problems"

	"github.com/rendis/macta/pkg/schema"
)

const problemMediaType = "application/problem+json"

// maxBodyBytes bounds request bodies; BPMN documents are the largest payload.
const maxBodyBytes = 8 << 20

// issueProblem is a problem document carrying validation issues.
type issueProblem struct {
	*problems.DefaultProblem
	Errors   []schema.ValidationIssue `json:"errors,omitempty"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeProblem writes an RFC 7807 problem document.
func writeProblem(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", problemMediaType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a problem document with the given status and detail.
func writeError(w http.ResponseWriter, r *http.Request, status int, problemType, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(problemType).
		WithDetail(detail)
	writeProblem(w, status, problem)
}

// writeIssues writes a problem document listing validation issues.
func writeIssues(w http.ResponseWriter, r *http.Request, status int, problemType string, res *schema.ValidationResult) {
	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(problemType).
		WithDetail(fmt.Sprintf("%d validation error(s)", len(res.Errors)))
	writeProblem(w, status, issueProblem{DefaultProblem: problem, Errors: res.Errors, Warnings: res.Warnings})
}

// statusFor maps an error code to an HTTP status. Configuration and model
// errors are 422 so a client can tell them apart from a run that completed
// with zero cases.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeInvalidConfig, schema.ErrCodeInvalidXML, schema.ErrCodeInvalidGraph:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError writes the problem document matching err.
func (s *PanelServer) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := schema.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.deps.Logger.ErrorContext(r.Context(), "api request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		problem := problems.NewStatusProblem(status).
			WithInstance(r.URL.Path).
			WithType("internal_error").
			WithError(err)
		writeProblem(w, status, problem)
		return
	}

	problemType := "error"
	if code != "" {
		problemType = code
	}
	writeError(w, r, status, problemType, err.Error())
}

// readBody reads a bounded request body.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
