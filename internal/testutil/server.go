// Package testutil provides test helpers that stand in for the MetaDefender API.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockResponse defines a canned response for the mock server.
type MockResponse struct {
	StatusCode int
	Body       interface{}
}

// NewMockServer creates an httptest.Server with the given handlers.
// Keys are http.ServeMux patterns, e.g. "GET /hash/{hash}".
func NewMockServer(handlers map[string]http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

// JSONHandler returns an http.HandlerFunc that responds with the given status code and JSON body.
// A nil body writes no content.
func JSONHandler(statusCode int, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statusCode, body)
	}
}

// RequireAPIKey wraps next and answers 401 unless the apikey header equals key.
func RequireAPIKey(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != key {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse(401006, "Invalid API key"))
			return
		}
		next(w, r)
	}
}

// Upload is a file received by an UploadHandler.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// UploadHandler returns a handler for POST /file. checkFunc receives the raw
// body and the filename header and returns the response to send.
func UploadHandler(checkFunc func(u Upload) (int, interface{})) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse(400000, "failed to read body"))
			return
		}
		statusCode, body := checkFunc(Upload{
			Data:        data,
			Filename:    r.Header.Get("filename"),
			ContentType: r.Header.Get("Content-Type"),
		})
		writeJSON(w, statusCode, body)
	}
}

// Sequence serves scripted responses in order, repeating the last one once
// the script is exhausted. It is safe for concurrent use.
type Sequence struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     int
	paths     []string
}

// NewSequence returns a Sequence serving responses.
func NewSequence(responses ...MockResponse) *Sequence {
	return &Sequence{responses: responses}
}

// Handler returns the http.HandlerFunc serving the script.
func (s *Sequence) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		i := s.calls
		if i >= len(s.responses) {
			i = len(s.responses) - 1
		}
		s.calls++
		s.paths = append(s.paths, r.URL.Path)
		resp := s.responses[i]
		s.mu.Unlock()

		writeJSON(w, resp.StatusCode, resp.Body)
	}
}

// Calls returns the number of requests served.
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Paths returns the request paths served, in order.
func (s *Sequence) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// SubmitResponse returns a standard upload response.
func SubmitResponse(dataID string) map[string]interface{} {
	return map[string]interface{}{
		"data_id":        dataID,
		"status":         "inqueue",
		"in_queue":       3,
		"queue_priority": "normal",
	}
}

// ReportResponse returns an analysis response with two clean engines.
func ReportResponse(dataID string, progress int) map[string]interface{} {
	return map[string]interface{}{
		"data_id": dataID,
		"scan_results": map[string]interface{}{
			"scan_details": map[string]interface{}{
				"ClamAV": map[string]interface{}{
					"threat_found":  "",
					"scan_result_i": 0,
					"def_time":      "2026-10-16T00:00:00.000Z",
				},
				"Ahnlab": map[string]interface{}{
					"threat_found":  "",
					"scan_result_i": 0,
					"def_time":      "2026-10-15T00:00:00.000Z",
				},
			},
			"progress_percentage": progress,
			"scan_all_result_a":   "No Threat Detected",
			"scan_all_result_i":   0,
			"total_avs":           2,
			"total_detected_avs":  0,
		},
	}
}

// InfectedReportResponse returns a finished analysis with one detection.
func InfectedReportResponse(dataID string) map[string]interface{} {
	return map[string]interface{}{
		"data_id": dataID,
		"scan_results": map[string]interface{}{
			"scan_details": map[string]interface{}{
				"ClamAV": map[string]interface{}{
					"threat_found":  "Eicar-Test-Signature",
					"scan_result_i": 1,
					"def_time":      "2026-10-16T00:00:00.000Z",
				},
			},
			"progress_percentage": 100,
			"scan_all_result_a":   "Infected",
			"scan_all_result_i":   1,
			"total_avs":           1,
			"total_detected_avs":  1,
		},
	}
}

// ErrorResponse returns a body in the service's error format.
func ErrorResponse(code int, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":     code,
			"messages": []string{message},
		},
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	if body == nil {
		w.WriteHeader(statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}
