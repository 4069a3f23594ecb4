// Package review serves captured screenshots and run outcomes over HTTP
// so failures can be inspected in a browser.
package review

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorilla/mux"

	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/report"
	"github.com/hairizuan-noorazman/visreg/storage"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// FilesResponse represents a screenshot listing for one bucket.
type FilesResponse struct {
	Kind  storage.Kind `json:"kind"`
	Files []string     `json:"files"`
	Total int          `json:"total"`
}

// Server serves run artifacts for review. It reads screenshots straight
// from the store and the outcome report from the local output directory,
// so it can be pointed at the results of any finished run.
type Server struct {
	store     storage.Store
	outputDir string
	logger    logger.Logger
}

// NewServer creates a review server over the given store. outputDir is
// the directory test runs write their outcome report into.
func NewServer(store storage.Store, outputDir string, log logger.Logger) *Server {
	return &Server{
		store:     store,
		outputDir: outputDir,
		logger:    log,
	}
}

// Router builds the HTTP router for the review server.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(NewLoggingMiddleware(s.logger).Handler)

	router.HandleFunc("/health", s.Health).Methods("GET")
	router.HandleFunc("/api/outcome", s.Outcome).Methods("GET")
	router.HandleFunc("/api/files/{kind}", s.ListFiles).Methods("GET")
	router.HandleFunc("/images/{kind}/{filename}", s.Image).Methods("GET")

	return router
}

// Health handles health check requests.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// Outcome serves the most recent run outcome report.
func (s *Server) Outcome(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.outputDir, report.OutcomeFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			respondError(w, http.StatusNotFound, "no run outcome recorded yet")
			return
		}
		s.logger.Error(r.Context(), "failed to read outcome report", map[string]interface{}{
			"error": err.Error(),
			"path":  path,
		})
		respondError(w, http.StatusInternalServerError, "failed to read outcome report")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListFiles handles listing the screenshots stored under one bucket.
func (s *Server) ListFiles(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindOrRespond(w, r)
	if !ok {
		return
	}

	files, err := s.store.List(r.Context(), kind)
	if err != nil {
		s.logger.Error(r.Context(), "failed to list screenshots", map[string]interface{}{
			"error": err.Error(),
			"kind":  string(kind),
		})
		respondError(w, http.StatusInternalServerError, "failed to list screenshots")
		return
	}
	sort.Strings(files)

	respondJSON(w, http.StatusOK, FilesResponse{
		Kind:  kind,
		Files: files,
		Total: len(files),
	})
}

// Image serves one stored screenshot as PNG bytes.
func (s *Server) Image(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindOrRespond(w, r)
	if !ok {
		return
	}
	filename := mux.Vars(r)["filename"]

	reader, err := s.store.Read(r.Context(), kind, filename)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			respondError(w, http.StatusNotFound, "screenshot not found")
			return
		}
		s.logger.Error(r.Context(), "failed to read screenshot", map[string]interface{}{
			"error":    err.Error(),
			"kind":     string(kind),
			"filename": filename,
		})
		respondError(w, http.StatusInternalServerError, "failed to read screenshot")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, reader)
}

// parseKindOrRespond parses the bucket kind from path parameters and
// responds with an error if it is not a known bucket.
func parseKindOrRespond(w http.ResponseWriter, r *http.Request) (storage.Kind, bool) {
	kind := storage.Kind(mux.Vars(r)["kind"])
	if !kind.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid kind: must be one of base, current, diff")
		return "", false
	}
	return kind, true
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
