package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/CTAG07/chainclass/pkg/chain"
	"github.com/CTAG07/chainclass/pkg/store"
	"github.com/CTAG07/chainclass/pkg/tokenize"
	"github.com/google/uuid"
)

type contextKey string

const contextKeyRequestID = contextKey("request_id")

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

type PruneRequest struct {
	MinFreq int64 `json:"minFreq"`
}

type PruneResponse struct {
	Removed int64 `json:"removed"`
}

// ClassifyResponse is returned by /api/classify.
type ClassifyResponse struct {
	Label     string                  `json:"label"`
	Posterior chain.Posterior[string] `json:"posterior"`
	Sequences int                     `json:"sequences"`
	Symbols   int                     `json:"symbols"`
	Stable    bool                    `json:"stable"`
}

// registerRoutes sets up the routing for all /api endpoints.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/labels", requireScope(ScopeModelRead, s.handleLabels))
	mux.HandleFunc("/api/labels/", requireScope(ScopeModelWrite, s.handleLabelByName))
	mux.HandleFunc("/api/classify", requireScope(ScopeModelRead, s.handleClassify))
	mux.HandleFunc("/api/export", requireScope(ScopeModelRead, s.handleExport))
	mux.HandleFunc("/api/import", requireScope(ScopeModelWrite, s.handleImport))
	mux.HandleFunc("/api/stats", requireScope(ScopeModelRead, s.handleStats))
	mux.HandleFunc("/api/version", s.handleVersion)

	mux.HandleFunc("/api/auth/me", s.handleCheckMe)
	mux.HandleFunc("/api/auth/keys", requireScope(ScopeAuthManage, s.handleKeys))
	mux.HandleFunc("/api/auth/keys/", requireScope(ScopeAuthManage, s.handleKeyByID))
}

// withRequestID tags every request with an ID, reusing the caller's
// X-Request-ID when present.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		s.logger.Debug("Request received", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(contextKeyRequestID).(string)
	return id
}

// handleLabels lists stored labels.
func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	labels, err := s.store.Labels(r.Context())
	if err != nil {
		s.logger.Error("Failed to list labels", "request_id", requestID(r), "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve labels: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, labels)
}

// handleLabelByName routes actions for a specific label: train, prune, delete.
func (s *Server) handleLabelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/labels/")
	parts := strings.Split(path, "/")
	name := parts[0]

	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Label name not specified")
		return
	}

	if len(parts) == 1 { // Path is just /api/labels/{name}
		if r.Method != http.MethodDelete {
			w.Header().Set("Allow", "DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		err := s.mutate(r.Context(), func() error {
			return s.store.RemoveLabel(r.Context(), name)
		})
		if err != nil {
			s.respondWithStoreError(w, r, "Failed to remove label", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch parts[1] {
	case "train":
		var result store.TrainResult
		body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
		err := s.mutate(r.Context(), func() error {
			var err error
			result, err = s.store.Train(r.Context(), name, body)
			return err
		})
		if err != nil {
			s.respondWithStoreError(w, r, "Training failed", err)
			return
		}
		respondWithJSON(w, http.StatusAccepted, result)

	case "prune":
		var req PruneRequest
		body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		var removed int64
		err := s.mutate(r.Context(), func() error {
			var err error
			removed, err = s.store.Prune(r.Context(), name, req.MinFreq)
			return err
		})
		if err != nil {
			s.respondWithStoreError(w, r, "Pruning failed", err)
			return
		}
		respondWithJSON(w, http.StatusOK, PruneResponse{Removed: removed})

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleClassify scores the request body against every trained label.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stable := r.URL.Query().Get("stable") == "true"

	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	seqs, err := tokenize.Sequences(s.store.Tokenizer(), body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Could not read input: %v", err))
		return
	}

	post, err := s.posterior(seqs, stable)
	if err != nil {
		if errors.Is(err, chain.ErrNoLabels) || errors.Is(err, chain.ErrDegeneratePosterior) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("Classification failed", "request_id", requestID(r), "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Classification failed: %v", err))
		return
	}
	label, _ := post.Best()
	s.logger.Info("Classified input",
		"request_id", requestID(r),
		"label", label,
		"sequences", len(seqs),
		"symbols", countSymbols(seqs),
		"stable", stable)
	respondWithJSON(w, http.StatusOK, newClassifyResponse(label, post, seqs, stable))
}

// handleExport streams every stored label as JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var buf bytes.Buffer
	if err := s.store.Export(r.Context(), &buf); err != nil {
		s.logger.Error("Failed to export model", "request_id", requestID(r), "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="chainclass.json"`)
	_, _ = buf.WriteTo(w)
}

// handleImport merges an uploaded JSON model into the store.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	err := s.mutate(r.Context(), func() error {
		return s.store.Import(r.Context(), body)
	})
	if err != nil {
		s.logger.Error("Failed to import model", "request_id", requestID(r), "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleStats returns database statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to get stats", "request_id", requestID(r), "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleVersion returns the application's build information.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{Version: Version, Commit: Commit, BuildDate: BuildDate})
}

func (s *Server) respondWithStoreError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrLabelNotFound):
		respondWithError(w, http.StatusNotFound, "Label not found")
	case errors.Is(err, store.ErrReservedSymbol):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(msg, "request_id", requestID(r), "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
	}
}

func newClassifyResponse(label string, post chain.Posterior[string], seqs [][]string, stable bool) ClassifyResponse {
	return ClassifyResponse{
		Label:     label,
		Posterior: post,
		Sequences: len(seqs),
		Symbols:   countSymbols(seqs),
		Stable:    stable,
	}
}

func countSymbols(seqs [][]string) int {
	n := 0
	for _, seq := range seqs {
		n += len(seq)
	}
	return n
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
