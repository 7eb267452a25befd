package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obro79/Tower/internal/ingest"
	"github.com/obro79/Tower/internal/lifecycle"
	"github.com/obro79/Tower/internal/models"
	"github.com/obro79/Tower/internal/storage"
)

// maxUploadBytes bounds multipart uploads held in memory before spilling to disk.
const maxUploadBytes = 32 << 20

type ingestTextRequest struct {
	FileID   int64  `json:"file_id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileID <= 0 {
		s.respondError(w, http.StatusBadRequest, "file_id must be positive")
		return
	}

	s.logger.Debug("ingest request",
		zap.Int64("file_id", req.FileID), zap.String("filename", req.Filename))
	if err := s.ingestor.IngestText(r.Context(), req.FileID, req.Filename, req.Text); err != nil {
		s.respondIngestError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"file_id": req.FileID,
		"status":  "indexed",
	})
}

func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	fileID, err := strconv.ParseInt(r.FormValue("file_id"), 10, 64)
	if err != nil || fileID <= 0 {
		s.respondError(w, http.StatusBadRequest, "file_id must be a positive integer")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	// Stage the upload so extraction can dispatch on the filename extension.
	tmp, err := os.CreateTemp("", "tower-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		s.respondError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	tmp.Close()

	s.logger.Debug("file upload request",
		zap.Int64("file_id", fileID), zap.String("filename", header.Filename))
	if err := s.ingestor.IngestFile(r.Context(), fileID, header.Filename, tmp.Name()); err != nil {
		s.respondIngestError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"file_id":  fileID,
		"filename": header.Filename,
		"status":   "indexed",
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID, err := strconv.ParseInt(chi.URLParam(r, "fileID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	s.logger.Debug("delete request", zap.Int64("file_id", fileID))
	removed, err := s.ingestor.DeleteFile(r.Context(), fileID)
	if err != nil {
		s.logger.Error("deletion failed", zap.Int64("file_id", fileID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"file_id": fileID,
		"status":  "deleted",
	})
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SemanticQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.logger.Debug("semantic search request",
		zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	response, err := s.aggregator.Search(r.Context(), &query)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrIndexNotReady):
			s.respondError(w, http.StatusServiceUnavailable, "index is rebuilding, retry shortly")
		case query.Query == "":
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("semantic search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit := s.config.Search.KeywordLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	results, err := s.keyword.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("keyword search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
		"query":   query,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	filenames, err := s.keyword.Count()
	if err != nil {
		s.logger.Error("keyword count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"records":           stats.Records,
		"indexed_vectors":   stats.Indexed,
		"dimension":         stats.Dimension,
		"indexed_filenames": filenames,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondIngestError maps pipeline errors to HTTP statuses.
func (s *Server) respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrDuplicateRecord):
		s.respondError(w, http.StatusConflict, "file_id already indexed")
	case errors.Is(err, storage.ErrDimensionMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrEmptyContent):
		s.respondError(w, http.StatusBadRequest, "no extractable text")
	default:
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
