package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/metrics"
)

const csvField = "csvFile"

type submitURLRequest struct {
	URL string `json:"url"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func (s *Server) submitURL(w http.ResponseWriter, r *http.Request) {
	var req submitURLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, err := s.indexer.SubmitSingle(r.Context(), req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "requestId": id})
}

// uploadCSV accepts a CSV of URLs. ?start=false records the batch as pending
// for a later start-indexing call.
func (s *Server) uploadCSV(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r, csvField)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	urls, err := indexing.ReadURLList(bytes.NewReader(data))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deferStart := false
	if raw := r.URL.Query().Get("start"); raw != "" {
		start, perr := strconv.ParseBool(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "start must be true or false")
			return
		}
		deferStart = !start
	}

	submit := s.indexer.SubmitBatch
	if deferStart {
		submit = s.indexer.SubmitBatchDeferred
	}
	id, total, err := submit(r.Context(), urls)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.ObserveUpload("csv", len(data))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":   true,
		"requestId": id,
		"totalUrls": total,
		"started":   !deferStart,
	})
}

func (s *Server) startIndexing(w http.ResponseWriter, r *http.Request) {
	started, err := s.indexer.StartIndexing(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "started": started})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": job})
}

func (s *Server) runnerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.indexer.Snapshot())
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jobs, total, err := s.jobs.ListJobs(r.Context(), indexing.Page{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []indexing.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": jobs,
		"pagination": pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
		},
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) deleteRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.DeleteJob(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("request %s deleted", id)})
}

func (s *Server) deleteAllRequests(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobs.DeleteAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "all requests deleted", "deleted": n})
}

func parsePage(r *http.Request) (int, int, error) {
	page, limit := 1, defaultPageLimit
	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, fmt.Errorf("%w: page must be a positive integer", indexing.ErrValidation)
		}
		page = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, fmt.Errorf("%w: limit must be a positive integer", indexing.ErrValidation)
		}
		limit = min(v, maxPageLimit)
	}
	return page, limit, nil
}

// readUpload returns the content of one multipart file field, bounded by the
// configured upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.UploadMaxBytes)
	if err := r.ParseMultipartForm(s.opts.UploadMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: upload exceeds %d bytes", indexing.ErrValidation, s.opts.UploadMaxBytes)
		}
		return nil, fmt.Errorf("%w: expected multipart form: %v", indexing.ErrValidation, err)
	}
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field %q", indexing.ErrValidation, field)
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}
