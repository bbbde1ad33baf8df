package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/datakita/querybridge/errs"
)

const uploadFormField = "file"

// handleUpload ingests one document. Both multipart form uploads and raw
// bodies are accepted; the filename comes from the form part or the
// X-Filename header.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	raw, filename, err := readUpload(w, r, s.maxUploadBytes())
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.coordinator.Process(r.Context(), raw, filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) maxUploadBytes() int64 {
	if s.cfg.Upload.MaxBytes > 0 {
		return s.cfg.Upload.MaxBytes
	}
	return 20 << 20
}

func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile(uploadFormField)
		if err != nil {
			return nil, "", errs.Wrap(errs.KindValidation, err, "missing %q form field", uploadFormField)
		}
		defer file.Close()
		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errs.Wrap(errs.KindValidation, err, "read upload")
		}
		return raw, header.Filename, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", errs.Wrap(errs.KindValidation, err, "read upload body")
	}
	return raw, r.Header.Get("X-Filename"), nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errs.New(errs.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	docs, err := s.coordinator.ListDocuments(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")
	if err := s.coordinator.DeleteDocument(r.Context(), fp); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": fp})
}

type questionRequest struct {
	Question    string `json:"question"`
	TopK        int    `json:"top_k,omitempty"`
	AutoApprove bool   `json:"auto_approve,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.KindValidation, err, "decode request body")
	}
	return nil
}

func (s *Server) handleQueryDocuments(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Question == "" {
		writeError(w, errs.New(errs.KindValidation, "question is required"))
		return
	}

	answer, err := s.orch.AnswerDocuments(r.Context(), req.Question, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleGenerateSQL(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Question == "" {
		writeError(w, errs.New(errs.KindValidation, "question is required"))
		return
	}

	result, err := s.orch.GenerateTicket(r.Context(), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type executeRequest struct {
	QueryID  string `json:"query_id"`
	Approved *bool  `json:"approved"`
}

type executeResponse struct {
	Ticket any              `json:"ticket"`
	Rows   []map[string]any `json:"rows,omitempty"`
}

func (s *Server) handleExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.QueryID == "" {
		writeError(w, errs.New(errs.KindValidation, "query_id is required"))
		return
	}
	if req.Approved == nil {
		writeError(w, errs.New(errs.KindValidation, "approved is required"))
		return
	}

	ticket, rows, err := s.workflow.Execute(r.Context(), req.QueryID, *req.Approved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Ticket: ticket, Rows: rows})
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.workflow.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Question == "" {
		writeError(w, errs.New(errs.KindValidation, "question is required"))
		return
	}

	result, err := s.orch.Answer(r.Context(), req.Question, req.TopK, req.AutoApprove)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
