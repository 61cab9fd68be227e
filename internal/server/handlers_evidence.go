package server

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"eviforge/internal/api"
)

// Evidence uploads are streamed; this bounds a single upload, not the
// multipart parser's in-memory buffer.
const maxUploadBytes = 4 << 30 // 4 GiB

func (s *Server) handleIngestEvidence(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.ingestLimiter, w, r, "ingest") {
		return
	}
	defer s.releaseLimiter(s.ingestLimiter)

	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("multipart body required: %w", err)))
		return
	}

	// Fields may precede the file part; the file is streamed straight
	// into the vault without buffering to disk first.
	source := ""
	for {
		part, err := reader.NextPart()
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("missing file part")))
			return
		}

		if part.FormName() == "source" {
			raw, readErr := io.ReadAll(io.LimitReader(part, 4096))
			if readErr != nil {
				s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("read source field: %w", readErr)))
				return
			}
			source = strings.TrimSpace(string(raw))
			continue
		}
		if part.FormName() != "file" {
			continue
		}

		name := path.Base(part.FileName())
		if name == "" || name == "." || name == "/" {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("file part needs a filename")))
			return
		}
		if source == "" {
			source = part.FileName()
		}

		ev, ingestErr := s.service.Ingest(r.Context(), s.requestActor(r), caseID, name, source, part)
		if ingestErr != nil {
			s.writeDomainError(w, r, ingestErr)
			return
		}
		s.writeJSON(w, http.StatusCreated, ev)
		return
	}
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if _, err := s.store.GetCase(r.Context(), caseID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	items, err := s.store.ListEvidenceByCase(r.Context(), caseID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EvidenceListResponse{Evidence: items})
}
