package server

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// handleArtifact streams one artifact or evidence file. The relative
// path from the query string goes through ResolveArtifactPath and no
// other mapping; traversal attempts surface as path_outside_vault.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.artifactLimiter, w, r, "artifact") {
		return
	}
	defer s.releaseLimiter(s.artifactLimiter)

	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	rel := strings.TrimSpace(r.URL.Query().Get("path"))
	if rel == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("path query parameter is required"), ErrCodeInvalidQuery))
		return
	}

	if _, err := s.store.GetCase(r.Context(), caseID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	abs, err := s.vault.ResolveArtifactPath(caseID, rel)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("no such artifact: %s", rel), ErrCodeCaseNotFound))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, abs)
}
