package server

import (
	"net/http"

	"eviforge/internal/api"
)

func (s *Server) handleCustody(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if _, err := s.store.GetCase(r.Context(), caseID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	entries, err := s.ledger.Read(caseID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CustodyResponse{Entries: entries})
}

func (s *Server) handleCustodyVerify(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	report, err := s.service.Verify(r.Context(), caseID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
