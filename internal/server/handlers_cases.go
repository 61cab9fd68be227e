package server

import (
	"errors"
	"net/http"

	"eviforge/internal/api"
	"eviforge/internal/cases"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCaseRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	c, err := s.service.CreateCase(r.Context(), s.requestActor(r), req.Name)
	if err != nil {
		if errors.Is(err, cases.ErrNameRequired) {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeMissingRequired))
			return
		}
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListCases(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CaseListResponse{Cases: items})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	c, err := s.store.GetCase(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCloseCase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	c, err := s.service.CloseCase(r.Context(), s.requestActor(r), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	descriptors := s.registry.List()
	out := make([]api.ModuleDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, api.ModuleDescriptor{Name: d.Name, Tool: d.Tool, Available: d.Available})
	}
	s.writeJSON(w, http.StatusOK, api.ModuleListResponse{Modules: out})
}
