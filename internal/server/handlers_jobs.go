package server

import (
	"errors"
	"net/http"

	"eviforge/internal/api"
	"eviforge/internal/store"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	var req api.SubmitJobRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	job, err := s.dispatcher.Submit(r.Context(), caseID, req.EvidenceID, req.Module)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// 202: the job exists and is readable, but execution is async.
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if _, err := s.store.GetCase(r.Context(), caseID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	jobs, err := s.store.ListJobsByCase(r.Context(), caseID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.pathCaseIDOrBadRequest(w, r)
	if !ok {
		return
	}
	seq, ok := s.pathSeqOrBadRequest(w, r)
	if !ok {
		return
	}

	job, err := s.store.GetJob(r.Context(), caseID, seq)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(err, ErrCodeJobNotFound))
			return
		}
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
