package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Cases collection.
	mux.HandleFunc("POST /v1/cases", s.handleCreateCase)
	mux.HandleFunc("GET /v1/cases", s.handleListCases)
	mux.HandleFunc("GET /v1/cases/stats/overview", s.handleStatsOverview)

	// Single case.
	mux.HandleFunc("GET /v1/cases/{id}", s.handleGetCase)
	mux.HandleFunc("POST /v1/cases/{id}/close", s.handleCloseCase)

	// Evidence.
	mux.HandleFunc("POST /v1/cases/{id}/evidence", s.handleIngestEvidence)
	mux.HandleFunc("GET /v1/cases/{id}/evidence", s.handleListEvidence)

	// Jobs.
	mux.HandleFunc("POST /v1/cases/{id}/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /v1/cases/{id}/jobs", s.handleListJobs)
	mux.HandleFunc("GET /v1/cases/{id}/jobs/{seq}", s.handleGetJob)

	// Custody ledger.
	mux.HandleFunc("GET /v1/cases/{id}/custody", s.handleCustody)
	mux.HandleFunc("GET /v1/cases/{id}/custody/verify", s.handleCustodyVerify)

	// Artifacts.
	mux.HandleFunc("GET /v1/cases/{id}/artifacts", s.handleArtifact)

	// Modules.
	mux.HandleFunc("GET /v1/modules", s.handleListModules)

	return s.withRequestLogging(s.withAuth(mux))
}
