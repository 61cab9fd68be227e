// Package api holds the wire types of the HTTP surface.
package api

import (
	"eviforge/internal/cases"
	"eviforge/internal/models"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// CreateCaseRequest opens a new case.
type CreateCaseRequest struct {
	Name string `json:"name"`
}

// SubmitJobRequest asks for a module run against one evidence item.
type SubmitJobRequest struct {
	EvidenceID string `json:"evidence_id"`
	Module     string `json:"module"`
}

// CaseListResponse wraps the case collection.
type CaseListResponse struct {
	Cases []models.Case `json:"cases"`
}

// EvidenceListResponse wraps a case's evidence records.
type EvidenceListResponse struct {
	Evidence []models.Evidence `json:"evidence"`
}

// JobListResponse wraps a case's jobs.
type JobListResponse struct {
	Jobs []models.Job `json:"jobs"`
}

// CustodyResponse wraps a case's ledger entries in chain order.
type CustodyResponse struct {
	Entries []models.CustodyEntry `json:"entries"`
}

// VerifyResponse reports a full case verification.
type VerifyResponse = cases.Verification

// ModuleListResponse wraps the registry listing.
type ModuleListResponse struct {
	Modules []ModuleDescriptor `json:"modules"`
}

// ModuleDescriptor describes one registered module.
type ModuleDescriptor struct {
	Name      string `json:"name"`
	Tool      string `json:"tool,omitempty"`
	Available bool   `json:"available"`
}
