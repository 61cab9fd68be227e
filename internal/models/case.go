package models

import (
	"fmt"
	"strings"
	"time"
)

// CaseStatus defines allowed lifecycle states for cases.
type CaseStatus string

const (
	CaseOpen   CaseStatus = "open"
	CaseClosed CaseStatus = "closed"
)

// Case is the top-level unit of investigation. It owns evidence items,
// jobs, and exactly one chain-of-custody ledger.
type Case struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    CaseStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// CaseStats summarizes a deployment for the stats overview endpoint.
type CaseStats struct {
	Cases       int `json:"cases"`
	Evidence    int `json:"evidence"`
	JobsRunning int `json:"jobs_running"`
}

func ParseCaseStatus(raw string) (CaseStatus, error) {
	value := CaseStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case CaseOpen, CaseClosed:
		return value, nil
	case "":
		return "", fmt.Errorf("case status is required")
	default:
		return "", fmt.Errorf("invalid case status: %s", value)
	}
}
