package models

import "time"

// Evidence is an immutable, hash-verified copy of source material.
// Source records where the bytes came from and is never mutated;
// VaultPath is relative to the case's vault root. The recorded digests
// must match the vault copy's bytes for the lifetime of the case.
type Evidence struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	Source     string    `json:"source"`
	VaultPath  string    `json:"vault_path"`
	SizeBytes  int64     `json:"size_bytes"`
	MD5        string    `json:"md5"`
	SHA256     string    `json:"sha256"`
	IngestedAt time.Time `json:"ingested_at"`
}
