package models

// Custody ledger action codes.
const (
	ActionCaseOpened       = "case.opened"
	ActionCaseClosed       = "case.closed"
	ActionEvidenceIngested = "evidence.ingested"
	ActionJobFinalized     = "job.finalized"
)

// CustodyEntry is one link in a case's hash chain. Field order is fixed
// so json.Marshal output is deterministic and the stored digest can be
// recomputed from the serialized form.
type CustodyEntry struct {
	CaseID        string `json:"case_id"`
	Seq           int64  `json:"seq"`
	PrevDigest    string `json:"prev_digest"`
	Actor         string `json:"actor"`
	Action        string `json:"action"`
	Timestamp     string `json:"ts"`
	PayloadDigest string `json:"payload_digest"`
	Digest        string `json:"digest"`
}

// VerificationResult reports a ledger chain check. Valid is true when
// every entry's digest and previous-digest link recompute exactly;
// otherwise BrokenSeq is the first sequence number at which the chain
// diverges.
type VerificationResult struct {
	Valid     bool  `json:"valid"`
	Entries   int64 `json:"entries"`
	BrokenSeq int64 `json:"broken_seq,omitempty"`
}
