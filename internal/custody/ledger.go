// Package custody maintains the per-case chain-of-custody ledger: an
// append-only JSONL file whose entries are hash-chained so any
// mutation, insertion, or deletion is detectable by recomputation.
package custody

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"eviforge/internal/models"
)

// SchemeVersion identifies the digest scheme. The entry digest is
// SHA-256 over the newline-joined canonical fields; the scheme string
// is the first field so the format stays independently reproducible.
const SchemeVersion = "coc-v1"

// genesisSeed is the fixed previous-digest value of the first entry.
var genesisSeed = func() string {
	sum := sha256.Sum256([]byte("eviforge-custody-genesis"))
	return hex.EncodeToString(sum[:])
}()

var (
	// ErrCaseHalted is returned once a case's ledger append has failed.
	// The chain's integrity guarantee depends on no gaps, so further
	// appends (and therefore job finalizations) for the case are
	// refused until Verify confirms the ledger healthy.
	ErrCaseHalted = errors.New("custody: case ledger halted")
	// ErrMalformed is returned when a ledger line cannot be decoded.
	ErrMalformed = errors.New("custody: malformed ledger entry")
)

// PathFunc maps a case identifier to its ledger file location.
type PathFunc func(caseID string) string

type tail struct {
	seq    int64
	digest string
}

// Ledger serializes appends per case and tracks halt state. A single
// Ledger instance is shared by every component that writes custody
// entries within a process; appends are additionally guarded by an
// exclusive file lock, so several processes sharing one vault (a serve
// process and a queue worker, say) extend the same chain safely.
type Ledger struct {
	pathFor PathFunc

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	halted map[string]error
}

// New creates a ledger writing through pathFor.
func New(pathFor PathFunc) *Ledger {
	return &Ledger{
		pathFor: pathFor,
		locks:   make(map[string]*sync.Mutex),
		halted:  make(map[string]error),
	}
}

func (l *Ledger) caseLock(caseID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[caseID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[caseID] = lock
	}
	return lock
}

// Halted returns the halt cause for a case, or nil.
func (l *Ledger) Halted(caseID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted[caseID]
}

// Append writes one entry for the case and flushes it to stable
// storage before returning. Concurrent appends for the same case are
// serialized, within a process and across processes; sequence numbers
// are gapless and strictly increasing.
// The payload must be a struct (or other deterministically marshaling
// value); its canonical JSON is digested, not stored.
func (l *Ledger) Append(ctx context.Context, caseID, actor, action string, payload any) (*models.CustodyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(caseID) == "" {
		return nil, fmt.Errorf("case id is required")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("actor is required")
	}
	if strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("action is required")
	}

	lock := l.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	if cause := l.Halted(caseID); cause != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaseHalted, cause)
	}

	payloadDigest, err := digestPayload(payload)
	if err != nil {
		l.halt(caseID, err)
		return nil, fmt.Errorf("%w: %v", ErrCaseHalted, err)
	}

	// Any failure past validation halts the case: an entry that should
	// exist but does not is a gap, and the chain must not grow over one.
	entry, err := l.appendLocked(caseID, actor, action, payloadDigest)
	if err != nil {
		l.halt(caseID, err)
		return nil, fmt.Errorf("%w: %v", ErrCaseHalted, err)
	}
	return entry, nil
}

// appendLocked holds an exclusive flock on the ledger file for the
// whole read-tail-then-write cycle. The tail is re-read from disk
// every time, never cached: another process sharing the vault may have
// appended since this one last looked.
func (l *Ledger) appendLocked(caseID, actor, action, payloadDigest string) (*models.CustodyEntry, error) {
	path := l.pathFor(caseID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	entries, err := decodeEntries(f)
	if err != nil {
		return nil, err
	}
	prev := tail{seq: 0, digest: genesisSeed}
	if len(entries) > 0 {
		final := entries[len(entries)-1]
		prev = tail{seq: final.Seq, digest: final.Digest}
	}

	entry := models.CustodyEntry{
		CaseID:        caseID,
		Seq:           prev.seq + 1,
		PrevDigest:    prev.digest,
		Actor:         actor,
		Action:        action,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		PayloadDigest: payloadDigest,
	}
	entry.Digest = entryDigest(entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, err
	}
	// Flush before releasing the lock so a reported-successful append
	// survives a crash.
	if err := f.Sync(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (l *Ledger) halt(caseID string, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.halted[caseID] = cause
}

func (l *Ledger) clearHalt(caseID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.halted, caseID)
}

// Read returns a case's entries in sequence order.
func (l *Ledger) Read(caseID string) ([]models.CustodyEntry, error) {
	return ReadFile(l.pathFor(caseID))
}

// Verify recomputes the case's chain and, when valid, clears any halt
// so finalization may resume.
func (l *Ledger) Verify(caseID string) (models.VerificationResult, error) {
	lock := l.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	result, err := VerifyFile(l.pathFor(caseID))
	if err != nil {
		return result, err
	}
	if result.Valid {
		l.clearHalt(caseID)
	}
	return result, nil
}

// ReadFile decodes a ledger file. A missing file is an empty ledger.
func ReadFile(path string) ([]models.CustodyEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.CustodyEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return decodeEntries(f)
}

func decodeEntries(r io.Reader) ([]models.CustodyEntry, error) {
	entries := []models.CustodyEntry{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry models.CustodyEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// VerifyFile recomputes every entry digest and previous-digest link in
// a ledger file. It works against any copy of the file, independent of
// the live job store, so exported ledgers can be checked offline.
func VerifyFile(path string) (models.VerificationResult, error) {
	entries, err := ReadFile(path)
	if err != nil {
		var result models.VerificationResult
		return result, err
	}
	return VerifyEntries(entries), nil
}

// VerifyEntries checks an in-memory chain.
func VerifyEntries(entries []models.CustodyEntry) models.VerificationResult {
	prevDigest := genesisSeed
	for i, entry := range entries {
		wantSeq := int64(i) + 1
		if entry.Seq != wantSeq || entry.PrevDigest != prevDigest || entryDigest(entry) != entry.Digest {
			return models.VerificationResult{Valid: false, Entries: int64(len(entries)), BrokenSeq: wantSeq}
		}
		prevDigest = entry.Digest
	}
	return models.VerificationResult{Valid: true, Entries: int64(len(entries))}
}

// entryDigest computes the coc-v1 digest over the canonical fields.
func entryDigest(entry models.CustodyEntry) string {
	canonical := strings.Join([]string{
		SchemeVersion,
		entry.CaseID,
		strconv.FormatInt(entry.Seq, 10),
		entry.PrevDigest,
		entry.Actor,
		entry.Action,
		entry.Timestamp,
		entry.PayloadDigest,
	}, "\n")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func digestPayload(payload any) (string, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
