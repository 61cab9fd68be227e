// Package vault owns the case-scoped evidence tree. Evidence copies are
// written exactly once at ingest and never modified; job artifacts live
// under a per-job subtree; everything else in the system opens vault
// paths only through ResolveArtifactPath.
package vault

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"eviforge/internal/models"
)

const (
	evidenceDirName  = "evidence"
	artifactsDirName = "artifacts"
	ledgerFileName   = "chain_of_custody.log"
)

var (
	// ErrDuplicateTarget is returned when an ingest target path is
	// already occupied.
	ErrDuplicateTarget = errors.New("vault: duplicate target")
	// ErrIntegrityMismatch is returned when the vault copy's digests
	// disagree with the digests computed during the copy, or when a
	// re-verification disagrees with the recorded digests.
	ErrIntegrityMismatch = errors.New("vault: integrity mismatch")
	// ErrPathOutsideVault is returned when a caller-supplied relative
	// path escapes the case's vault root.
	ErrPathOutsideVault = errors.New("vault: path outside vault")
)

// Vault is the filesystem root holding one subtree per case.
type Vault struct {
	root string
}

// New creates a vault rooted at root.
func New(root string) (*Vault, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("vault root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Vault{root: abs}, nil
}

// Root returns the vault root directory.
func (v *Vault) Root() string {
	return v.root
}

// CaseRoot returns the directory owned by one case.
func (v *Vault) CaseRoot(caseID string) string {
	return filepath.Join(v.root, caseID)
}

// LedgerPath returns the case's chain-of-custody log location.
func (v *Vault) LedgerPath(caseID string) string {
	return filepath.Join(v.CaseRoot(caseID), ledgerFileName)
}

// EnsureCase creates the case subtree.
func (v *Vault) EnsureCase(caseID string) error {
	if strings.TrimSpace(caseID) == "" {
		return fmt.Errorf("case id is required")
	}
	for _, dir := range []string{evidenceDirName, artifactsDirName} {
		if err := os.MkdirAll(filepath.Join(v.CaseRoot(caseID), dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Ingest streams src into the case's evidence subtree under name,
// computing MD5 and SHA-256 in the same pass, then re-reads the
// destination to confirm both digests before the evidence record is
// returned. A digest disagreement discards the partial copy and fails
// with ErrIntegrityMismatch. Target collisions fail with
// ErrDuplicateTarget. Concurrent ingests for distinct targets are safe;
// O_EXCL arbitrates concurrent ingests for the same target.
func (v *Vault) Ingest(ctx context.Context, caseID, name, source string, src io.Reader) (*models.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("source reader is required")
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("evidence name is required")
	}
	if err := v.EnsureCase(caseID); err != nil {
		return nil, err
	}

	relPath := filepath.Join(evidenceDirName, name)
	dst := filepath.Join(v.CaseRoot(caseID), relPath)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, relPath)
		}
		return nil, err
	}

	md5Sum, shaSum := md5.New(), sha256.New()
	n, err := io.Copy(io.MultiWriter(f, md5Sum, shaSum), src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}

	wantMD5 := hex.EncodeToString(md5Sum.Sum(nil))
	wantSHA := hex.EncodeToString(shaSum.Sum(nil))

	gotMD5, gotSHA, gotSize, err := digestFile(dst)
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	if gotMD5 != wantMD5 || gotSHA != wantSHA || gotSize != n {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("%w: %s", ErrIntegrityMismatch, relPath)
	}

	return &models.Evidence{
		ID:         uuid.NewString(),
		CaseID:     caseID,
		Source:     source,
		VaultPath:  filepath.ToSlash(relPath),
		SizeBytes:  n,
		MD5:        wantMD5,
		SHA256:     wantSHA,
		IngestedAt: time.Now().UTC(),
	}, nil
}

// IngestFile ingests a file from the local filesystem, keeping the
// original absolute path as the evidence source.
func (v *Vault) IngestFile(ctx context.Context, caseID, path string) (*models.Evidence, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return v.Ingest(ctx, caseID, filepath.Base(abs), abs, f)
}

// EvidencePath returns the absolute location of an evidence copy.
func (v *Vault) EvidencePath(ev models.Evidence) string {
	return filepath.Join(v.CaseRoot(ev.CaseID), filepath.FromSlash(ev.VaultPath))
}

// VerifyEvidence re-reads the vault copy and compares its digests to
// the values recorded at ingest. Any mismatch signals corruption and is
// fatal to further processing of that item.
func (v *Vault) VerifyEvidence(ctx context.Context, ev models.Evidence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gotMD5, gotSHA, gotSize, err := digestFile(v.EvidencePath(ev))
	if err != nil {
		return err
	}
	if gotMD5 != ev.MD5 || gotSHA != ev.SHA256 || gotSize != ev.SizeBytes {
		return fmt.Errorf("%w: %s", ErrIntegrityMismatch, ev.VaultPath)
	}
	return nil
}

// JobOutputDir creates and returns the artifact directory for one job.
// Job-scoped subdirectories are what make module runs safely repeatable:
// a re-run is a new job and lands in a fresh subtree.
func (v *Vault) JobOutputDir(caseID string, jobSeq int64) (abs string, rel string, err error) {
	rel = filepath.ToSlash(filepath.Join(artifactsDirName, fmt.Sprintf("%d", jobSeq)))
	abs = filepath.Join(v.CaseRoot(caseID), filepath.FromSlash(rel))
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", "", err
	}
	return abs, rel, nil
}

func digestFile(path string) (md5Hex, shaHex string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", 0, err
	}
	defer f.Close()

	md5Sum, shaSum := md5.New(), sha256.New()
	n, err := io.Copy(io.MultiWriter(md5Sum, shaSum), f)
	if err != nil {
		return "", "", 0, err
	}
	return hexSum(md5Sum), hexSum(shaSum), n, nil
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
