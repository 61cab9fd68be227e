package vault

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveArtifactPath maps a caller-supplied case-relative path to an
// absolute filesystem location. This is the single sanctioned entry
// point for artifact and evidence browsing: the path is canonicalized
// and any result escaping the case's vault root is rejected with
// ErrPathOutsideVault before a file is ever opened.
func (v *Vault) ResolveArtifactPath(caseID, rel string) (string, error) {
	if strings.TrimSpace(caseID) == "" {
		return "", fmt.Errorf("case id is required")
	}
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathOutsideVault)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideVault, rel)
	}

	caseRoot := v.CaseRoot(caseID)
	abs := filepath.Join(caseRoot, filepath.FromSlash(rel))

	resolved, err := filepath.Rel(caseRoot, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideVault, rel)
	}
	if resolved == ".." || strings.HasPrefix(resolved, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideVault, rel)
	}
	return abs, nil
}
