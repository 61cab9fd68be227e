package modules

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"eviforge/internal/models"
)

var exifExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".tif": {}, ".tiff": {}, ".heic": {},
}

// Exif shells out to exiftool for image metadata. It declares the
// external tool so the registry's availability probe gates dispatch.
type Exif struct{}

func (m *Exif) Name() string { return "exif" }
func (m *Exif) Tool() string { return "exiftool" }

func (m *Exif) Accepts(ev models.Evidence) bool {
	ext := strings.ToLower(filepath.Ext(ev.VaultPath))
	_, ok := exifExtensions[ext]
	return ok
}

func (m *Exif) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	out, err := exec.CommandContext(ctx, "exiftool", "-json", inv.EvidencePath).Output()
	if err != nil {
		return Outcome{}, err
	}
	if err := os.WriteFile(filepath.Join(inv.OutputDir, "exif.json"), out, 0o644); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true, Artifacts: []string{"exif.json"}}, nil
}
