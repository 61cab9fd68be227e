package modules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"eviforge/internal/models"
)

func testInvocation(t *testing.T, content []byte, name string) Invocation {
	t.Helper()
	dir := t.TempDir()
	evidencePath := filepath.Join(dir, name)
	if err := os.WriteFile(evidencePath, content, 0o644); err != nil {
		t.Fatalf("write evidence: %v", err)
	}
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir out: %v", err)
	}
	return Invocation{
		Evidence: models.Evidence{
			ID:        "ev-1",
			CaseID:    "case-1",
			VaultPath: "evidence/" + name,
			SizeBytes: int64(len(content)),
		},
		EvidencePath: evidencePath,
		OutputDir:    outDir,
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(&Inventory{}, &Inventory{}); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestRegistryListAndAvailability(t *testing.T) {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	descriptors := r.List()
	if len(descriptors) != 4 {
		t.Fatalf("expected 4 modules, got %d", len(descriptors))
	}
	for i := 1; i < len(descriptors); i++ {
		if descriptors[i-1].Name >= descriptors[i].Name {
			t.Fatal("expected descriptors sorted by name")
		}
	}

	// Tool-less modules are always available.
	if !r.Available("inventory") || !r.Available("strings") || !r.Available("verify") {
		t.Fatal("expected built-in tool-less modules to be available")
	}

	if _, ok := r.Get("timeline"); ok {
		t.Fatal("expected unregistered module lookup to miss")
	}
}

func TestStringsModule(t *testing.T) {
	content := []byte("garbage\x00\x01needle-in-binary\x02\x03ok\xffanother long run here")
	inv := testInvocation(t, content, "blob.bin")

	out, err := (&Strings{}).Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected ok outcome, got %+v", out)
	}
	data, err := os.ReadFile(filepath.Join(inv.OutputDir, "strings.txt"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "needle-in-binary") {
		t.Fatalf("expected extracted string, got %q", text)
	}
	if strings.Contains(text, "ok\n") {
		t.Fatal("runs shorter than the minimum must be dropped")
	}
}

func TestVerifyModuleDetectsMismatch(t *testing.T) {
	inv := testInvocation(t, []byte("stable bytes"), "doc.txt")
	// Recorded digests deliberately wrong.
	inv.Evidence.MD5 = strings.Repeat("0", 32)
	inv.Evidence.SHA256 = strings.Repeat("0", 64)

	out, err := (&Verify{}).Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.OK {
		t.Fatal("expected mismatch outcome")
	}
	if out.Reason != models.ReasonIntegrityMismatch {
		t.Fatalf("expected integrity_mismatch reason, got %q", out.Reason)
	}
	if _, err := os.Stat(filepath.Join(inv.OutputDir, "verify.json")); err != nil {
		t.Fatalf("expected verify.json artifact: %v", err)
	}
}

func TestInventoryModule(t *testing.T) {
	inv := testInvocation(t, []byte("abc"), "disk.img")
	inv.Evidence.MD5 = "md5"
	inv.Evidence.SHA256 = "sha"

	out, err := (&Inventory{}).Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.OK || len(out.Artifacts) != 1 || out.Artifacts[0] != "inventory.json" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestExifAccepts(t *testing.T) {
	m := &Exif{}
	if !m.Accepts(models.Evidence{VaultPath: "evidence/photo.JPG"}) {
		t.Fatal("expected jpg to be accepted")
	}
	if m.Accepts(models.Evidence{VaultPath: "evidence/capture.pcap"}) {
		t.Fatal("expected pcap to be rejected")
	}
}
