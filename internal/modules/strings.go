package modules

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"eviforge/internal/models"
)

const minStringRun = 4

// Strings extracts printable ASCII runs from the evidence bytes, the
// classic first pass over an unknown binary.
type Strings struct{}

func (m *Strings) Name() string { return "strings" }
func (m *Strings) Tool() string { return "" }

func (m *Strings) Accepts(ev models.Evidence) bool {
	return ev.VaultPath != ""
}

func (m *Strings) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	src, err := os.Open(inv.EvidencePath)
	if err != nil {
		return Outcome{}, err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(inv.OutputDir, "strings.txt"))
	if err != nil {
		return Outcome{}, err
	}
	defer dst.Close()

	reader := bufio.NewReader(src)
	writer := bufio.NewWriter(dst)
	run := make([]byte, 0, 256)
	count := 0

	flush := func() error {
		if len(run) >= minStringRun {
			if _, err := writer.Write(append(run, '\n')); err != nil {
				return err
			}
			count++
		}
		run = run[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		b, err := reader.ReadByte()
		if err != nil {
			if flushErr := flush(); flushErr != nil {
				return Outcome{}, flushErr
			}
			break
		}
		if b >= 0x20 && b <= 0x7e {
			run = append(run, b)
			continue
		}
		if err := flush(); err != nil {
			return Outcome{}, err
		}
	}

	if err := writer.Flush(); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		OK:        true,
		Artifacts: []string{"strings.txt"},
		Findings:  map[string]any{"strings": count},
	}, nil
}
