package main

import (
	"fmt"
	"os"
	"time"

	"eviforge/internal/format"
	"eviforge/internal/models"
)

var jsonFormatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return jsonFormatter.Write(os.Stdout, payload)
}

func writePlain(formatStr string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, formatStr, args...)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func writeCaseLine(c models.Case) error {
	return writePlain("%s  %-6s  %s  %s\n", c.ID, c.Status, formatTime(c.CreatedAt), c.Name)
}

func writeJobLine(job models.Job) error {
	reason := job.Reason
	if reason == "" {
		reason = "-"
	}
	path := string(job.DispatchPath)
	if path == "" {
		path = "-"
	}
	return writePlain("%3d  %-9s  %-15s  %-16s  %s\n", job.Seq, job.State, path, reason, job.Module)
}

func writeEvidenceLine(ev models.Evidence) error {
	return writePlain("%s  %10d  %s  %s\n", ev.ID, ev.SizeBytes, ev.SHA256, ev.VaultPath)
}
