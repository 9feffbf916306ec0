package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/auditpipe/mail-audit/model"
)

// WriteArtifact serializes the report as a JSON document. The write
// goes through a temp file in the same directory so a crashed run never
// leaves a truncated artifact behind.
func WriteArtifact(path string, rep *model.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("create report artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write report artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close report artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("place report artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads a report artifact written by WriteArtifact.
func ReadArtifact(path string) (*model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report artifact: %w", err)
	}
	var rep model.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse report artifact %s: %w", path, err)
	}
	if rep.RunID == "" {
		return nil, fmt.Errorf("report artifact %s has no run id", path)
	}
	return &rep, nil
}
