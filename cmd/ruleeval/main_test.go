package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const snapshotJSON = `{"campaignId":"120210","spend":"612.40","roas":1.8,"ctr":0.02,"capturedAt":"2025-06-01T12:00:00Z"}`

func writeSnapshot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write snapshot: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	path := writeSnapshot(t, snapshotJSON)

	tests := []struct {
		name       string
		args       []string
		stdin      string
		wantCode   int
		wantOutput []string
	}{
		{
			name:       "matched",
			args:       []string{"-rule", "IF Spend > $500 AND CTR < 5%", "-snapshot", path},
			wantCode:   0,
			wantOutput: []string{"matched: true", "parsed:  (Spend > 500 AND CTR < 0.05)"},
		},
		{
			name:       "not matched",
			args:       []string{"-rule", "ROAS > 3", "-snapshot", path},
			wantCode:   0,
			wantOutput: []string{"matched: false"},
		},
		{
			name:       "invalid rule still evaluates",
			args:       []string{"-rule", "Budget > 5", "-snapshot", path},
			wantCode:   0,
			wantOutput: []string{"matched: false", "diagnostic: unknown_identifier"},
		},
		{
			name:       "stdin",
			args:       []string{"-rule", "ROAS < 2", "-snapshot", "-"},
			stdin:      snapshotJSON,
			wantCode:   0,
			wantOutput: []string{"matched: true"},
		},
		{
			name:       "upstream record",
			args:       []string{"-record", "-rule", "Spend >= 5", "-snapshot", "-"},
			stdin:      `{"id":"2","account_id":"act_42","spend":5,"ROAS":3,"CTR":0.02}`,
			wantCode:   0,
			wantOutput: []string{"matched: true"},
		},
		{name: "missing file", args: []string{"-rule", "ROAS < 2", "-snapshot", filepath.Join(t.TempDir(), "nope.json")}, wantCode: 2},
		{name: "bad json", args: []string{"-rule", "ROAS < 2", "-snapshot", "-"}, stdin: "{", wantCode: 2},
		{name: "missing rule", args: []string{"-snapshot", path}, wantCode: 2},
		{name: "unknown flag", args: []string{"-verbose"}, wantCode: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, strings.NewReader(tt.stdin), &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, tt.wantCode, stderr.String())
			}
			for _, want := range tt.wantOutput {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("output %q does not contain %q", stdout.String(), want)
				}
			}
		})
	}
}

func TestRunJSON(t *testing.T) {
	path := writeSnapshot(t, snapshotJSON)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-json", "-rule", "Spend > $500 OR Foo > 1", "-snapshot", path}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d (stderr: %s)", code, stderr.String())
	}

	var out struct {
		Matched     bool `json:"matched"`
		Diagnostics []struct {
			Kind string `json:"kind"`
		} `json:"diagnostics"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	// OR short-circuits, so the invalid branch is never reached
	if !out.Matched || len(out.Diagnostics) != 0 {
		t.Errorf("output = %+v", out)
	}
}
