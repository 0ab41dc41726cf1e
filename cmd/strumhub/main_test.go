package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.json")
	if err := os.WriteFile(path, []byte(`{"notes":"from file"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		raw     string
		fields  []string
		want    map[string]string
		wantErr bool
	}{
		{"fields", "", []string{"student_name=Jane", "notes=a=b"}, map[string]string{"student_name": "Jane", "notes": "a=b"}, false},
		{"json", `{"student_name":"Jane"}`, nil, map[string]string{"student_name": "Jane"}, false},
		{"file plus field", "@" + path, []string{"student_name=Jo"}, map[string]string{"notes": "from file", "student_name": "Jo"}, false},
		{"field wins", `{"notes":"x"}`, []string{"notes=y"}, map[string]string{"notes": "y"}, false},
		{"bad field", "", []string{"novalue"}, nil, true},
		{"bad json", "{", nil, nil, true},
	}
	for _, tt := range tests {
		got, err := parseInput(tt.raw, tt.fields)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: parseInput() error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("%s: input[%s] = %v, want %q", tt.name, k, got[k], v)
			}
		}
	}
}

func TestAgentsCmd(t *testing.T) {
	t.Setenv("STRUMHUB_AGENTS_DIR", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"agents", "--role", "student"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("agents: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "student-progress-insights") {
		t.Errorf("output missing student agent:\n%s", got)
	}
	if strings.Contains(got, "lesson-notes") {
		t.Errorf("student should not see lesson-notes:\n%s", got)
	}
}
