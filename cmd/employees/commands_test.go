package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	return path
}

func TestReadEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantLen int
		wantErr bool
	}{
		{"valid", `[0.1, -0.2, 0.3]`, 3, false},
		{"empty array", `[]`, 0, true},
		{"not an array", `{"a": 1}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readEmbedding(writeFile(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readEmbedding() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("Expected %d values, got %d", tt.wantLen, len(got))
			}
		})
	}
}

func TestReadImportFile(t *testing.T) {
	entries, err := readImportFile(writeFile(t, `[
		{"name": "Ana", "embedding": [0.1, 0.2]},
		{"name": "Bruno", "embedding": [0.3]}
	]`))
	if err != nil {
		t.Fatalf("readImportFile failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Name != "Bruno" {
		t.Errorf("Unexpected entries %+v", entries)
	}

	if _, err := readImportFile(writeFile(t, `[{"name": "", "embedding": [1]}]`)); err == nil {
		t.Error("Expected error for missing name")
	}
	if _, err := readImportFile(writeFile(t, `[{"name": "Carla"}]`)); err == nil {
		t.Error("Expected error for missing embedding")
	}
	if _, err := readImportFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
