package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/tool-hub-search/internal/vectorindex"
)

func TestWriteIndexJSONL(t *testing.T) {
	output := filepath.Join(t.TempDir(), "test-index.jsonl")

	tools := []ToolEntry{
		{Tool: "jira:get_issue", Server: "jira", Description: "Get Jira issue details", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Tool: "figma:get_file", Server: "figma", Description: "Get Figma file metadata"},
	}

	if err := writeIndex(tools, output, "jsonl"); err != nil {
		t.Fatalf("writeIndex failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(tools) {
		t.Fatalf("Expected %d lines, got %d", len(tools), len(lines))
	}

	for i, line := range lines {
		var entry ToolEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("Line %d is not valid JSON: %v", i, err)
		}
		if entry.Tool == "" || entry.Server == "" {
			t.Errorf("Line %d missing required fields: %+v", i, entry)
		}
	}
}

func TestWriteIndexJSON(t *testing.T) {
	output := filepath.Join(t.TempDir(), "test-index.json")

	tools := []ToolEntry{{Tool: "jira:get_issue", Server: "jira", Description: "Get Jira issue details"}}
	if err := writeIndex(tools, output, "json"); err != nil {
		t.Fatalf("writeIndex failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	var entries []ToolEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Errorf("Output is not valid JSON array: %v", err)
	}
	if len(entries) != len(tools) {
		t.Errorf("Expected %d entries, got %d", len(tools), len(entries))
	}
}

func TestRunExportIndexFromToolIndex(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex()
	err := idx.UpsertBatch(ctx, []vectorindex.Record{
		{
			ID:        "github:create_issue",
			Document:  "Tool: github:create_issue",
			Embedding: []float32{1, 0},
			Metadata: map[string]any{
				vectorindex.MetaServerName:  "github",
				vectorindex.MetaDescription: "Create an issue",
				vectorindex.MetaInputSchema: `{"type":"object","properties":{"title":{"type":"string"}}}`,
				vectorindex.MetaParameters:  []string{"title"},
			},
		},
		{
			ID:        "filesystem:read_file",
			Document:  "Tool: filesystem:read_file",
			Embedding: []float32{0, 1},
			Metadata: map[string]any{
				vectorindex.MetaServerName:  "filesystem",
				vectorindex.MetaDescription: "Read a file",
			},
		},
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	output := filepath.Join(t.TempDir(), "index.jsonl")
	buf := new(bytes.Buffer)
	if err := runExportIndex(ctx, buf, idx, "jsonl", output); err != nil {
		t.Fatalf("runExportIndex failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Exported 2 tools") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	// All is ordered by ID.
	var first ToolEntry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Tool != "filesystem:read_file" || first.Server != "filesystem" || first.InputSchema != nil {
		t.Errorf("first entry = %+v", first)
	}

	var second ToolEntry
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if len(second.Parameters) != 1 || second.Parameters[0] != "title" || !strings.Contains(string(second.InputSchema), "title") {
		t.Errorf("second entry = %+v", second)
	}

	if _, err := os.Stat(output + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file should be removed after export")
	}
}

func TestAcquireFileLock(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test-lock.jsonl")

	lockFile, err := acquireFileLock(testFile)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer releaseFileLock(lockFile)

	if _, err := os.Stat(testFile + ".lock"); os.IsNotExist(err) {
		t.Error("Lock file was not created")
	}

	if _, err := acquireFileLock(testFile); err == nil {
		t.Error("Expected lock acquisition to fail, but it succeeded")
	}
}

func TestReleaseFileLock(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test-lock.jsonl")

	lockFile, err := acquireFileLock(testFile)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	lockPath := lockFile.Name()

	if err := releaseFileLock(lockFile); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file was not removed after release")
	}

	lockFile2, err := acquireFileLock(testFile)
	if err != nil {
		t.Fatalf("Failed to re-acquire lock after release: %v", err)
	}
	releaseFileLock(lockFile2)
}

func TestExportIndexRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "export-index", "--format", "csv")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}
