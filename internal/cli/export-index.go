package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/khanglvm/tool-hub-search/internal/vectorindex"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// ToolEntry represents a tool in the exported index.
type ToolEntry struct {
	Tool        string          `json:"tool"`
	Server      string          `json:"server"`
	Description string          `json:"description"`
	Parameters  []string        `json:"parameters,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// NewExportIndexCmd creates the export-index command.
func NewExportIndexCmd(g *globalOptions) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export-index",
		Short: "Export the tool index for bash/grep search",
		Long: `Write every indexed tool to ~/.tool-hub-search-index.jsonl for offline
grep/jq searching.

Default output: ~/.tool-hub-search-index.jsonl
Default format: JSONL (one tool per line)`,
		Example: `  # Export to default location
  tool-hub-search export-index

  # Export as JSON array
  tool-hub-search export-index --format json

  # Custom output path
  tool-hub-search export-index --output ./tools.jsonl

Grep usage examples:
  # Find GitHub tools
  grep '"github"' ~/.tool-hub-search-index.jsonl

  # Count tools per server
  jq -r '.server' ~/.tool-hub-search-index.jsonl | sort | uniq -c`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "jsonl" {
				return fmt.Errorf("unknown format %q (want json or jsonl)", format)
			}

			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			return runExportIndex(cmd.Context(), cmd.OutOrStdout(), app.Tools, format, output)
		},
	}

	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format: json or jsonl")
	cmd.Flags().StringVar(&output, "output", "", "Output path (default: ~/.tool-hub-search-index.jsonl)")

	return cmd
}

// runExportIndex writes the tool index to output.
func runExportIndex(ctx context.Context, w io.Writer, tools vectorindex.Index, format, output string) error {
	if output == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		ext := ".jsonl"
		if format == "json" {
			ext = ".json"
		}
		output = filepath.Join(home, ".tool-hub-search-index"+ext)
	}

	records, err := tools.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read tool index: %w", err)
	}

	entries := make([]ToolEntry, 0, len(records))
	for _, rec := range records {
		entry := ToolEntry{
			Tool:        rec.ID,
			Server:      rec.MetaString(vectorindex.MetaServerName),
			Description: rec.MetaString(vectorindex.MetaDescription),
			Parameters:  rec.MetaStrings(vectorindex.MetaParameters),
		}
		if schema := rec.MetaString(vectorindex.MetaInputSchema); schema != "" {
			entry.InputSchema = json.RawMessage(schema)
		}
		entries = append(entries, entry)
	}

	// Acquire file lock to prevent concurrent writes
	lockFile, err := acquireFileLock(output)
	if err != nil {
		return fmt.Errorf("failed to acquire file lock: %w", err)
	}
	defer releaseFileLock(lockFile)

	if err := writeIndex(entries, output, format); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Exported %d tools to %s\n", len(entries), output)
	return nil
}

// writeIndex writes the tool index to a file.
func writeIndex(tools []ToolEntry, path, format string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)

	if format == "json" {
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(tools); err != nil {
			return fmt.Errorf("failed to encode tools: %w", err)
		}
		return nil
	}

	for _, tool := range tools {
		if err := encoder.Encode(tool); err != nil {
			return fmt.Errorf("failed to encode tool: %w", err)
		}
	}
	return nil
}

// acquireFileLock acquires an exclusive lock on the index file.
func acquireFileLock(path string) (*os.File, error) {
	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Non-blocking: a second export fails fast.
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire lock (another export in progress?): %w", err)
	}

	return lockFile, nil
}

// releaseFileLock releases the file lock and removes the lock file.
func releaseFileLock(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}

	lockPath := lockFile.Name()
	unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	lockFile.Close()

	return os.Remove(lockPath)
}
