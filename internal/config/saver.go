package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Save validates cfg and writes it to path. The previous file is kept as
// path.bak and the new content replaces it atomically.
func Save(cfg *Config, path string) error {
	if err := ensureWritable(path); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return &InvalidConfigError{
			Path: path,
			Err:  err,
			Hint: "Check the configuration and try again",
		}
	}

	if err := backupConfig(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create backup: %v\n", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return atomicWrite(path, append(data, '\n'))
}

// backupConfig copies path to path.bak. A missing file is not an error.
func backupConfig(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path+".bak", data, 0644)
}

// atomicWrite writes to a temp file in the target directory, syncs it and
// renames it over path.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ensureWritable probes the config directory and any existing file.
// A directory that does not exist yet is created by atomicWrite.
func ensureWritable(path string) error {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		probe, err := os.CreateTemp(dir, ".write-test-*")
		if err != nil {
			return writePermissionError(dir, "Cannot write to config directory")
		}
		probe.Close()
		os.Remove(probe.Name())
	}

	if _, err := os.Stat(path); err == nil {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return writePermissionError(path, "Config file is read-only")
		}
		f.Close()
	}
	return nil
}

func writePermissionError(path, details string) *PermissionError {
	fix := fmt.Sprintf("Run: chmod u+w %s", path)
	if runtime.GOOS == "windows" {
		fix = fmt.Sprintf("Right-click %s → Properties → Security → Grant 'Write' permission", path)
	}
	return &PermissionError{Path: path, Op: "write", Fix: fix, Details: details}
}
