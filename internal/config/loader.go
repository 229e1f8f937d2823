package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/muhammadmuzzammil1998/jsonc"
)

// LoadFrom reads a JSONC config file, applies defaults for missing fields
// and environment overrides, and validates the result.
func LoadFrom(path string) (*Config, error) {
	// Check file existence first
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigNotFoundError{
				Path: path,
				Hint: "Run 'tool-hub-search setup' to create a configuration",
			}
		}
		return nil, fmt.Errorf("failed to access config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &PermissionError{
				Path:    path,
				Op:      "read",
				Fix:     getReadPermissionFix(path),
				Details: getPermissionDetails(path),
			}
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &InvalidConfigError{
			Path: path,
			Err:  err,
			Hint: "Restore from .bak file if available",
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &InvalidConfigError{
			Path: path,
			Err:  err,
			Hint: "Fix the listed field and try again",
		}
	}
	return cfg, nil
}

// Parse decodes JSONC onto the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// getReadPermissionFix returns platform-specific fix command
func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Edit permissions", path)
	default: // unix-like
		return fmt.Sprintf("Run: chmod 644 %s", path)
	}
}

// getPermissionDetails reports the current file mode.
func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
