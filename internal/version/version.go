/*
Package version reports the tool-hub-search build.

The values are injected with ldflags at build time and surface in the
version command, the MCP server implementation info and the REST API root:

	go build -ldflags "-X .../internal/version.Version=v0.3.0 \
	  -X .../internal/version.Commit=abc1234 -X .../internal/version.Date=2026-01-02"

Unset values leave a "dev" build.
*/
package version

var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the short commit hash.
	Commit = "none"
	// Date is the UTC build date (YYYY-MM-DD).
	Date = "unknown"
)

// Info is the build description served by the JSON surfaces.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Dev     bool   `json:"dev"`
}

// Current returns the build info of the running binary.
func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date, Dev: Version == "dev"}
}

// String formats the info for display.
func (i Info) String() string {
	return FormatVersion(i.Version, i.Commit, i.Date)
}

// GetVersion returns the display string for the running binary.
func GetVersion() string {
	return Current().String()
}

// FormatVersion formats version components into a display string.
func FormatVersion(version, commit, date string) string {
	if version == "dev" {
		return version + " (development build)"
	}
	return version + " (commit: " + commit + ", built: " + date + ")"
}

// GetVersionComponents returns the individual components.
func GetVersionComponents() (version, commit, date string) {
	return Version, Commit, Date
}
