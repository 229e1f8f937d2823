package version

import "testing"

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"dev", "none", "unknown", "dev (development build)"},
		{"v1.2.0", "abc1234", "2026-01-02", "v1.2.0 (commit: abc1234, built: 2026-01-02)"},
	}

	for _, tt := range tests {
		if got := FormatVersion(tt.version, tt.commit, tt.date); got != tt.want {
			t.Errorf("FormatVersion(%q) = %q, want %q", tt.version, got, tt.want)
		}
	}
}

func TestGetVersionComponents(t *testing.T) {
	v, c, d := GetVersionComponents()
	if v != Version || c != Commit || d != Date {
		t.Errorf("GetVersionComponents() = %q %q %q", v, c, d)
	}
}

func TestCurrent(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "dev"
	if info := Current(); !info.Dev || info.String() != "dev (development build)" {
		t.Errorf("Current() = %+v", info)
	}

	Version = "v0.3.0"
	info := Current()
	if info.Dev || info.Version != "v0.3.0" || info.Commit != Commit {
		t.Errorf("Current() = %+v", info)
	}
	if info.String() != GetVersion() {
		t.Errorf("String() = %q, GetVersion() = %q", info.String(), GetVersion())
	}
}
