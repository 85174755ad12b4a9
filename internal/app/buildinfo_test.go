package app

import "testing"

func stampBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = v, c, d
	})
	Version, Commit, BuildDate = version, commit, date
}

func TestBuildVersion(t *testing.T) {
	stampBuild(t, " ", "", "")
	if got := BuildVersion(); got != "dev" {
		t.Fatalf("BuildVersion() = %q, want dev", got)
	}

	Version = " 1.2.3 "
	if got := BuildVersion(); got != "1.2.3" {
		t.Fatalf("BuildVersion() = %q, want 1.2.3", got)
	}
}

func TestBuildDateYMD(t *testing.T) {
	stampBuild(t, "dev", "", "")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "2026-01-30T14:55:03Z", want: "2026-01-30"},
		{in: "2026-01-30", want: "2026-01-30"},
		{in: "2026-01-30 nightly", want: "2026-01-30"},
		{in: "not-a-date", want: "not-a-date"},
	}

	for _, tt := range tests {
		BuildDate = tt.in
		if got := BuildDateYMD(); got != tt.want {
			t.Fatalf("BuildDateYMD(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildVersionWithDate(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		date    string
		want    string
	}{
		{name: "bare", version: "0.1.2", want: "0.1.2"},
		{name: "date", version: "0.1.2", date: "2026-01-30T14:55:03Z", want: "0.1.2 (2026-01-30)"},
		{name: "commit", version: "0.1.2", commit: "0123456789abcdef", want: "0.1.2 (01234567)"},
		{name: "both", version: "dev", commit: "abc", date: "2026-01-30", want: "dev (2026-01-30, abc)"},
	}

	for _, tt := range tests {
		stampBuild(t, tt.version, tt.commit, tt.date)
		if got := BuildVersionWithDate(); got != tt.want {
			t.Fatalf("%s: BuildVersionWithDate() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
