package version

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal plain", "1.2.0", "1.2.0", 0},
		{"equal with prefix", "v1.2.0", "1.2.0", 0},
		{"short form", "1.2", "1.2.0", 0},
		{"patch newer", "1.2.1", "1.2.0", 1},
		{"minor older", "1.1.9", "1.2.0", -1},
		{"numeric not lexical", "1.10.0", "1.9.0", 1},
		{"prerelease older", "2.0.0-rc.1", "2.0.0", -1},
		{"lexical fallback", "2024-05-01", "2024-04-30", 1},
		{"mixed falls back to lexical", "legacy", "1.0.0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNewerAndEqual(t *testing.T) {
	if !Newer("3.0.0", "2.9.9") {
		t.Error("3.0.0 should be newer than 2.9.9")
	}
	if Newer("2.0.0", "2.0.0") {
		t.Error("equal versions are not newer")
	}
	if !Equal("v2.0.0", "2.0.0") {
		t.Error("v2.0.0 should equal 2.0.0")
	}
	if IsSemver("nightly") {
		t.Error("nightly is not semver")
	}
}
