package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	Version, Commit, BuildDate = "v1.2.3", "abc123", "2025-05-21"
	t.Cleanup(func() { Version, Commit, BuildDate = "dev", "unknown", "unknown" })

	got := String()
	for _, want := range []string{"v1.2.3", "abc123", "2025-05-21"} {
		if !strings.Contains(got, want) {
			t.Fatalf("版本信息缺少 %q: %s", want, got)
		}
	}
	if UserAgent() != "alphapoints/v1.2.3" {
		t.Fatalf("UserAgent 不符: %s", UserAgent())
	}
}
