package cli

import "testing"

// TestExitCodes_AreStableAndDistinct guards against an accidental
// renumbering of the taxonomy cmd/mem maps sentinel errors onto.
func TestExitCodes_AreStableAndDistinct(t *testing.T) {
	codes := map[string]int{
		"ExitSuccess":           ExitSuccess,
		"ExitGraphFailure":      ExitGraphFailure,
		"ExitInvalidInvocation": ExitInvalidInvocation,
		"ExitConfigError":       ExitConfigError,
		"ExitInternalError":     ExitInternalError,
	}
	if ExitSuccess != 0 {
		t.Errorf("ExitSuccess = %d, want 0", ExitSuccess)
	}
	seen := make(map[int]string)
	for name, code := range codes {
		if other, ok := seen[code]; ok {
			t.Errorf("%s and %s share exit code %d", name, other, code)
		}
		seen[code] = name
	}
}
