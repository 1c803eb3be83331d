package app

import (
	"os"
	"testing"
)

func TestRefreshTestModeTracksEnv(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	if !InTestMode() {
		t.Fatal("expected test mode on")
	}

	os.Unsetenv(testModeEnv)
	RefreshTestMode()
	if InTestMode() {
		t.Fatal("expected test mode off")
	}
}
