// ABOUTME: Tests for version constants
// ABOUTME: Ensures build metadata is populated
package version

import (
	"strings"
	"testing"
)

func TestConstantsDefined(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if Product == "" {
		t.Error("Product should not be empty")
	}
	if Manufacturer == "" {
		t.Error("Manufacturer should not be empty")
	}
}

func TestVersionLooksLikeSemver(t *testing.T) {
	if strings.Count(Version, ".") != 2 {
		t.Errorf("Version %q should have three dotted parts", Version)
	}
}
