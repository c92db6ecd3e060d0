package services

import (
	"github.com/hashicorp/go-version"
)

// versionNewer reports whether candidate is strictly newer than installed
// under release precedence: numeric dot-separated comparison, missing
// trailing components read as zero, a leading "v" ignored, and pre-release
// suffixes ignored (2.0.0-beta orders equal to 2.0.0). Unparseable inputs
// count as not-newer so a malformed version string can never advertise an
// update.
func versionNewer(candidate, installed string) bool {
	cv, err := version.NewVersion(candidate)
	if err != nil {
		return false
	}
	iv, err := version.NewVersion(installed)
	if err != nil {
		return false
	}
	// Core() strips pre-release and build metadata before comparing.
	return cv.Core().GreaterThan(iv.Core())
}
