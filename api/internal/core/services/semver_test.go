package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionNewer(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
		installed string
		want      bool
	}{
		{"patch bump", "1.0.1", "1.0.0", true},
		{"same version", "1.0.0", "1.0.0", false},
		{"older candidate", "1.0.0", "1.1.0", false},
		{"numeric not lexical", "1.10.0", "1.2.0", true},
		{"missing components read as zero", "1.0", "1.0.0", false},
		{"leading v ignored", "v2.0.0", "1.9.9", true},
		{"pre-release ignored", "2.0.0-beta", "2.0.0", false},
		{"pre-release on installed ignored", "2.0.0", "2.0.0-beta", false},
		{"unparseable candidate", "not-a-version", "1.0.0", false},
		{"unparseable installed", "1.0.0", "garbage", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, versionNewer(tc.candidate, tc.installed))
		})
	}
}
