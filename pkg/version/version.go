// Package version validates and orders box version strings.
//
// Admission is stricter than semver: Vagrant versions must be X.Y or
// X.Y.Z with numeric components only. Ordering for catalog output uses
// semver comparison, which handles the two-component form.
package version

import (
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"
)

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(\.(\d+))?$`)

// IsValid reports whether v matches the X.Y(.Z) numeric pattern.
func IsValid(v string) bool {
	return versionPattern.MatchString(v)
}

// SortDesc orders version strings newest first. Strings that fail
// semver parsing sort last; admission validation makes that unreachable
// for stored versions.
func SortDesc(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i])
		vj, errj := semver.NewVersion(versions[j])
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return vi.GreaterThan(vj)
	})
}
