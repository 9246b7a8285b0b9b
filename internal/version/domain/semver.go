package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// InitialVersion is assigned to the first automatically versioned release.
const InitialVersion = "1.0.0"

var semverPrefix = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// ValidVersion reports whether v is a full semantic version, with or
// without a leading "v".
func ValidVersion(v string) bool {
	v = strings.TrimSpace(v)
	if !semverPrefix.MatchString(strings.TrimPrefix(v, "v")) {
		return false
	}
	return semver.IsValid("v" + strings.TrimPrefix(v, "v"))
}

// HasSemverPrefix reports whether v starts with MAJOR.MINOR.PATCH.
func HasSemverPrefix(v string) bool {
	return semverPrefix.MatchString(v)
}

// BumpPatch drops any pre-release or build suffix, pads missing components
// with zero and increments the patch number.
func BumpPatch(v string) (string, error) {
	core := strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if core == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}

	parts := strings.Split(core, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}

	nums := make([]int, 3)
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
		}
		nums[i] = n
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]+1), nil
}
