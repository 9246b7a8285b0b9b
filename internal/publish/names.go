package publish

import (
	"strings"

	"github.com/gosimple/slug"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
)

const maxNameLength = 214

var defaultReservedNames = []string{
	"admin", "api", "auto", "help", "internal", "latest", "official",
	"packhub", "registry", "root", "security", "support", "system", "www",
}

// NameValidator rejects malformed and reserved pack names.
type NameValidator struct {
	reserved map[string]struct{}
}

func NewNameValidator(extra []string) *NameValidator {
	v := &NameValidator{reserved: make(map[string]struct{}, len(defaultReservedNames)+len(extra))}
	for _, name := range append(append([]string{}, defaultReservedNames...), extra...) {
		if folded := FoldName(name); folded != "" {
			v.reserved[folded] = struct{}{}
		}
	}
	return v
}

// Validate accepts "name" and "@org/name" where both parts are slugs.
// Reserved names only apply to unscoped packs.
func (v *NameValidator) Validate(name string) error {
	if name == "" || len(name) > maxNameLength {
		return ErrInvalidName
	}

	if strings.HasPrefix(name, "@") {
		org, ok := orgdomain.ParseScope(name)
		if !ok {
			return ErrInvalidName
		}
		base := strings.TrimPrefix(name, "@"+org+"/")
		if !slug.IsSlug(org) || !slug.IsSlug(base) {
			return ErrInvalidName
		}
		return nil
	}

	if !slug.IsSlug(name) {
		return ErrInvalidName
	}
	if _, ok := v.reserved[FoldName(name)]; ok {
		return ErrReservedName
	}
	return nil
}

// FoldName lowercases name and drops separators, so "my-pack" and "mypack"
// collide.
func FoldName(name string) string {
	return strings.NewReplacer("-", "", "_", "", ".", "").Replace(strings.ToLower(strings.TrimSpace(name)))
}
