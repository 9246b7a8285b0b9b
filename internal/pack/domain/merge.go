package domain

import "strings"

// Merge refreshes existing with meta. Present values in meta win; absent ones
// keep what was stored. Dependencies and conflicts describe the latest
// version, so a present list replaces the stored one even when empty.
// Downloads, rating and flags are never touched.
func Merge(existing *Pack, meta Metadata) {
	if meta.Description != nil {
		if desc := strings.TrimSpace(*meta.Description); desc != "" {
			existing.Description = desc
		}
	}
	existing.Homepage = preferString(meta.Homepage, existing.Homepage)
	existing.Repository = preferString(meta.Repository, existing.Repository)
	existing.License = preferString(meta.License, existing.License)
	existing.Tags = preferList(meta.Tags, existing.Tags)
	existing.Targets = preferList(meta.Targets, existing.Targets)
	existing.Features = preferList(meta.Features, existing.Features)
	existing.Dependencies = replaceList(meta.Dependencies, existing.Dependencies)
	existing.Conflicts = replaceList(meta.Conflicts, existing.Conflicts)
}

func preferString(next, current *string) *string {
	if next == nil {
		return current
	}
	value := strings.TrimSpace(*next)
	if value == "" {
		return current
	}
	return &value
}

func preferList(next, current []string) []string {
	cleaned := CleanList(next)
	if len(cleaned) == 0 {
		if current == nil {
			return []string{}
		}
		return current
	}
	return cleaned
}

// replaceList keeps current only when next was omitted (nil).
func replaceList(next, current []string) []string {
	if next == nil {
		if current == nil {
			return []string{}
		}
		return current
	}
	return CleanList(next)
}

// CleanList trims entries and drops blanks and duplicates, keeping order.
func CleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
