// Package security validates the filesystem paths the board reads experiments
// from and writes exports to.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir,
// following symlinks on the path itself or on its nearest existing parent.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := canonicalise(absPath)
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// canonicalise resolves symlinks in p, or in its closest existing ancestor
// when p itself does not exist yet.
func canonicalise(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for check := p; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, p)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

// ValidatePathWithinAllowedDirs checks if a path is within any of the allowed directories.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateExperimentDir checks that dir is an existing directory and, when
// roots is non-empty, that it lives under one of them.
func ValidateExperimentDir(dir string, roots []string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("experiment dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("experiment dir %s is not a directory", dir)
	}
	if len(roots) == 0 {
		return nil
	}
	return ValidatePathWithinAllowedDirs(dir, roots)
}

// SanitizeFilename makes a safe filename from an arbitrary string such as a
// metric name. Characters outside [A-Za-z0-9._-] become a single underscore
// and the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	if s == "" {
		return "unknown"
	}
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
