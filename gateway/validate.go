package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxChangedFiles  = 10
	maxFileSizeBytes = 100 * 1024
)

var moduleIDPattern = regexp.MustCompile(`^[a-z0-9_]+/[a-z0-9_]+$`)

// ValidateContract enforces GeneratorResponseContract's field
// constraints and the caller's path allowlist (allowedDirs). Returns a
// descriptive error suitable for wrapping in a SchemaValidationError;
// callers do not retry the same model on a validation failure.
func ValidateContract(c GeneratorResponseContract, allowedDirs []string) error {
	if !moduleIDPattern.MatchString(c.Module) {
		return fmt.Errorf("module %q does not match ^[a-z0-9_]+/[a-z0-9_]+$", c.Module)
	}
	if len(c.ChangedFiles) > maxChangedFiles {
		return fmt.Errorf("changed_files has %d entries, max %d", len(c.ChangedFiles), maxChangedFiles)
	}
	for _, f := range c.ChangedFiles {
		if len(f.Content) > maxFileSizeBytes {
			return fmt.Errorf("file %q is %d bytes, max %d", f.Path, len(f.Content), maxFileSizeBytes)
		}
		if strings.Contains(f.Content, "```") {
			return fmt.Errorf("file %q content contains markdown code fences", f.Path)
		}
		if !pathAllowed(f.Path, allowedDirs) {
			return fmt.Errorf("file %q is outside the allowed path set", f.Path)
		}
	}
	for _, p := range c.DeletedFiles {
		if !pathAllowed(p, allowedDirs) {
			return fmt.Errorf("deleted path %q is outside the allowed path set", p)
		}
	}
	return nil
}

// pathAllowed reports whether path is within one of allowedDirs. An
// empty allowedDirs means no restriction is configured (the caller is
// trusted to supply its own module directory as the sole allowed dir in
// normal operation).
func pathAllowed(path string, allowedDirs []string) bool {
	if len(allowedDirs) == 0 {
		return true
	}
	if strings.Contains(path, "..") {
		return false
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(path, strings.TrimSuffix(dir, "/")+"/") || path == dir {
			return true
		}
	}
	return false
}
