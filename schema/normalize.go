package schema

import (
	"strings"
	"unicode"
)

// ValidateWorkspaceID ensures workspace ids are non-empty and use a safe
// character set: A-Z, a-z, 0-9, '_', '-'.
func ValidateWorkspaceID(id WorkspaceID) error {
	value := string(id)
	if value == "" || strings.TrimSpace(value) != value {
		return ErrInvalidWorkspace
	}
	for _, r := range value {
		if r == '_' || r == '-' {
			continue
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		return ErrInvalidWorkspace
	}
	return nil
}

// NormalizeFileType lower-cases and trims a classifier. Empty input yields
// FileTypeJava.
func NormalizeFileType(value string) FileType {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return FileTypeJava
	}
	return FileType(trimmed)
}
