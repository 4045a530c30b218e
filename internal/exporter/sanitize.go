package exporter

import "strings"

// SanitizeFilename makes a filename safe for common filesystems.
// - Replaces every character outside [A-Za-z0-9._-] with an underscore
// - Collapses runs of underscores into one
// - Strips a leading and a trailing underscore
func SanitizeFilename(name string) string {
	result := make([]rune, 0, len(name))
	for _, r := range name {
		if !isFilenameRune(r) {
			r = '_'
		}
		if r == '_' && len(result) > 0 && result[len(result)-1] == '_' {
			continue
		}
		result = append(result, r)
	}

	sanitized := string(result)
	sanitized = strings.TrimPrefix(sanitized, "_")
	sanitized = strings.TrimSuffix(sanitized, "_")
	return sanitized
}

func isFilenameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '.' || r == '_' || r == '-'
}
