package database

import (
	"path/filepath"
	"strings"
)

// SanitizeColumnName sanitizes a column name for SQL compatibility.
// - Replaces invalid characters with underscores
// - Prefixes with "col_" if the name starts with a digit
// - Returns "unnamed" for empty names
func SanitizeColumnName(name string) string {
	return sanitizeIdentifier(name, "col_", "unnamed")
}

// SanitizeTableName derives a snapshot table name from an export filename,
// dropping extensions such as ".csv" or ".csv.gz".
func SanitizeTableName(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == string(filepath.Separator) {
		return "export"
	}
	for ext := filepath.Ext(base); ext != "" && ext != base; ext = filepath.Ext(base) {
		base = strings.TrimSuffix(base, ext)
	}
	return sanitizeIdentifier(base, "t_", "export")
}

func sanitizeIdentifier(name, digitPrefix, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}

	result := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			result = append(result, r)
		} else {
			result = append(result, '_')
		}
	}

	sanitized := string(result)
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = digitPrefix + sanitized
	}
	return sanitized
}
