package constants

import "strings"

// DefaultSuffixes holds the file suffixes picked up from the watched directory.
var DefaultSuffixes = []string{".csv"}

// Terminal subdirectories created under the watched directory.
const (
	DefaultUploadedDir = "uploaded"
	DefaultErrorsDir   = "errors"
)

// Listing markers that never count as files.
const (
	SelfDirMarker   = "."
	ParentDirMarker = ".."
)

// IsDirMarker reports whether name is the self or parent directory entry.
func IsDirMarker(name string) bool {
	return name == SelfDirMarker || name == ParentDirMarker
}

// NormalizeSuffix trims whitespace and makes sure the suffix starts with a dot.
// Case is preserved; suffix matching is case-sensitive.
func NormalizeSuffix(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return s
}

// HasSuffix reports whether name ends with one of suffixes.
func HasSuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
