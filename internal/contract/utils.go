package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Share label constants.
const (
	DominantValue = "Dominant" // Dominant share
	MajorValue    = "Major"    // Major share
	MinorValue    = "Minor"    // Minor share
	TraceValue    = "Trace"    // Trace share
)

// Color variables for console output.
var (
	DominantColor = color.New(color.FgRed, color.Bold)     // DominantColor marks the biggest contributors.
	MajorColor    = color.New(color.FgMagenta, color.Bold) // MajorColor marks a large share.
	MinorColor    = color.New(color.FgYellow)              // MinorColor marks a visible share.
	TraceColor    = color.New(color.FgCyan)                // TraceColor marks a negligible share.
)

// GetPlainLabel returns a plain text label describing a percentage share
// of the total line count. This is the core logic used for CSV, JSON, and table printing.
func GetPlainLabel(percentage float64) string {
	switch {
	case percentage >= 25:
		return DominantValue
	case percentage >= 10:
		return MajorValue
	case percentage >= 1:
		return MinorValue
	default:
		return TraceValue
	}
}

// GetColorLabel returns a colored text label for console output (table).
func GetColorLabel(percentage float64) string {
	text := GetPlainLabel(percentage)

	switch text {
	case DominantValue:
		return DominantColor.Sprint(text)
	case MajorValue:
		return MajorColor.Sprint(text)
	case MinorValue:
		return MinorColor.Sprint(text)
	default:
		return TraceColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. An empty path selects os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// ShouldIgnore returns true if the given slash-separated relative path matches any of
// the exclude patterns. It supports simple glob patterns (using filepath.Match) when the
// pattern contains wildcard characters (*, ?, [ ]). Patterns ending with '/' are treated
// as directory prefixes. Patterns starting with '.' are treated as suffix (extension) matches.
// A user can provide patterns like "vendor/", "testdata/", "*.min.js".
func ShouldIgnore(path string, excludes []string) bool {
	for _, ex := range excludes {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}

		// If the pattern contains glob characters, try filepath.Match.
		if strings.ContainsAny(ex, "*?[") {
			pat := strings.ReplaceAll(ex, "**", "*")
			if ok, err := filepath.Match(pat, path); err == nil && ok {
				return true
			}
			// Also try matching against the base filename (e.g. *.min.js)
			if ok, err := filepath.Match(pat, filepath.Base(path)); err == nil && ok {
				return true
			}
			continue
		}

		// Handle prefix, suffix, or substring matches
		switch {
		case strings.HasSuffix(ex, "/"):
			if strings.HasPrefix(path+"/", ex) {
				return true
			}
		case strings.HasPrefix(ex, "."):
			if strings.HasSuffix(path, ex) {
				return true
			}
		case strings.Contains(path, ex):
			return true
		}
	}
	return false
}

// GetCacheDBFilePath returns the path to the SQLite DB file for result storage.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".locstat_cache.db"
	}
	return filepath.Join(homeDir, ".locstat_cache.db")
}

// GetAnalysisDBFilePath returns the path to the SQLite DB file for analysis storage.
func GetAnalysisDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".locstat_analysis.db"
	}
	return filepath.Join(homeDir, ".locstat_analysis.db")
}

// TruncatePath truncates a file path to a maximum width with ellipsis prefix.
// Requires maxWidth > 3 to ensure there's space for both the "..." prefix and at least one character of content.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
