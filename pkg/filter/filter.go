package filter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

// Rules decide which files in the input directory are ingested
type Rules struct {
	Extension string   // e.g. ".json", matched case-insensitively
	Blacklist []string // regexes matched against the absolute path
	Whitelist []string // exceptions to the blacklist
}

// Eligible reports whether path has the recognized extension and passes
// the blacklist/whitelist filter.
func (r Rules) Eligible(path string) (bool, error) {
	if !HasExtension(path, r.Extension) {
		return false, nil
	}
	return ShouldIndexFile(path, r.Blacklist, r.Whitelist)
}

// Validate checks that every pattern compiles
func (r Rules) Validate() error {
	for _, list := range [][]string{r.Blacklist, r.Whitelist} {
		for _, pattern := range list {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
			}
		}
	}
	return nil
}

// HasExtension reports whether path ends in ext, ignoring case.
// An empty ext matches every file.
func HasExtension(path, ext string) bool {
	if ext == "" {
		return true
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.EqualFold(filepath.Ext(path), ext)
}

// ShouldIndexFile checks if a file should be indexed
// Returns: NOT matches_blacklist OR matches_whitelist
// Equivalent: File rejected if matches_blacklist AND NOT matches_whitelist
func ShouldIndexFile(filePath string, blacklist []string, whitelist []string) (bool, error) {
	// Normalize path to absolute
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return false, err
	}

	// Check blacklist first
	matchesBlacklist := false
	matchedPattern := ""
	for _, pattern := range blacklist {
		matched, err := regexp.MatchString(pattern, absPath)
		if err != nil {
			slog.Debug("Invalid regex pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			matchesBlacklist = true
			matchedPattern = pattern
			break
		}
	}

	if !matchesBlacklist {
		return true, nil
	}

	// Matches blacklist - check if whitelist provides exception
	for _, pattern := range whitelist {
		matched, err := regexp.MatchString(pattern, absPath)
		if err != nil {
			continue
		}
		if matched {
			slog.Debug("Whitelist exception matched - allowing file", "pattern", pattern, "path", absPath)
			return true, nil
		}
	}

	slog.Debug("Rejecting file", "path", absPath, "blacklist_pattern", matchedPattern)
	return false, nil
}
