package envy

import (
	"path/filepath"
	"strings"
)

// ActiveFiles returns the registered files whose parent directory is dir or
// an ancestor of dir, in registration order. Paths are compared lexically,
// so both dir and files must already be canonical.
func ActiveFiles(dir string, files []string) []string {
	var active []string
	for _, file := range files {
		if isWithin(dir, filepath.Dir(file)) {
			active = append(active, file)
		}
	}
	return active
}

// isWithin reports whether dir equals root or is nested beneath it.
func isWithin(dir, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(dir))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// MatchPattern returns the variables of the first rule whose pattern matches
// dir. Rules are tried in registration order.
func MatchPattern(dir string, rules []PatternRule) ([]string, bool) {
	for _, rule := range rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(dir) {
			return rule.Env, true
		}
	}
	return nil, false
}
