package config

import "path/filepath"

// Keep reports whether a folder passes the filter. Includes are checked
// first (empty include list keeps everything), excludes drop matches from
// whatever survived. Patterns use filepath.Match globs against the folder's
// full name; a malformed pattern matches nothing.
func (f *FolderFilter) Keep(folder string) bool {
	if f == nil {
		return true
	}

	if len(f.Include) > 0 {
		included := false
		for _, pattern := range f.Include {
			if ok, err := filepath.Match(pattern, folder); err == nil && ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, pattern := range f.Exclude {
		if ok, err := filepath.Match(pattern, folder); err == nil && ok {
			return false
		}
	}
	return true
}

// Apply filters folders, preserving their order.
func (f *FolderFilter) Apply(folders []string) []string {
	if f == nil {
		return folders
	}
	kept := make([]string, 0, len(folders))
	for _, folder := range folders {
		if f.Keep(folder) {
			kept = append(kept, folder)
		}
	}
	return kept
}
