package testcase

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileExtension is the extension test case files must have.
const FileExtension = ".json"

// IsSingleFile reports whether root names a single test case file rather
// than a directory to search.
func IsSingleFile(root string) bool {
	return strings.HasSuffix(root, FileExtension)
}

// Discover returns the test case files under root, sorted. A root ending in
// .json is returned as-is; a directory is walked recursively and each match
// is returned as root followed by its relative path.
func Discover(root string) ([]string, error) {
	if IsSingleFile(root) {
		if _, err := os.Stat(root); err != nil {
			return nil, fmt.Errorf("test file %q: %w", root, err)
		}

		return []string{root}, nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("test directory %q: %w", root, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%q is neither a directory nor a %s file", root, FileExtension)
	}

	var paths []string

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || filepath.Ext(path) != FileExtension {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		paths = append(paths, joinRoot(root, rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", root, err)
	}

	sort.Strings(paths)

	return paths, nil
}

// joinRoot joins rel below root without cleaning root, so "." yields
// "./a.json" and the operator's spelling of the path is kept.
func joinRoot(root, rel string) string {
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return root + rel
	}

	return root + string(filepath.Separator) + rel
}
