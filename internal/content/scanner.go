package content

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	siteerrors "git.home.luguber.info/inful/sitegen/internal/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Scanner walks a content root and produces the page inventory for a
// build or dev pass.
type Scanner struct {
	root string
}

// NewScanner creates a scanner for the given content root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: filepath.Clean(root)}
}

// Scan walks the content root recursively and returns one ContentEntry
// per recognized content file, excluding reserved system files and
// hidden files. A missing content root yields an empty result: a project
// may legitimately have zero pages. Any other walk failure is fatal.
func (s *Scanner) Scan() ([]ContentEntry, error) {
	if _, err := os.Stat(s.root); err != nil {
		if os.IsNotExist(err) {
			slog.Debug("content root does not exist, no pages", logfields.Dir(s.root))
			return nil, nil
		}
		return nil, siteerrors.Wrap(err, siteerrors.CategoryFileSystem, siteerrors.SeverityFatal, "stat content root").WithContext("dir", s.root)
	}

	var entries []ContentEntry
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			// Hidden directories are invisible to the scanner entirely.
			if path != s.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || IsSystemFile(name) {
			return nil
		}
		kind, ok := KindForExtension(filepath.Ext(name))
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		entries = append(entries, ContentEntry{
			FilePath:  path,
			RoutePath: RouteForFile(rel),
			Kind:      kind,
		})
		return nil
	})
	if err != nil {
		return nil, siteerrors.Wrap(err, siteerrors.CategoryFileSystem, siteerrors.SeverityFatal, "walk content root").WithContext("dir", s.root)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RoutePath < entries[j].RoutePath })
	slog.Debug("content scan complete", logfields.Dir(s.root), logfields.Count(len(entries)))
	return entries, nil
}

// RouteForFile maps a content-root-relative file path to its route:
// the extension is stripped, "index" maps to the parent directory route,
// and separators normalize to forward slashes regardless of host OS.
func RouteForFile(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))

	dir, base := "", rel
	if idx := strings.LastIndex(rel, "/"); idx >= 0 {
		dir, base = rel[:idx], rel[idx+1:]
	}
	if base == "index" {
		if dir == "" {
			return "/"
		}
		return "/" + dir
	}
	if dir == "" {
		return "/" + base
	}
	return "/" + dir + "/" + base
}

// CheckDuplicateRoutes verifies route uniqueness across the inventory.
// A collision means two source files would publish to the same output
// location, so it aborts the build before any rendering begins.
func CheckDuplicateRoutes(entries []ContentEntry) error {
	seen := make(map[string]string, len(entries))
	for _, e := range entries {
		if prev, ok := seen[e.RoutePath]; ok {
			return siteerrors.DuplicateRoute(e.RoutePath).
				WithContext("first", prev).
				WithContext("second", e.FilePath)
		}
		seen[e.RoutePath] = e.FilePath
	}
	return nil
}
