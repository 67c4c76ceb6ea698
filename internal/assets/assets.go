// Package assets content-addresses static files and rewrites clean asset
// references in generated HTML into hashed, cache-busted URLs.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	siteerrors "git.home.luguber.info/inful/sitegen/internal/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// URLPrefix is the fixed clean-URL prefix static assets are referenced
// under. Hashed URLs share the prefix; only the filename changes.
const URLPrefix = "/public/"

// hashLength is the number of hex characters of the content digest
// embedded in hashed filenames.
const hashLength = 8

// Entry is one static asset known to the map.
type Entry struct {
	SourcePath string // absolute path of the source file
	RelPath    string // path relative to the asset root, forward slashes
	HashedRel  string // RelPath with the content hash embedded
	CleanURL   string // public URL without hash (base path + prefix + RelPath)
	HashedURL  string // public URL with hash
}

// Map is the lookup table from clean asset URLs to hashed ones, built
// once per build or dev session and replaced wholesale on invalidation.
type Map struct {
	entries  []Entry
	byClean  map[string]string
	byHashed map[string]Entry
}

// BuildMap walks the asset root, hashes every regular file and returns
// the resulting Map. A missing or unreadable asset root yields an empty
// map, not an error: both the dev server and the static builder must
// tolerate a project with no static assets.
func BuildMap(assetRoot, basePath string) (*Map, error) {
	m := &Map{
		byClean:  map[string]string{},
		byHashed: map[string]Entry{},
	}

	if _, err := os.Stat(assetRoot); err != nil {
		slog.Debug("asset root not readable, empty asset map", logfields.Dir(assetRoot))
		return m, nil
	}

	err := filepath.WalkDir(assetRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(assetRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		hashed := HashedName(rel, HashBytes(data))
		entry := Entry{
			SourcePath: path,
			RelPath:    rel,
			HashedRel:  hashed,
			CleanURL:   basePath + URLPrefix + rel,
			HashedURL:  basePath + URLPrefix + hashed,
		}
		m.entries = append(m.entries, entry)
		m.byClean[entry.CleanURL] = entry.HashedURL
		m.byHashed[entry.HashedURL] = entry
		return nil
	})
	if err != nil {
		return nil, siteerrors.Wrap(err, siteerrors.CategoryAsset, siteerrors.SeverityFatal, "walk asset root").WithContext("dir", assetRoot)
	}

	sort.Slice(m.entries, func(i, j int) bool { return m.entries[i].RelPath < m.entries[j].RelPath })
	slog.Debug("asset map built", logfields.Dir(assetRoot), logfields.Count(len(m.entries)))
	return m, nil
}

// HashBytes computes the truncated content digest used in hashed
// filenames. Identical bytes always yield the identical digest, in the
// same process or across processes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:hashLength]
}

// HashedName embeds a content hash immediately before the extension:
// "img/logo.png" -> "img/logo-<hash>.png".
func HashedName(rel, hash string) string {
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + "-" + hash + ext
}

// Entries returns all known assets sorted by relative path.
func (m *Map) Entries() []Entry {
	return m.entries
}

// Len returns the number of assets in the map.
func (m *Map) Len() int { return len(m.entries) }

// refGuards are the characters that must immediately precede a clean
// reference for it to be rewritten. This guards against rewriting a URL
// that merely contains the clean path as a substring of unrelated text.
var refGuards = []string{`"`, `'`, `(`, `=`}

// isRefTerminator reports whether c may immediately follow a clean
// reference. Anything else means the match is a prefix of a longer path
// ("app.js" inside "app.js.map", or a clean name inside its own hashed
// form) and must not be rewritten.
func isRefTerminator(c byte) bool {
	switch c {
	case '"', '\'', ')', '?', '#', '<', '>', ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

// Rewrite replaces every guarded clean asset reference in html with its
// hashed URL. A reference rewrites only when terminated by a non-path
// character, so rewriting output that already carries hashed URLs is a
// no-op, extensionless assets included.
func (m *Map) Rewrite(html string) string {
	for _, e := range m.entries {
		for _, g := range refGuards {
			html = replaceBounded(html, g+e.CleanURL, g+e.HashedURL)
		}
	}
	return html
}

// replaceBounded is strings.ReplaceAll with a right-boundary check on
// every occurrence.
func replaceBounded(s, old, new string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, old)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := i + len(old)
		if end < len(s) && !isRefTerminator(s[end]) {
			b.WriteString(s[:end])
			s = s[end:]
			continue
		}
		b.WriteString(s[:i])
		b.WriteString(new)
		s = s[end:]
	}
}

// ReverseResolve maps an inbound hashed URL back to the asset's source
// file on disk. Dev-only: resolution is a reverse lookup through the
// same map, never a re-derivation of the hash from the request. The
// second return is false when the URL is not a known hashed asset.
func (m *Map) ReverseResolve(hashedURL string) (string, bool) {
	e, ok := m.byHashed[hashedURL]
	if !ok {
		return "", false
	}
	return e.SourcePath, true
}
