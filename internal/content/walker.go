package content

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/logging"
)

// IgnoreFileName is read from the content root on every walk.
const IgnoreFileName = ".quireignore"

// DefaultExtensions are the content extensions recognized when none are configured.
var DefaultExtensions = []string{".md", ".markdown"}

// IsEditorTemp reports names that editors create while saving.
func IsEditorTemp(name string) bool {
	switch {
	case name == "4913":
		return true
	case strings.HasSuffix(name, "~"):
		return true
	case len(name) > 1 && strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#"):
		return true
	}

	return false
}

// Ignorer decides which root-relative paths are pruned.
type Ignorer struct {
	patterns []string
}

// NewIgnorer builds an Ignorer from doublestar patterns. Patterns containing
// a slash match the whole relative path; others match any single component.
func NewIgnorer(patterns []string) *Ignorer {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		p = strings.TrimSuffix(p, "/")
		p = strings.TrimPrefix(p, "/")
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			continue
		}
		cleaned = append(cleaned, p)
	}

	return &Ignorer{patterns: cleaned}
}

// Patterns returns the effective pattern list.
func (ig *Ignorer) Patterns() []string {
	return append([]string(nil), ig.patterns...)
}

// Match reports whether rel should be skipped.
func (ig *Ignorer) Match(rel string) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == "" {
		return false
	}

	parts := strings.Split(rel, "/")
	for _, part := range parts {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	if IsEditorTemp(parts[len(parts)-1]) {
		return true
	}

	for _, pattern := range ig.patterns {
		if strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
			continue
		}
		for _, part := range parts {
			if ok, _ := doublestar.Match(pattern, part); ok {
				return true
			}
		}
	}

	return false
}

// LoadIgnorer combines the root's configured patterns with the lines of
// its ignore file. A missing ignore file is not an error.
func LoadIgnorer(fs afero.Fs, root ContentRoot) (*Ignorer, error) {
	patterns := append([]string(nil), root.Ignore...)

	data, err := afero.ReadFile(fs, filepath.Join(root.Path, IgnoreFileName))
	switch {
	case err == nil:
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			patterns = append(patterns, scanner.Text())
		}
	case os.IsNotExist(err):
	default:
		return NewIgnorer(patterns), err
	}

	return NewIgnorer(patterns), nil
}

// Walker enumerates candidate source files under a content root.
type Walker struct {
	fs         afero.Fs
	root       ContentRoot
	extensions map[string]bool
	logger     logging.Logger
}

// NewWalker creates a walker over fs. Pass afero.NewOsFs() in production.
func NewWalker(fs afero.Fs, root ContentRoot, logger logging.Logger) *Walker {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	w := &Walker{
		fs:     fs,
		root:   root,
		logger: logger.WithComponent("walker"),
	}

	return w.WithExtensions(DefaultExtensions...)
}

// WithExtensions replaces the recognized content extensions.
func (w *Walker) WithExtensions(exts ...string) *Walker {
	w.extensions = make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.extensions[ext] = true
	}

	return w
}

// Walk returns every candidate file in lexical path order along with
// file-scoped read errors. The returned error is non-nil only when the
// root itself cannot be enumerated.
func (w *Walker) Walk(ctx context.Context) ([]SourceFile, []error, error) {
	rootPath := w.root.Path

	info, err := w.fs.Stat(rootPath)
	if err != nil {
		return nil, nil, errors.RootUnreadable(rootPath, err)
	}
	if !info.IsDir() {
		return nil, nil, errors.RootUnreadable(rootPath, os.ErrInvalid).
			WithContext("reason", "not a directory")
	}

	var fileErrs []error

	ignorer, err := LoadIgnorer(w.fs, w.root)
	if err != nil {
		fileErrs = append(fileErrs, errors.FileUnreadable(IgnoreFileName, err))
	}

	var files []SourceFile

	walkErr := afero.Walk(w.fs, rootPath, func(p string, fi os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(rootPath, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == "." {
				return err
			}
			fileErrs = append(fileErrs, errors.FileUnreadable(rel, err))
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if rel == "." {
			return nil
		}

		if ignorer.Match(rel) {
			if fi.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if fi.IsDir() || !fi.Mode().IsRegular() {
			return nil
		}

		if !w.extensions[strings.ToLower(path.Ext(rel))] {
			return nil
		}

		data, readErr := afero.ReadFile(w.fs, p)
		if readErr != nil {
			fileErrs = append(fileErrs, errors.FileUnreadable(rel, readErr))

			return nil
		}

		files = append(files, SourceFile{Path: rel, ModTime: fi.ModTime(), Data: data})

		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, fileErrs, ctx.Err()
		}

		return nil, fileErrs, errors.RootUnreadable(rootPath, walkErr)
	}

	w.logger.Debug(ctx, "Walked content root",
		"root", rootPath,
		"files", len(files),
		"file_errors", len(fileErrs))

	return files, fileErrs, nil
}
