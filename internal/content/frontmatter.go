package content

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/quire/internal/errors"
)

var (
	datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)$`)
	tagPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

	yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)
)

// ParsedFile is a source file after front-matter extraction and
// classification, before entry splitting and rendering.
type ParsedFile struct {
	Kind           Kind
	Slug           string
	Path           string
	ModTime        time.Time
	Front          FrontMatter
	HasFrontMatter bool
	Date           time.Time
	Updated        time.Time
	Tags           []string
	Body           []byte
}

// ParseFile splits the leading metadata block from the body and decides
// whether the file is a post or a page. All errors are file scoped.
func ParseFile(src SourceFile) (*ParsedFile, error) {
	var fm FrontMatter

	hasFront := true
	body, err := frontmatter.MustParse(bytes.NewReader(src.Data), &fm, yamlFormat)
	if err != nil {
		if !stderrors.Is(err, frontmatter.ErrNotFound) {
			return nil, errors.FrontMatterMalformed(src.Path, "invalid front matter", err)
		}
		hasFront = false
		fm = FrontMatter{}
		body = src.Data
	}

	pf := &ParsedFile{
		Path:           src.Path,
		ModTime:        src.ModTime,
		Front:          fm,
		HasFrontMatter: hasFront,
		Body:           body,
	}

	dir, stem := splitPath(src.Path)
	match := datePrefix.FindStringSubmatch(stem)

	if match == nil && fm.Date == nil {
		pf.Kind = KindPage
		pf.Slug = pageSlug(dir, stem, fm.Slug)
		if pf.Slug == "" {
			return nil, errors.FrontMatterMalformed(src.Path, "empty slug", nil)
		}

		return pf, nil
	}

	pf.Kind = KindPost

	if !hasFront {
		return nil, errors.FrontMatterMalformed(src.Path, "post has no front matter", nil)
	}
	if strings.TrimSpace(fm.Title) == "" {
		return nil, errors.FrontMatterMalformed(src.Path, "post has no title", nil)
	}

	name := stem
	switch {
	case fm.Date != nil:
		pf.Date = fm.Date.Time
		if match != nil {
			name = match[2]
		}
	default:
		d, derr := ParseDate(match[1])
		if derr != nil {
			return nil, errors.FrontMatterMalformed(src.Path, "invalid date in file name", derr)
		}
		pf.Date = d.Time
		name = match[2]
	}

	if fm.Updated != nil {
		if fm.Updated.Before(pf.Date) {
			return nil, errors.FrontMatterMalformed(src.Path, "updated is before date", nil)
		}
		pf.Updated = fm.Updated.Time
	}

	tags, err := NormalizeTags(fm.Tags)
	if err != nil {
		return nil, errors.FrontMatterMalformed(src.Path, "invalid tags", err)
	}
	pf.Tags = tags

	pf.Slug = postSlug(dir, name, fm.Slug)
	if pf.Slug == "" {
		return nil, errors.FrontMatterMalformed(src.Path, "empty slug", nil)
	}

	return pf, nil
}

func splitPath(rel string) (dir, stem string) {
	dir, base := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")
	stem = strings.TrimSuffix(base, path.Ext(base))

	return dir, stem
}

func cleanSlug(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(path.Clean("/"+s), "/")
	if s == "." {
		return ""
	}

	return s
}

func postSlug(dir, name, override string) string {
	if override != "" {
		return cleanSlug(override)
	}

	return cleanSlug(path.Join(dir, name))
}

func pageSlug(dir, stem, override string) string {
	if override != "" {
		return cleanSlug(override)
	}

	return cleanSlug(path.Join(dir, stem))
}

// NormalizeTag case-folds a tag and joins inner whitespace with dashes.
func NormalizeTag(tag string) (string, error) {
	// Casers carry state, so each call gets its own.
	folded := cases.Fold().String(strings.TrimSpace(tag))
	folded = strings.Join(strings.Fields(folded), "-")
	if folded == "" {
		return "", fmt.Errorf("empty tag")
	}
	if !tagPattern.MatchString(folded) {
		return "", fmt.Errorf("tag %q may only contain a-z, 0-9 and single dashes", tag)
	}

	return folded, nil
}

// NormalizeTags normalizes, deduplicates and sorts a tag list.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))

	for _, raw := range tags {
		tag, err := NormalizeTag(raw)
		if err != nil {
			return nil, err
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)

	return out, nil
}
