// Package sourcepath translates debuggee source paths between the relative
// form used inside the debug core and the absolute form used at the
// front-end boundary.
//
// The translation prefix is derived once per session from the session's
// source maps: every original source listed by a map is resolved against the
// map's owning file, and the prefix is the longest common ancestor directory
// of all resolved sources (with a trailing separator). A session without
// source maps gets an empty prefix, making both translations the identity.
package sourcepath

import (
	"encoding/json"
	"path/filepath"
	"strings"

	gosourcemap "github.com/go-sourcemap/sourcemap"

	"github.com/mstrand/haltpoint/internal/errors"
)

// SourceMap is one source map handed to a session: the path of the file the
// map was loaded from and the raw map contents. Path should be absolute; the
// configuration loader takes care of that.
type SourceMap struct {
	Path     string
	Contents []byte
}

// Translator converts debuggee paths between relative and absolute form.
type Translator struct {
	prefix  string
	sources []string
	content map[string]contentRef
}

// contentRef ties a resolved source back to the consumer that can serve its
// embedded contents. name is the source as the consumer keys it, with the
// map's sourceRoot already applied.
type contentRef struct {
	consumer *gosourcemap.Consumer
	name     string
}

// NewTranslator parses and validates the given source maps and derives the
// session's source prefix.
func NewTranslator(maps []SourceMap) (*Translator, error) {
	t := &Translator{content: make(map[string]contentRef)}

	for _, m := range maps {
		consumer, err := gosourcemap.Parse("", m.Contents)
		if err != nil {
			return nil, errors.SourceMapInvalid(m.Path, err)
		}

		var raw struct {
			SourceRoot string   `json:"sourceRoot"`
			Sources    []string `json:"sources"`
		}
		if err := json.Unmarshal(m.Contents, &raw); err != nil {
			return nil, errors.SourceMapInvalid(m.Path, err)
		}

		base := filepath.Dir(m.Path)
		for _, name := range raw.Sources {
			rooted := name
			if raw.SourceRoot != "" && !filepath.IsAbs(rooted) {
				rooted = filepath.Join(raw.SourceRoot, rooted)
			}
			resolved := rooted
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(base, resolved)
			}
			resolved = filepath.Clean(resolved)

			if _, seen := t.content[resolved]; !seen {
				t.content[resolved] = contentRef{consumer: consumer, name: rooted}
				t.sources = append(t.sources, resolved)
			}
		}
	}

	t.prefix = commonAncestor(t.sources)
	return t, nil
}

// Prefix returns the session's source prefix, empty when no source maps were
// given. A non-empty prefix ends with the path separator.
func (t *Translator) Prefix() string {
	return t.prefix
}

// Sources lists every resolved original source in first-seen order.
func (t *Translator) Sources() []string {
	return append([]string(nil), t.sources...)
}

// ToRelative strips the first occurrence of the prefix from p.
func (t *Translator) ToRelative(p string) string {
	if t.prefix == "" {
		return p
	}
	return strings.Replace(p, t.prefix, "", 1)
}

// ToAbsolute prepends the prefix to p unconditionally.
func (t *Translator) ToAbsolute(p string) string {
	return t.prefix + p
}

// SourceContent returns the embedded sourcesContent for a resolved source
// path, when the owning map carries it.
func (t *Translator) SourceContent(path string) (string, bool) {
	ref, ok := t.content[path]
	if !ok {
		return "", false
	}
	content := ref.consumer.SourceContent(ref.name)
	if content == "" {
		return "", false
	}
	return content, true
}

// commonAncestor computes the longest common ancestor directory of the given
// paths, with a trailing separator. No paths means no prefix.
func commonAncestor(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	sep := string(filepath.Separator)
	common := strings.Split(filepath.Dir(paths[0]), sep)
	for _, p := range paths[1:] {
		parts := strings.Split(filepath.Dir(p), sep)
		if len(parts) < len(common) {
			common = common[:len(parts)]
		}
		for i := range common {
			if common[i] != parts[i] {
				common = common[:i]
				break
			}
		}
	}

	prefix := strings.Join(common, sep)
	if !strings.HasSuffix(prefix, sep) {
		prefix += sep
	}
	return prefix
}
