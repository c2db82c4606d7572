// Package registry maps source document names to legal code display names
// and canonical URLs.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/legichunk/internal/pattern"
)

// CodeEntry describes one legal code.
type CodeEntry struct {
	Key          string   `json:"key" yaml:"-"`
	DisplayName  string   `json:"display_name" yaml:"name"`
	CanonicalURL string   `json:"canonical_url,omitempty" yaml:"url"`
	Aliases      []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

type fileFormat struct {
	Codes           map[string]CodeEntry         `yaml:"codes"`
	ArticleURLs     map[string]map[string]string `yaml:"article_urls"`
	ArticleURLsFile string                       `yaml:"article_urls_file"`
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	entries map[string]CodeEntry // by key
	forms   map[string]string    // folded key/name/alias -> key

	inline  map[string]map[string]string
	urlFile string

	urlsOnce sync.Once
	urls     map[string]map[string]string // key -> normalised article id -> url
	urlsErr  error
}

// New builds a registry from entries. Entries without a Key are skipped.
func New(entries ...CodeEntry) *Registry {
	r := &Registry{
		entries: make(map[string]CodeEntry, len(entries)),
		forms:   make(map[string]string),
	}
	for _, e := range entries {
		r.add(e)
	}
	return r
}

// Load reads a registry file. Both the structured form (codes, article_urls,
// article_urls_file) and a flat {id: {name, url}} mapping are accepted.
// JSON files parse as YAML.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return parse(data, filepath.Dir(path))
}

// Parse builds a registry from YAML or JSON bytes. Relative
// article_urls_file paths resolve against baseDir.
func Parse(data []byte, baseDir string) (*Registry, error) {
	return parse(data, baseDir)
}

func parse(data []byte, baseDir string) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if len(f.Codes) == 0 && len(f.ArticleURLs) == 0 && f.ArticleURLsFile == "" {
		var flat map[string]CodeEntry
		if err := yaml.Unmarshal(data, &flat); err != nil {
			return nil, fmt.Errorf("parse registry: %w", err)
		}
		f.Codes = flat
	}

	r := New()
	for key, e := range f.Codes {
		e.Key = key
		r.add(e)
	}
	r.inline = f.ArticleURLs
	if f.ArticleURLsFile != "" {
		r.urlFile = f.ArticleURLsFile
		if !filepath.IsAbs(r.urlFile) && baseDir != "" {
			r.urlFile = filepath.Join(baseDir, r.urlFile)
		}
	}
	return r, nil
}

func (r *Registry) add(e CodeEntry) {
	if e.Key == "" {
		return
	}
	if e.DisplayName == "" {
		e.DisplayName = e.Key
	}
	r.entries[e.Key] = e
	for _, s := range append([]string{e.Key, e.DisplayName}, e.Aliases...) {
		if f := fold(s); f != "" {
			if _, taken := r.forms[f]; !taken {
				r.forms[f] = e.Key
			}
		}
	}
}

// Resolve maps a document name (usually a filename) to its code entry. It
// never fails: unknown names get a fallback entry named after the filename
// stem with no URL.
func (r *Registry) Resolve(documentName string) CodeEntry {
	stem := Stem(documentName)
	key := fold(stem)
	if k, ok := r.forms[key]; ok {
		return r.entries[k]
	}

	best := ""
	for form := range r.forms {
		if !strings.HasPrefix(key, form+" ") {
			continue
		}
		if len(form) > len(best) || (len(form) == len(best) && form < best) {
			best = form
		}
	}
	if best != "" {
		return r.entries[r.forms[best]]
	}

	return CodeEntry{Key: stem, DisplayName: strings.TrimSpace(strings.ReplaceAll(stem, "_", " "))}
}

// Lookup returns the entry registered under key.
func (r *Registry) Lookup(key string) (CodeEntry, bool) {
	e, ok := r.entries[key]
	return e, ok
}

// Codes lists every registered entry sorted by key.
func (r *Registry) Codes() []CodeEntry {
	out := make([]CodeEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of registered codes.
func (r *Registry) Len() int { return len(r.entries) }

// ArticleURL returns the known URL of an article within a code. Unknown
// articles return ("", false); URLs are never derived.
func (r *Registry) ArticleURL(code, articleID string) (string, bool) {
	if articleID == "" {
		return "", false
	}
	r.urlsOnce.Do(r.loadArticleURLs)
	u, ok := r.urls[code][pattern.NormalizeArticleID(articleID)]
	return u, ok && u != ""
}

// LoadArticleURLs forces the article URL mapping to load and reports any
// error reading the external file. The inline mapping is still served when
// the file fails.
func (r *Registry) LoadArticleURLs() error {
	r.urlsOnce.Do(r.loadArticleURLs)
	return r.urlsErr
}

func (r *Registry) loadArticleURLs() {
	r.urls = make(map[string]map[string]string)
	merge := func(src map[string]map[string]string) {
		for code, ids := range src {
			dst := r.urls[code]
			if dst == nil {
				dst = make(map[string]string, len(ids))
				r.urls[code] = dst
			}
			for id, u := range ids {
				dst[pattern.NormalizeArticleID(id)] = u
			}
		}
	}

	if r.urlFile != "" {
		data, err := os.ReadFile(r.urlFile)
		if err != nil {
			r.urlsErr = fmt.Errorf("read article urls: %w", err)
		} else {
			var fromFile map[string]map[string]string
			if err := yaml.Unmarshal(data, &fromFile); err != nil {
				r.urlsErr = fmt.Errorf("parse article urls: %w", err)
			} else {
				merge(fromFile)
			}
		}
	}
	// Inline entries win over the external file.
	merge(r.inline)
}

// Stem strips directories and the extension from a filename.
func Stem(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var accents = runes.Remove(runes.In(unicode.Mn))

// fold lower-cases, strips accents and collapses every run of non
// alphanumeric runes into one space.
func fold(s string) string {
	t := transform.Chain(norm.NFD, accents, norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var sb strings.Builder
	space := false
	for _, c := range folded {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(c)
			continue
		}
		space = true
	}
	return sb.String()
}
