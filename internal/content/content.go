// Package content loads the landing page copy from markdown files with YAML
// front matter.
package content

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

//go:embed files/*.md
var embedded embed.FS

const landingFile = "landing.md"

var ErrNotFound = errors.New("content: not found")

// Landing is the copy shown on the landing page. LeadHTML is sanitized.
type Landing struct {
	Title            string
	Description      string
	Brand            string
	CTA              string
	HeadlineLead     string
	HeadlineEmphasis string
	HeadlineTail     string
	LaunchLabel      string
	BackgroundVideo  string
	LeadHTML         string
}

type landingFrontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Brand       string `yaml:"brand"`
	CTA         string `yaml:"cta"`
	Headline    struct {
		Lead     string `yaml:"lead"`
		Emphasis string `yaml:"emphasis"`
		Tail     string `yaml:"tail"`
	} `yaml:"headline"`
	LaunchLabel     string `yaml:"launch_label"`
	BackgroundVideo string `yaml:"background_video"`
}

// Loader reads and caches landing copy. With a zero TTL the copy is read
// once.
type Loader struct {
	fsys   fs.FS
	ttl    time.Duration
	md     goldmark.Markdown
	policy *bluemonday.Policy
	now    func() time.Time

	mu      sync.Mutex
	cached  *Landing
	expires time.Time
}

// NewLoader reads from dir when set, otherwise from the copy compiled into
// the binary. Directory content is re-read after ttl so copy edits show up
// without a restart.
func NewLoader(dir string, ttl time.Duration) *Loader {
	var fsys fs.FS
	if dir = strings.TrimSpace(dir); dir != "" {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embedded, "files")
		if err != nil {
			panic(err)
		}
		fsys = sub
		ttl = 0
	}
	return &Loader{
		fsys:   fsys,
		ttl:    ttl,
		md:     goldmark.New(),
		policy: bluemonday.UGCPolicy(),
		now:    time.Now,
	}
}

func (l *Loader) Landing() (Landing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.cached != nil && (l.ttl <= 0 || now.Before(l.expires)) {
		return *l.cached, nil
	}
	page, err := l.read(landingFile)
	if err != nil {
		if l.cached != nil {
			// keep serving the last good copy
			return *l.cached, err
		}
		return Landing{}, err
	}
	l.cached = &page
	l.expires = now.Add(l.ttl)
	return page, nil
}

func (l *Loader) read(name string) (Landing, error) {
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Landing{}, ErrNotFound
		}
		return Landing{}, fmt.Errorf("content: read %s: %w", name, err)
	}

	fm, body := splitFrontMatter(string(data))
	var front landingFrontMatter
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Landing{}, fmt.Errorf("content: parse front matter %s: %w", name, err)
		}
	}

	var buf bytes.Buffer
	if err := l.md.Convert([]byte(body), &buf); err != nil {
		return Landing{}, fmt.Errorf("content: render %s: %w", name, err)
	}

	page := Landing{
		Title:            strings.TrimSpace(front.Title),
		Description:      strings.TrimSpace(front.Description),
		Brand:            firstNonEmpty(front.Brand, "Flowweave"),
		CTA:              firstNonEmpty(front.CTA, "SIGN UP"),
		HeadlineLead:     strings.TrimSpace(front.Headline.Lead),
		HeadlineEmphasis: strings.TrimSpace(front.Headline.Emphasis),
		HeadlineTail:     strings.TrimSpace(front.Headline.Tail),
		LaunchLabel:      firstNonEmpty(front.LaunchLabel, "Open app"),
		BackgroundVideo:  strings.TrimSpace(front.BackgroundVideo),
		LeadHTML:         strings.TrimSpace(l.policy.Sanitize(buf.String())),
	}
	if page.Title == "" {
		page.Title = page.Brand
	}
	return page, nil
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
