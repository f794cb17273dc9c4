// Package importer reads HTML documents into document sources ready for
// reconciliation.
//
// Classification is read from the document head:
//
//	<title>Swift notes</title>
//	<meta name="keywords" content="swift, concurrency">
//	<meta name="folio:id" content="...">
//	<meta name="folio:domain" content="Programming">
//	<meta name="folio:genre" content="Tutorial, Reference">
//	<meta name="robots" content="noindex">
//
// Multi-valued kinds take comma-separated lists; "keywords" adds tags.
package importer

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/folio/internal/domain"
	"golang.org/x/net/html"
)

const maxBody = 5 * 1024 * 1024

// Load reads a document from a local path or an http(s) URL
func Load(location string) (domain.Source, error) {
	if IsURL(location) {
		return Fetch(location)
	}

	abs, err := filepath.Abs(location)
	if err != nil {
		return domain.Source{}, fmt.Errorf("resolve path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return domain.Source{}, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	return Parse(io.LimitReader(f, maxBody), abs)
}

// Fetch retrieves a document over HTTP
func Fetch(rawURL string) (domain.Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.Source{}, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.Source{}, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return domain.Source{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "folio/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return domain.Source{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Source{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return Parse(io.LimitReader(resp.Body, maxBody), u.String())
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

// Parse builds a source from HTML. Documents without a folio:id get a
// stable ID derived from their location.
func Parse(r io.Reader, location string) (domain.Source, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return domain.Source{}, fmt.Errorf("parse html: %w", err)
	}

	src := domain.Source{
		Path:    location,
		Visible: true,
		Names:   make(map[domain.Kind][]string),
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "body":
				return
			case "title":
				if src.Title == "" && n.FirstChild != nil {
					src.Title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
				}
			case "meta":
				applyMeta(&src, attr(n, "name"), attr(n, "content"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if src.ID == "" {
		src.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(location)).String()
	}
	if src.Title == "" {
		src.Title = strings.TrimSuffix(filepath.Base(location), filepath.Ext(location))
	}
	return src, nil
}

func applyMeta(src *domain.Source, name, content string) {
	name = strings.ToLower(strings.TrimSpace(name))
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	switch name {
	case "keywords":
		src.Names[domain.KindTag] = append(src.Names[domain.KindTag], splitList(content)...)
		return
	case "robots":
		if strings.Contains(strings.ToLower(content), "noindex") {
			src.Visible = false
		}
		return
	case "folio:id":
		src.ID = content
		return
	}

	field, ok := strings.CutPrefix(name, "folio:")
	if !ok {
		return
	}
	kind, err := domain.ParseKind(field)
	if err != nil {
		return
	}
	switch kind {
	case domain.KindDomain:
		src.Domain = content
	case domain.KindCategory:
		src.Category = content
	case domain.KindStatus:
		src.Status = content
	case domain.KindPhase:
		src.Phase = content
	default:
		src.Names[kind] = append(src.Names[kind], splitList(content)...)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
