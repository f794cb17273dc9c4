package importer

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pbaille/folio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html>
<head>
	<title>  Swift
	notes </title>
	<meta name="keywords" content="Swift, concurrency, ,actors">
	<meta name="folio:domain" content="Programming">
	<meta name="folio:category" content="Languages">
	<meta name="folio:status" content="Draft">
	<meta name="folio:genre" content="Tutorial">
	<meta name="folio:topic" content="Async, Memory">
	<meta name="folio:unknown" content="ignored">
	<meta name="description" content="ignored too">
</head>
<body><meta name="folio:medium" content="not in head"></body>
</html>`

func TestParse(t *testing.T) {
	src, err := Parse(strings.NewReader(page), "/docs/swift.html")
	require.NoError(t, err)

	assert.Equal(t, "Swift notes", src.Title)
	assert.Equal(t, "/docs/swift.html", src.Path)
	assert.True(t, src.Visible)
	assert.Equal(t, "Programming", src.Domain)
	assert.Equal(t, "Languages", src.Category)
	assert.Equal(t, "Draft", src.Status)
	assert.Empty(t, src.Phase)
	assert.Equal(t, []string{"Swift", "concurrency", "actors"}, src.Names[domain.KindTag])
	assert.Equal(t, []string{"Tutorial"}, src.Names[domain.KindGenre])
	assert.Equal(t, []string{"Async", "Memory"}, src.Names[domain.KindTopic])
	assert.Empty(t, src.Names[domain.KindMedium])
}

func TestParseStableID(t *testing.T) {
	a, err := Parse(strings.NewReader(page), "/docs/swift.html")
	require.NoError(t, err)
	b, err := Parse(strings.NewReader(page), "/docs/swift.html")
	require.NoError(t, err)
	c, err := Parse(strings.NewReader(page), "/docs/other.html")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestParseExplicitIDAndHidden(t *testing.T) {
	src, err := Parse(strings.NewReader(`<html><head>
		<meta name="folio:id" content="doc-42">
		<meta name="robots" content="NOINDEX, nofollow">
	</head></html>`), "/docs/untitled-note.html")
	require.NoError(t, err)

	assert.Equal(t, "doc-42", src.ID)
	assert.False(t, src.Visible)
	assert.Equal(t, "untitled-note", src.Title)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swift.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o644))

	src, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Path)
	assert.Equal(t, "Swift notes", src.Title)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/swift" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	defer srv.Close()

	src, err := Load(srv.URL + "/swift")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/swift", src.Path)
	assert.Equal(t, "Programming", src.Domain)

	_, err = Fetch(srv.URL + "/missing")
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com"))
	assert.True(t, IsURL(" www.example.com"))
	assert.False(t, IsURL("notes/swift.html"))
}
