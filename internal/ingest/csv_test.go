package ingest

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pagesCSV = "\ufeffURL , Title,H1,Content,Meta_Description,Importance,Entry_Point\n" +
	"https://site.test/,Home,,<p>Welcome <b>home</b></p>,,A,yes\n" +
	"https://site.test/guide,,Guide H1,Plain   text,A guide,b,\n" +
	"https://site.test/short\n"

const linksCSV = "source_url,target_url,anchor\n" +
	"https://site.test,/guide,Read the guide\n" +
	"https://SITE.test/guide/,https://site.test/,home\n" +
	"https://unknown.test/x,/y,lost\n"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestReadPages(t *testing.T) {
	pages, err := ReadPages(strings.NewReader(pagesCSV))
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, linkgraph.PageRecord{
		URL: "https://site.test/", Title: "Home", Content: "Welcome home", Importance: "A", EntryPoint: true,
	}, pages[0])
	assert.Equal(t, linkgraph.PageRecord{
		URL: "https://site.test/guide", Title: "Guide H1", Content: "Plain text A guide", Importance: "b",
	}, pages[1])
	assert.Equal(t, linkgraph.PageRecord{URL: "https://site.test/short"}, pages[2])
}

func TestReadLinksAndAttach(t *testing.T) {
	pages, err := ReadPages(strings.NewReader(pagesCSV))
	require.NoError(t, err)
	links, err := ReadLinks(strings.NewReader(linksCSV))
	require.NoError(t, err)
	require.Len(t, links, 3)

	pages, unmatched := AttachLinks(pages, links, quietLogger())
	assert.Equal(t, 1, unmatched)
	assert.Equal(t, []linkgraph.LinkRecord{{Target: "/guide", Anchor: "Read the guide"}}, pages[0].Links)
	assert.Equal(t, []linkgraph.LinkRecord{{Target: "https://site.test/", Anchor: "home"}}, pages[1].Links)
	assert.Empty(t, pages[2].Links)
}

func TestMissingColumns(t *testing.T) {
	tests := []struct {
		name    string
		read    func() error
		wantErr string
	}{
		{
			name: "links without anchor",
			read: func() error {
				_, err := ReadLinks(strings.NewReader("source,target\na,b\n"))
				return err
			},
			wantErr: "missing required columns: anchor, source_url, target_url",
		},
		{
			name: "pages without url",
			read: func() error {
				_, err := ReadPages(strings.NewReader("title,content\nx,y\n"))
				return err
			},
			wantErr: "missing required columns: url",
		},
		{
			name: "empty file",
			read: func() error {
				_, err := ReadPages(strings.NewReader(""))
				return err
			},
			wantErr: "missing required columns: url (empty file)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingColumns))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	pagesPath := filepath.Join(dir, "pages.csv")
	linksPath := filepath.Join(dir, "links.csv")
	require.NoError(t, os.WriteFile(pagesPath, []byte(pagesCSV), 0644))
	require.NoError(t, os.WriteFile(linksPath, []byte(linksCSV), 0644))

	records, err := LoadCSV(pagesPath, linksPath, quietLogger())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Len(t, records[0].Links, 1)

	withoutLinks, err := LoadCSV(pagesPath, "", quietLogger())
	require.NoError(t, err)
	assert.Empty(t, withoutLinks[0].Links)

	_, err = LoadCSV(filepath.Join(dir, "missing.csv"), "", quietLogger())
	assert.ErrorContains(t, err, "failed to load pages")

	_, err = LoadCSV(pagesPath, filepath.Join(dir, "missing.csv"), quietLogger())
	assert.ErrorContains(t, err, "failed to load links")
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "  already   plain\ntext ", expected: "already plain text"},
		{name: "markup", input: "<p>Hello <b>world</b></p><p>again</p>", expected: "Hello world again"},
		{name: "scripts dropped", input: "<div>keep<script>var x = 1;</script><style>p{}</style></div>", expected: "keep"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PlainText(tt.input))
		})
	}
}

func TestFilters(t *testing.T) {
	assert.True(t, IsExcluded("https://site.test/files/report.PDF"))
	assert.True(t, IsExcluded("https://site.test/img/logo.png?v=2"))
	assert.True(t, IsExcluded("https://site.test/wp-admin/edit"))
	assert.False(t, IsExcluded("https://site.test/blog/post"))
	assert.False(t, IsExcluded("https://site.test/blog/v1.2-release"))

	hosts := siteHosts("www.site.test")
	assert.Equal(t, []string{"www.site.test", "site.test"}, hosts)
	assert.Equal(t, []string{"site.test", "www.site.test"}, siteHosts("Site.Test"))

	assert.True(t, shouldFollow("https://site.test/guide", hosts))
	assert.True(t, shouldFollow("http://www.site.test/guide", hosts))
	assert.False(t, shouldFollow("https://other.test/guide", hosts))
	assert.False(t, shouldFollow("mailto:team@site.test", hosts))
	assert.False(t, shouldFollow("https://site.test/brochure.pdf", hosts))
}
