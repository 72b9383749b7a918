package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/sirupsen/logrus"
)

// ErrMissingColumns is returned when a CSV header lacks a required column
var ErrMissingColumns = errors.New("missing required columns")

var (
	pageColumns = []string{"url"}
	linkColumns = []string{"source_url", "target_url", "anchor"}
)

// LinkRow is one row of a links CSV
type LinkRow struct {
	Source string
	Target string
	Anchor string
}

type table struct {
	columns map[string]int
	rows    [][]string
}

// get returns a trimmed cell, or "" when the column is absent or the row is short
func (t *table) get(row []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readTable parses a CSV with a header row. Header names are trimmed and lower-cased.
func readTable(r io.Reader, required []string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s (empty file)", ErrMissingColumns, strings.Join(required, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	t := &table{columns: make(map[string]int, len(header))}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = i
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := t.columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// ReadPages parses a pages CSV. Only url is required; title falls back to h1,
// content is stripped of markup and meta_description is appended to it.
func ReadPages(r io.Reader) ([]linkgraph.PageRecord, error) {
	t, err := readTable(r, pageColumns)
	if err != nil {
		return nil, err
	}

	records := make([]linkgraph.PageRecord, 0, len(t.rows))
	for _, row := range t.rows {
		title := t.get(row, "title")
		if title == "" {
			title = t.get(row, "h1")
		}

		content := PlainText(t.get(row, "content"))
		if meta := t.get(row, "meta_description"); meta != "" {
			content = strings.TrimSpace(content + " " + meta)
		}

		records = append(records, linkgraph.PageRecord{
			URL:        t.get(row, "url"),
			Title:      title,
			Content:    content,
			Importance: t.get(row, "importance"),
			EntryPoint: parseFlag(t.get(row, "entry_point")),
		})
	}
	return records, nil
}

// ReadLinks parses a links CSV with source_url, target_url and anchor columns
func ReadLinks(r io.Reader) ([]LinkRow, error) {
	t, err := readTable(r, linkColumns)
	if err != nil {
		return nil, err
	}

	links := make([]LinkRow, 0, len(t.rows))
	for _, row := range t.rows {
		links = append(links, LinkRow{
			Source: t.get(row, "source_url"),
			Target: t.get(row, "target_url"),
			Anchor: t.get(row, "anchor"),
		})
	}
	return links, nil
}

func parseFlag(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "x":
		return true
	default:
		return false
	}
}

// pageKey matches pages and link sources by normalized URL, falling back to the raw value
func pageKey(raw string) string {
	if normalized, err := linkgraph.NormalizeURL(raw); err == nil {
		return normalized
	}
	return strings.TrimSpace(raw)
}

// AttachLinks appends each link to the first page record with the same source URL,
// preserving file order. Links whose source is not a known page are dropped and counted.
func AttachLinks(pages []linkgraph.PageRecord, links []LinkRow, log logrus.FieldLogger) ([]linkgraph.PageRecord, int) {
	index := make(map[string]int, len(pages))
	for i, p := range pages {
		key := pageKey(p.URL)
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}

	unmatched := 0
	for _, l := range links {
		i, ok := index[pageKey(l.Source)]
		if !ok {
			unmatched++
			log.Debugf("Link source %s is not in the pages file, link to %s dropped", l.Source, l.Target)
			continue
		}
		pages[i].Links = append(pages[i].Links, linkgraph.LinkRecord{Target: l.Target, Anchor: l.Anchor})
	}

	if unmatched > 0 {
		log.Warnf("%d links dropped: source page not in the pages file", unmatched)
	}
	return pages, unmatched
}

// LoadCSV reads pages and, when linksPath is set, attaches the links file to them
func LoadCSV(pagesPath, linksPath string, log logrus.FieldLogger) ([]linkgraph.PageRecord, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "ingest")

	pages, err := readFile(pagesPath, ReadPages)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages %s: %w", pagesPath, err)
	}
	log.Infof("Loaded %d page records from %s", len(pages), pagesPath)

	if linksPath == "" {
		return pages, nil
	}

	links, err := readFile(linksPath, ReadLinks)
	if err != nil {
		return nil, fmt.Errorf("failed to load links %s: %w", linksPath, err)
	}
	pages, unmatched := AttachLinks(pages, links, log)
	log.Infof("Loaded %d links from %s (%d attached)", len(links), linksPath, len(links)-unmatched)

	return pages, nil
}

func readFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parse(file)
}
