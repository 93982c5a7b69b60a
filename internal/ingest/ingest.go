// Package ingest extracts raw comment texts from uploaded files.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrEmptyInput means the source held no usable comment.
	ErrEmptyInput = errors.New("no comments found in input")
	// ErrUnsupportedFormat means the file type is not one we read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrMalformed means the source could not be parsed.
	ErrMalformed = errors.New("malformed input")
)

// Format is an input file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatText Format = "txt"
)

// headerCells are first-row values treated as a CSV header.
var headerCells = map[string]bool{
	"comment":  true,
	"comments": true,
	"text":     true,
	"feedback": true,
}

// FormatFromName picks the format from a file name's extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// IsInputError reports whether err was caused by the input itself.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrMalformed)
}

// Read extracts comments from r in the given format.
func Read(r io.Reader, format Format) ([]string, error) {
	var (
		texts []string
		err   error
	)
	switch format {
	case FormatCSV:
		texts, err = ParseCSV(r)
	case FormatHTML:
		texts, err = ParseHTML(r)
	case FormatText:
		texts, err = ParseText(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	return texts, nil
}

// ReadFile opens path and extracts comments using its extension.
func ReadFile(path string) ([]string, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, format)
}

// ParseCSV takes the first column of every row. A recognised header cell
// in the first row and blank cells are skipped.
func ParseCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var texts []string
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", ErrMalformed, err)
		}
		if len(record) == 0 {
			continue
		}

		cell := strings.TrimSpace(record[0])
		if row == 0 {
			cell = strings.TrimSpace(strings.TrimPrefix(cell, "\uFEFF"))
			if headerCells[strings.ToLower(cell)] {
				continue
			}
		}
		if cell != "" {
			texts = append(texts, cell)
		}
	}
	return texts, nil
}

// ParseHTML takes the first cell of every row in the document's first
// table. Header rows without a <td> are skipped.
func ParseHTML(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: html: %v", ErrMalformed, err)
	}

	var texts []string
	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return
		}
		if text := strings.TrimSpace(cell.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	return texts, nil
}

// ParseText takes one comment per non-blank line.
func ParseText(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var texts []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: text: %v", ErrMalformed, err)
	}
	return texts, nil
}
