package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "header skipped",
			input: "comment\nGreat class\nToo fast\n",
			want:  []string{"Great class", "Too fast"},
		},
		{
			name:  "header with BOM and extra columns",
			input: "\uFEFFFeedback,rating\n\"Slides, finally\",5\nok,3\n",
			want:  []string{"Slides, finally", "ok"},
		},
		{
			name:  "no header",
			input: "first\nsecond\n",
			want:  []string{"first", "second"},
		},
		{
			name:  "blank cells skipped",
			input: "text\n\n  \nkept\n,orphan\n",
			want:  []string{"kept"},
		},
		{
			name:  "multiline quoted cell",
			input: "\"line one\nline two\"\n",
			want:  []string{"line one\nline two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCSV(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseCSV() error = %v", err)
			}
			if !equal(got, tt.want) {
				t.Errorf("ParseCSV() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseHTML(t *testing.T) {
	input := `<html><body>
<table>
  <tr><th>Comment</th><th>Date</th></tr>
  <tr><td> The room was cold </td><td>Mon</td></tr>
  <tr><td></td><td>Tue</td></tr>
  <tr><td>Loved the demo</td></tr>
</table>
<table><tr><td>second table ignored</td></tr></table>
</body></html>`

	got, err := ParseHTML(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseHTML() error = %v", err)
	}
	want := []string{"The room was cold", "Loved the demo"}
	if !equal(got, want) {
		t.Errorf("ParseHTML() = %q, want %q", got, want)
	}
}

func TestParseText(t *testing.T) {
	got, err := ParseText(strings.NewReader("one\n\n  two  \r\nthree"))
	if err != nil {
		t.Fatalf("ParseText() error = %v", err)
	}
	if !equal(got, []string{"one", "two", "three"}) {
		t.Errorf("ParseText() = %q", got)
	}
}

func TestReadEmptyInput(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatHTML, FormatText} {
		_, err := Read(strings.NewReader(""), f)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("%s: expected ErrEmptyInput, got %v", f, err)
		}
		if !IsInputError(err) {
			t.Errorf("%s: expected an input error", f)
		}
	}

	if _, err := Read(strings.NewReader("comment\n"), FormatCSV); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected header-only CSV to be empty, got %v", err)
	}
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"comments.csv", FormatCSV, false},
		{"Export.HTML", FormatHTML, false},
		{"page.htm", FormatHTML, false},
		{"notes.txt", FormatText, false},
		{"sheet.xlsx", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatFromName(%q) error = %v", tt.name, err)
		}
		if tt.wantErr && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("FormatFromName(%q) expected ErrUnsupportedFormat, got %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("FormatFromName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "week1.csv")
	if err := os.WriteFile(path, []byte("comments\nA\nB\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !equal(got, []string{"A", "B"}) {
		t.Errorf("ReadFile() = %q", got)
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil || IsInputError(err) {
		t.Errorf("Expected a non-input error for a missing file, got %v", err)
	}
}
