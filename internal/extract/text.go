package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/victornm/pdfquiz/internal/errors"
)

// TextExtractor turns document bytes into one ordered string of text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

var pdfMagic = []byte("%PDF-")

// ErrNotPDF is returned for input that is not a PDF document.
var ErrNotPDF = errors.New(errors.CodeInvalidArgument,
	errors.WithMessagef("the uploaded file is not a readable PDF document"))

// PDFToText extracts text with poppler's pdftotext.
type PDFToText struct {
	// Path of the pdftotext binary, looked up in PATH when empty.
	Path string
}

// ExtractText runs pdftotext on data and marks the end of every page with
// "--- PAGE n ---" for the extraction service.
func (p PDFToText) ExtractText(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", ErrNotPDF
	}

	f, err := os.CreateTemp("", "pdfquiz-*.pdf")
	if err != nil {
		return "", fmt.Errorf("pdftotext: create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("pdftotext: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("pdftotext: close temp file: %w", err)
	}

	bin := p.Path
	if bin == "" {
		bin = "pdftotext"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", f.Name(), "-")
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("could not read the PDF document"),
			errors.WithCause(fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(stderr.String()))))
	}

	return MarkPages(string(out)), nil
}

// MarkPages splits pdftotext output on form feeds and appends a page
// sentinel after each page.
func MarkPages(text string) string {
	pages := strings.Split(text, "\f")
	// pdftotext terminates the last page with a form feed too
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}

	var b strings.Builder
	for i, p := range pages {
		b.WriteString(p)
		if !strings.HasSuffix(p, "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "--- PAGE %d ---\n", i+1)
	}

	return b.String()
}
