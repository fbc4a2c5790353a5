// ABOUTME: Splits FAQ files into retrievable documents
// ABOUTME: Markdown splits on headings via the goldmark AST; plain text on blank lines

package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/2389/teller/internal/retriever"
	"github.com/2389/teller/internal/store"
)

// SectionLevel is the deepest heading level that starts a new document.
// Deeper headings stay inside their parent section.
const SectionLevel = 2

// Ingester stores one document.
type Ingester interface {
	Ingest(ctx context.Context, content string) (*store.Document, error)
}

// Split returns the documents in data, choosing the format from name's extension.
func Split(name string, data []byte) []string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return SplitMarkdown(data)
	default:
		return SplitText(data)
	}
}

// SplitMarkdown returns one document per top-level section: text before the
// first heading, then each heading of level SectionLevel or shallower with
// everything up to the next such heading. Headings inside code blocks or
// quotes do not split.
func SplitMarkdown(src []byte) []string {
	src = normalize(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var cuts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > SectionLevel || h.Lines().Len() == 0 {
			continue
		}
		cuts = append(cuts, lineStart(src, h.Lines().At(0).Start))
	}

	var out []string
	start := 0
	for _, cut := range cuts {
		out = appendSection(out, src[start:cut])
		start = cut
	}
	return appendSection(out, src[start:])
}

// SplitText returns the blank-line separated paragraphs of src.
func SplitText(src []byte) []string {
	var (
		out  []string
		para []string
	)
	for _, line := range strings.Split(string(normalize(src)), "\n") {
		if strings.TrimSpace(line) == "" {
			if len(para) > 0 {
				out = append(out, strings.Join(para, "\n"))
				para = nil
			}
			continue
		}
		para = append(para, strings.TrimRight(line, " \t"))
	}
	if len(para) > 0 {
		out = append(out, strings.Join(para, "\n"))
	}
	return out
}

// IngestFile splits the file at path and ingests each document in order.
// It returns how many documents were stored before any error. Documents
// stored without being indexed count as stored.
func IngestFile(ctx context.Context, ing Ingester, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	docs := Split(path, data)
	for i, content := range docs {
		if _, err := ing.Ingest(ctx, content); err != nil && !errors.Is(err, retriever.ErrNotIndexed) {
			return i, fmt.Errorf("ingesting section %d of %s: %w", i+1, path, err)
		}
	}
	return len(docs), nil
}

func appendSection(out []string, section []byte) []string {
	if s := strings.TrimSpace(string(section)); s != "" {
		out = append(out, s)
	}
	return out
}

func lineStart(src []byte, pos int) int {
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

func normalize(src []byte) []byte {
	return bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
}
