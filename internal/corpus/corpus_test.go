// ABOUTME: Tests for FAQ splitting and file ingestion
// ABOUTME: Covers Markdown heading sections, plain paragraphs, and ingest error handling

package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/teller/internal/retriever"
	"github.com/2389/teller/internal/store"
)

const faq = `Welcome to the bank FAQ.

# Accounts

## How do I open an account?
Type your full name and your balance.

### Is there a fee?
No.

## What is an IBAN?
Your account number for transfers.

` + "```" + `
## not a heading
` + "```" + `

> ## quoted heading
> stays put

Setext Section
--------------
Underlined headings count too.
`

func TestSplitMarkdown(t *testing.T) {
	docs := SplitMarkdown([]byte(faq))

	require.Len(t, docs, 5)
	assert.Equal(t, "Welcome to the bank FAQ.", docs[0])
	assert.Equal(t, "# Accounts", docs[1])
	assert.Equal(t, "## How do I open an account?\nType your full name and your balance.\n\n### Is there a fee?\nNo.", docs[2])
	assert.Contains(t, docs[3], "## What is an IBAN?")
	assert.Contains(t, docs[3], "## not a heading")
	assert.Contains(t, docs[3], "> ## quoted heading")
	assert.Equal(t, "Setext Section\n--------------\nUnderlined headings count too.", docs[4])
}

func TestSplitMarkdown_NoHeadings(t *testing.T) {
	assert.Equal(t, []string{"just text\nmore"}, SplitMarkdown([]byte("just text\r\nmore\r\n")))
	assert.Empty(t, SplitMarkdown([]byte("  \n\n")))
}

func TestSplitText(t *testing.T) {
	src := "First paragraph\ncontinues here.  \n\n   \nSecond.\n\n\nThird\n"
	assert.Equal(t, []string{"First paragraph\ncontinues here.", "Second.", "Third"}, SplitText([]byte(src)))
	assert.Empty(t, SplitText(nil))
}

func TestSplit_ChoosesByExtension(t *testing.T) {
	src := []byte("## A\none\n\ntwo\n")
	assert.Len(t, Split("faq.md", src), 1)
	assert.Len(t, Split("FAQ.Markdown", src), 1)
	assert.Len(t, Split("faq.txt", src), 2)
}

type recordingIngester struct {
	contents  []string
	failAt    int
	unindexed bool
}

func (r *recordingIngester) Ingest(ctx context.Context, content string) (*store.Document, error) {
	if r.failAt > 0 && len(r.contents)+1 == r.failAt {
		return nil, errors.New("embedder down")
	}
	r.contents = append(r.contents, content)
	if r.unindexed {
		return &store.Document{Content: content}, fmt.Errorf("%w: index full", retriever.ErrNotIndexed)
	}
	return &store.Document{Content: content}, nil
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faq.md")
	require.NoError(t, os.WriteFile(path, []byte(faq), 0o644))

	ing := &recordingIngester{}
	n, err := IngestFile(t.Context(), ing, path)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Welcome to the bank FAQ.", ing.contents[0])
}

func TestIngestFile_Errors(t *testing.T) {
	_, err := IngestFile(t.Context(), &recordingIngester{}, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "faq.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n\nb\n\nc"), 0o644))

	n, err := IngestFile(t.Context(), &recordingIngester{failAt: 2}, path)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestFile_StoredButNotIndexedCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faq.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n\nb\n\nc"), 0o644))

	ing := &recordingIngester{unindexed: true}
	n, err := IngestFile(t.Context(), ing, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
