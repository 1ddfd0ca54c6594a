package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRows(t *testing.T) {
	rows := pdf.Rows{
		{Position: 700, Content: pdf.TextHorizontal{{S: " Mo"}}},
		{Position: 680, Content: pdf.TextHorizontal{{S: "01.01."}, {S: "24"}}},
		{Position: 660, Content: pdf.TextHorizontal{{S: "Doe"}}},
	}

	assert.Equal(t, " Mo\n01.01.24\nDoe", JoinRows(rows))
	assert.Equal(t, "", JoinRows(nil))
}

func TestFirstPageTextRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DP_broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, err := NewPDFExtractor().FirstPageText(path)
	assert.Error(t, err)
}

func TestFirstPageTextMissingFile(t *testing.T) {
	_, err := NewPDFExtractor().FirstPageText(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

// writePDF stores a one-page PDF whose page content is the given stream
func writePDF(t *testing.T, content string) string {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "DP_fixture.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestFirstPageTextRowsFollowBaselines(t *testing.T) {
	// Words on one baseline join in x order; baselines run top to bottom
	content := strings.Join([]string{
		"BT",
		"/F1 10 Tf",
		"1 0 0 1 72 700 Tm ( Mo) Tj",
		"1 0 0 1 120 680 Tm (24) Tj",
		"1 0 0 1 72 680 Tm (01.01.) Tj",
		"1 0 0 1 72 660.4 Tm (Doe) Tj",
		"1 0 0 1 100 660.9 Tm (, J.) Tj",
		"ET",
	}, "\n")
	path := writePDF(t, content)

	text, err := NewPDFExtractor().FirstPageText(path)
	require.NoError(t, err)
	assert.Equal(t, " Mo\n01.01.24\nDoe, J.", text)
}
