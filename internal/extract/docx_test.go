package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph of the policy.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph with</w:t></w:r><w:r><w:t> two runs.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Target</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>2030</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
    <w:p><w:r><w:t></w:t></w:r></w:p>
  </w:body>
</w:document>`

func writeTestDocx(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.docx")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create docx: %v", err)
	}
	zw := zip.NewWriter(file)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to add document.xml: %v", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatalf("failed to write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("failed to close file: %v", err)
	}
	return path
}

func TestFromDOCXExtractsParagraphsAndTables(t *testing.T) {
	path := writeTestDocx(t, docxBody)

	sections, err := FromDOCX(path, 500)
	if err != nil {
		t.Fatalf("FromDOCX returned error: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("unexpected section count: %d", len(sections))
	}

	joined := strings.Join(sections[0].Chunks, "\n")
	if !strings.Contains(joined, "First paragraph of the policy.") {
		t.Fatalf("missing paragraph text: %s", joined)
	}
	if !strings.Contains(joined, "Second paragraph with two runs.") {
		t.Fatalf("runs not joined: %s", joined)
	}
	if !strings.Contains(joined, "Target | 2030") {
		t.Fatalf("table row not extracted: %s", joined)
	}
}

func TestFromDOCXRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.docx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := FromDOCX(path, 200); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}

func TestFromDOCXRejectsEmptyBody(t *testing.T) {
	path := writeTestDocx(t, `<?xml version="1.0"?><w:document xmlns:w="x"><w:body></w:body></w:document>`)
	if _, err := FromDOCX(path, 200); err == nil {
		t.Fatal("expected error for empty document")
	}
}
