package extract

import (
	"fmt"

	ltpdf "github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFPageCount はPDFのページ数を返します。破損したファイルはここで弾かれます。
func PDFPageCount(path string) (int, error) {
	count, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect pdf: %w", err)
	}
	return count, nil
}

// FromPDF はPDF全ページからテキストチャンクを抽出します。テキストの取れない
// ページ（スキャン画像など）は読み飛ばします。
func FromPDF(path string, chunkSize int) ([]Section, error) {
	file, reader, err := ltpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	pages := reader.NumPage()
	c := newChunker(chunkSize)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// ページ単位の抽出失敗は文書全体の失敗にしない
			continue
		}
		c.addText(text, i)
	}

	sections := c.sections(pages)
	if len(sections) == 1 && len(sections[0].Chunks) == 0 {
		return nil, fmt.Errorf("no extractable text in pdf (%d pages)", pages)
	}
	return sections, nil
}
