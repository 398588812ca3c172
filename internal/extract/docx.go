package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// FromDOCX はDOCXの本文（段落と表セル）からテキストチャンクを抽出します。
// .docx は WordprocessingML のzipアーカイブなので、word/document.xml の
// w:t 要素を段落単位に集めるだけで読み取りには十分です。
func FromDOCX(path string, chunkSize int) ([]Section, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer archive.Close()

	var document *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return nil, fmt.Errorf("docx has no word/document.xml")
	}

	reader, err := document.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read docx body: %w", err)
	}
	defer reader.Close()

	paragraphs, err := docxParagraphs(reader)
	if err != nil {
		return nil, err
	}
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("no extractable text in docx")
	}

	c := newChunker(chunkSize)
	for _, para := range paragraphs {
		c.addText(para, 0)
	}
	// DOCXにはページの概念がないため1ページ扱い
	return c.sections(1), nil
}

// docxParagraphs は document.xml を逐次解析し、段落ごとのテキストを
// 返します。表の行はセルのテキストを " | " で連結した1段落になります。
func docxParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		para       strings.Builder
		rowCells   []string
		cell       strings.Builder
		inCell     bool
	)

	flushPara := func() {
		text := strings.TrimSpace(para.String())
		para.Reset()
		if text == "" {
			return
		}
		if inCell {
			if cell.Len() > 0 {
				cell.WriteString(" ")
			}
			cell.WriteString(text)
			return
		}
		paragraphs = append(paragraphs, text)
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse docx body: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tr":
				rowCells = rowCells[:0]
			case "tc":
				inCell = true
				cell.Reset()
			case "t":
				var text string
				if err := decoder.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("failed to parse docx text run: %w", err)
				}
				para.WriteString(text)
			case "tab":
				para.WriteString(" ")
			case "br":
				para.WriteString(" ")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				flushPara()
			case "tc":
				flushPara()
				if text := strings.TrimSpace(cell.String()); text != "" {
					rowCells = append(rowCells, text)
				}
				inCell = false
			case "tr":
				if len(rowCells) > 0 {
					paragraphs = append(paragraphs, strings.Join(rowCells, " | "))
				}
			}
		}
	}
	return paragraphs, nil
}
