// Package extract は入力文書（PDF / DOCX）からテキストチャンクを取り出します。
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// 1セクションに収めるページ数の上限。これを超える文書は複数セクションに
// 分割し、後段の問い合わせがトークン上限を超えないようにします。
const maxPagesPerSection = 250

// Section は文書1件（または長大な文書の分割単位）の抽出結果です。
type Section struct {
	Chunks     []string
	Pages      int
	CharCount  int
	SectionNum int // 分割されていない場合は 0
}

var spaceRe = regexp.MustCompile(`\s+`)

// chunker は文単位でテキストを切り出し、最大文字数以内のチャンクに
// まとめます。
type chunker struct {
	maxSize   int
	chunks    []string
	curr      strings.Builder
	currPage  int
	charCount int
}

func newChunker(maxSize int) *chunker {
	if maxSize <= 0 {
		maxSize = 200
	}
	return &chunker{maxSize: maxSize, currPage: 1}
}

// addText はページ（page が0以下の場合はページ情報なし）のテキストを
// 取り込みます。
func (c *chunker) addText(text string, page int) {
	c.charCount += len(text)
	cleaned := strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	if cleaned == "" {
		return
	}

	for _, sentence := range splitSentences(cleaned) {
		if c.curr.Len()+len(sentence) >= c.maxSize && c.curr.Len() > 0 {
			c.flush()
			c.currPage = page
		}
		c.curr.WriteString(sentence)
		c.curr.WriteString(" ")
	}
	if page > 0 {
		// ページ境界でチャンクを確定し、ページ番号の表記を正確に保つ
		c.currPage = page
		c.flush()
	}
}

func (c *chunker) flush() {
	chunk := strings.TrimSpace(c.curr.String())
	c.curr.Reset()
	if chunk == "" {
		return
	}
	if c.currPage > 0 {
		c.chunks = append(c.chunks, fmt.Sprintf("• %s [page %d]", chunk, c.currPage))
	} else {
		c.chunks = append(c.chunks, fmt.Sprintf("• %s", chunk))
	}
}

// sections は取り込んだチャンクをセクションに詰めて返します。ページ数が
// maxPagesPerSection を超える場合は概ね等分に分割します。
func (c *chunker) sections(pages int) []Section {
	c.flush()

	if pages <= maxPagesPerSection {
		return []Section{{
			Chunks:    c.chunks,
			Pages:     pages,
			CharCount: c.charCount,
		}}
	}

	iters := pages/maxPagesPerSection + 1
	size := len(c.chunks) / iters
	if size == 0 {
		size = len(c.chunks)
	}
	subPages, subChars := pages/iters, c.charCount/iters

	sections := make([]Section, 0, iters)
	for j := 0; j < iters; j++ {
		lo := j * size
		hi := lo + size
		if j == iters-1 || hi > len(c.chunks) {
			hi = len(c.chunks)
		}
		if lo >= hi {
			break
		}
		sections = append(sections, Section{
			Chunks:     c.chunks[lo:hi],
			Pages:      subPages,
			CharCount:  subChars,
			SectionNum: j + 1,
		})
	}
	return sections
}

// splitSentences は文末記号（. ! ?）＋空白の位置で分割します。
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				out = append(out, s[start:i+1])
				start = i + 2
				i++
			}
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
