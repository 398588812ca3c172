// Package report は解析結果をExcelブックとして組み立てます。
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const infoSheet = "Query Info"

// Variable はクエリ対象の変数定義です。
type Variable struct {
	Name        string
	Description string
	Context     string
}

// Row は1変数分の出力行です。Values は出力ヘッダー（先頭の変数名列を
// 除く）に対応します。
type Row struct {
	Variable string
	Values   []string
}

// DocumentResult は文書1件分の結果テーブルです。
type DocumentResult struct {
	Name    string
	Headers []string
	Rows    []Row
}

// Workbook は結果ブックの組み立てを担います。
type Workbook struct {
	file       *excelize.File
	sheetNames map[string]int
}

// NewWorkbook は概要シートだけを持つ空のブックを作成します。
func NewWorkbook() (*Workbook, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", infoSheet); err != nil {
		return nil, fmt.Errorf("failed to prepare workbook: %w", err)
	}
	return &Workbook{file: file, sheetNames: make(map[string]int)}, nil
}

// WriteQueryInfo は概要シートにクエリテンプレートと変数定義を書き込みます。
func (w *Workbook) WriteQueryInfo(queryTemplate string, variables []Variable) error {
	cells := [][]any{
		{"Results: AI Policy Reader (beta)"},
		{time.Now().UTC().Format("January 2, 2006")},
		{},
		{"The following query is run for each of the variable specifications listed below:"},
		{queryTemplate},
		{},
		{"Variable name", "Variable description (optional)", "Context (optional)"},
	}
	for _, v := range variables {
		cells = append(cells, []any{v.Name, v.Description, v.Context})
	}
	for r, row := range cells {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := w.file.SetCellValue(infoSheet, cell, value); err != nil {
				return fmt.Errorf("failed to write query info: %w", err)
			}
		}
	}
	return w.boldRow(infoSheet, 7, 3)
}

// AddDocument は文書1件分のシートを追加します。
func (w *Workbook) AddDocument(result DocumentResult) error {
	sheet := w.uniqueSheetName(result.Name)
	if _, err := w.file.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add sheet for %s: %w", result.Name, err)
	}

	headers := append([]string{"Variable"}, result.Headers...)
	for c, h := range headers {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	if err := w.boldRow(sheet, 1, len(headers)); err != nil {
		return err
	}

	for r, row := range result.Rows {
		values := append([]string{row.Variable}, row.Values...)
		for c, value := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := w.file.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write result row: %w", err)
			}
		}
	}
	return nil
}

// WriteMetrics は処理件数・ページ数・所要時間・失敗文書を概要シートの
// 末尾に追記します。
func (w *Workbook) WriteMetrics(docs, pages int, elapsed time.Duration, failed []string) error {
	rows, err := w.file.GetRows(infoSheet)
	if err != nil {
		return fmt.Errorf("failed to locate metrics position: %w", err)
	}
	next := len(rows) + 2

	line := fmt.Sprintf("%d documents (%d total pages) processed in %.2f seconds", docs, pages, elapsed.Seconds())
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	if err := w.file.SetCellValue(infoSheet, cell, line); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if len(failed) > 0 {
		cell, err := excelize.CoordinatesToCellName(1, next+1)
		if err != nil {
			return err
		}
		failLine := fmt.Sprintf("Unable to process the following documents: %s", strings.Join(failed, ", "))
		if err := w.file.SetCellValue(infoSheet, cell, failLine); err != nil {
			return fmt.Errorf("failed to write failure list: %w", err)
		}
	}
	return nil
}

// SaveAs はブックをファイルに書き出します。
func (w *Workbook) SaveAs(path string) error {
	if err := w.file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Close は内部バッファを解放します。
func (w *Workbook) Close() error {
	return w.file.Close()
}

func (w *Workbook) boldRow(sheet string, row, cols int) error {
	if cols <= 0 {
		return nil
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, first, last, style)
}

// uniqueSheetName はExcelのシート名制約（31文字・記号制限）に収めた上で
// 重複しない名前を返します。
func (w *Workbook) uniqueSheetName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	if sanitized == "" {
		sanitized = "document"
	}
	if len(sanitized) > 27 {
		sanitized = sanitized[:27]
	}

	w.sheetNames[sanitized]++
	if n := w.sheetNames[sanitized]; n > 1 {
		return fmt.Sprintf("%s (%d)", sanitized, n)
	}
	return sanitized
}
