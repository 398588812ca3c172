package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestWorkbookBuildsQueryInfoAndDocumentSheets(t *testing.T) {
	wb, err := NewWorkbook()
	if err != nil {
		t.Fatalf("NewWorkbook returned error: %v", err)
	}
	defer wb.Close()

	variables := []Variable{
		{Name: "target", Description: "emission target", Context: "national policy"},
	}
	if err := wb.WriteQueryInfo("Find text about {variable_name}", variables); err != nil {
		t.Fatalf("WriteQueryInfo returned error: %v", err)
	}

	doc := DocumentResult{
		Name:    "policy.pdf",
		Headers: []string{"Relevant Quotes", "Justification"},
		Rows: []Row{
			{Variable: "target", Values: []string{"net-zero by 2050 (page 3)", "states the goal"}},
		},
	}
	if err := wb.AddDocument(doc); err != nil {
		t.Fatalf("AddDocument returned error: %v", err)
	}
	if err := wb.WriteMetrics(1, 12, 90*time.Second, []string{"broken.pdf"}); err != nil {
		t.Fatalf("WriteMetrics returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "results.xlsx")
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("SaveAs returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("workbook not written: %v", err)
	}

	file, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("failed to reopen workbook: %v", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Query Info" {
		t.Fatalf("unexpected sheets: %#v", sheets)
	}

	value, err := file.GetCellValue("policy.pdf", "A2")
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if value != "target" {
		t.Fatalf("variable column mismatch: %q", value)
	}
	value, err = file.GetCellValue("policy.pdf", "B2")
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if value != "net-zero by 2050 (page 3)" {
		t.Fatalf("quote column mismatch: %q", value)
	}

	rows, err := file.GetRows("Query Info")
	if err != nil {
		t.Fatalf("failed to read query info: %v", err)
	}
	var foundMetrics, foundFailed bool
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if row[0] == "1 documents (12 total pages) processed in 90.00 seconds" {
			foundMetrics = true
		}
		if row[0] == "Unable to process the following documents: broken.pdf" {
			foundFailed = true
		}
	}
	if !foundMetrics {
		t.Fatalf("metrics line missing: %#v", rows)
	}
	if !foundFailed {
		t.Fatalf("failed documents line missing: %#v", rows)
	}
}

func TestUniqueSheetNameSanitizesAndDeduplicates(t *testing.T) {
	wb, err := NewWorkbook()
	if err != nil {
		t.Fatalf("NewWorkbook returned error: %v", err)
	}
	defer wb.Close()

	first := wb.uniqueSheetName("a/b:c*d.pdf")
	if first != "a_b_c_d.pdf" {
		t.Fatalf("unexpected sanitized name: %q", first)
	}
	second := wb.uniqueSheetName("a/b:c*d.pdf")
	if second != "a_b_c_d.pdf (2)" {
		t.Fatalf("duplicate name not suffixed: %q", second)
	}

	long := wb.uniqueSheetName("this-name-is-far-longer-than-excel-allows.pdf")
	if len(long) > 31 {
		t.Fatalf("sheet name exceeds excel limit: %q", long)
	}
}
