package analyze

import (
	"errors"
	"strings"
	"testing"

	"github.com/yourusername/policy-reader/internal/gpt"
)

func TestAnalyzerFor(t *testing.T) {
	an, err := analyzerFor(TaskQuoteExtraction, FormatQuotesStructured)
	if err != nil {
		t.Fatalf("analyzerFor returned error: %v", err)
	}
	if an.ResponseFormat() != gpt.FormatJSON {
		t.Fatalf("structured quotes must request json responses")
	}

	an, err = analyzerFor(TaskQuoteExtraction, FormatRawResponse)
	if err != nil {
		t.Fatalf("analyzerFor returned error: %v", err)
	}
	if an.ResponseFormat() != gpt.FormatText {
		t.Fatalf("raw quotes must request text responses")
	}

	an, err = analyzerFor(TaskTargetedSummary, "")
	if err != nil {
		t.Fatalf("analyzerFor returned error: %v", err)
	}
	if an.ChunkSize() != 500 {
		t.Fatalf("summaries use larger chunks, got %d", an.ChunkSize())
	}

	if _, err := analyzerFor("unknown", ""); err == nil {
		t.Fatal("expected error for unknown task type")
	}
	var apiErr *Error
	_, err = analyzerFor(TaskQuoteExtraction, "unknown-format")
	if err == nil {
		t.Fatal("expected error for unknown output format")
	}
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExcerptCounts(t *testing.T) {
	quote := structuredQuoteAnalyzer{}
	if got := quote.ExcerptCount(50); got != 40 {
		t.Fatalf("short document excerpt count: got %d", got)
	}
	if got := quote.ExcerptCount(300); got != 40+300/5 {
		t.Fatalf("long document excerpt count: got %d", got)
	}

	summary := summaryAnalyzer{}
	if got := summary.ExcerptCount(10); got != 15 {
		t.Fatalf("summary excerpt count: got %d", got)
	}
}

func TestStructuredQuoteFormatResponse(t *testing.T) {
	an := structuredQuoteAnalyzer{}
	resp := `{"list_of_quotes": [
		{"quote": "reduce emissions by 40%", "page_number": "12", "justification": "states the target"},
		{"quote": "net-zero by 2050", "page_number": 30, "justification": "long-term goal"}
	]}`

	values, err := an.FormatResponse(resp)
	if err != nil {
		t.Fatalf("FormatResponse returned error: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("unexpected value count: %#v", values)
	}
	if !strings.Contains(values[0], "reduce emissions by 40% (page 12)") {
		t.Fatalf("quote column missing page label: %q", values[0])
	}
	if !strings.Contains(values[0], "net-zero by 2050 (page 30)") {
		t.Fatalf("numeric page number not normalized: %q", values[0])
	}
	if !strings.Contains(values[1], "states the target") {
		t.Fatalf("justification column incomplete: %q", values[1])
	}

	if _, err := an.FormatResponse("not json"); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestBuildVariablePrompt(t *testing.T) {
	v := VariableSpec{Name: "target", Description: "emission target", Context: "national policy"}
	prompt := buildVariablePrompt(
		"Find text about {variable_name} defined as {variable_description} in {context}",
		v, "Provide quotes.", []string{"• excerpt one [page 1]", "• excerpt two [page 2]"})

	if !strings.Contains(prompt, "<instructions>Find text about target defined as emission target in national policy.") {
		t.Fatalf("template not filled: %q", prompt)
	}
	if !strings.Contains(prompt, "Provide quotes.</instructions>") {
		t.Fatalf("output prompt not appended: %q", prompt)
	}
	if !strings.Contains(prompt, "\"\"\"• excerpt one [page 1]\n• excerpt two [page 2]\"\"\"") {
		t.Fatalf("excerpts not delimited: %q", prompt)
	}
}

func TestVariableEmbedText(t *testing.T) {
	if got := variableEmbedText(VariableSpec{Name: "target"}); got != "target" {
		t.Fatalf("bare name: got %q", got)
	}
	got := variableEmbedText(VariableSpec{Name: "target", Description: "emission target", Context: "national policy"})
	if got != "target: 'emission target'. Context: national policy" {
		t.Fatalf("fully described variable: got %q", got)
	}
}
