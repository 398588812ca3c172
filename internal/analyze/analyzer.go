package analyze

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yourusername/policy-reader/internal/gpt"
)

// TaskType は解析タスクの種別を表します。
type TaskType string

const (
	TaskQuoteExtraction TaskType = "quote_extraction"
	TaskTargetedSummary TaskType = "targeted_summary"
)

// OutputFormat は結果の整形方式を表します。
type OutputFormat string

const (
	FormatQuotesStructured OutputFormat = "quotes_structured"
	FormatRawResponse      OutputFormat = "raw_response"
)

// analyzer はタスク種別ごとのプロンプト構成と応答整形を定義します。
type analyzer interface {
	// OutputPrompt は変数ごとの出力形式指示を返します。空文字なら指示なし。
	OutputPrompt(varName string) string
	// ResponseFormat はGPTに要求する応答形式を返します。
	ResponseFormat() gpt.ResponseFormat
	// Headers は結果テーブルのヘッダー（先頭の変数名列を除く）を返します。
	Headers() []string
	// FormatResponse は応答本文を Headers に対応する列値へ変換します。
	FormatResponse(resp string) ([]string, error)
	// ChunkSize は推奨チャンク文字数を返します。0 なら設定値に従います。
	ChunkSize() int
	// ExcerptCount はページ数に応じた抜粋チャンク数を返します。
	ExcerptCount(pages int) int
}

func analyzerFor(task TaskType, format OutputFormat) (analyzer, error) {
	switch task {
	case TaskQuoteExtraction:
		switch format {
		case FormatQuotesStructured, "":
			return structuredQuoteAnalyzer{}, nil
		case FormatRawResponse:
			return rawQuoteAnalyzer{}, nil
		}
		return nil, newError("INVALID_INPUT", fmt.Sprintf("出力形式 %q はこのタスクで利用できません。", format), nil)
	case TaskTargetedSummary:
		return summaryAnalyzer{}, nil
	default:
		return nil, newError("INVALID_INPUT", fmt.Sprintf("タスク種別 %q は利用できません。", task), nil)
	}
}

// 抜粋数の既定則。100ページを超える文書はページ数に応じて増やします。
func defaultExcerptCount(pages int) int {
	if pages < 100 {
		return 40
	}
	return 40 + pages/5
}

// structuredQuoteAnalyzer は引用をJSONで受け取り、引用と根拠の2列に
// 整形します。
type structuredQuoteAnalyzer struct{}

func (structuredQuoteAnalyzer) OutputPrompt(string) string {
	return `Provide an exhaustive list of relevant quotes in the following json format: {"list_of_quotes": [{"quote": "...", "page_number": "...", "justification": "..."}, ...]}`
}

func (structuredQuoteAnalyzer) ResponseFormat() gpt.ResponseFormat { return gpt.FormatJSON }

func (structuredQuoteAnalyzer) Headers() []string { return []string{"Relevant Quotes", "Justification"} }

func (structuredQuoteAnalyzer) FormatResponse(resp string) ([]string, error) {
	var payload struct {
		Quotes []struct {
			Quote         string `json:"quote"`
			PageNumber    any    `json:"page_number"`
			Justification string `json:"justification"`
		} `json:"list_of_quotes"`
	}
	if err := json.Unmarshal([]byte(resp), &payload); err != nil {
		return nil, newError("UNEXPECTED_RESPONSE", "引用リストの解析に失敗しました。", err)
	}

	quotes := make([]string, 0, len(payload.Quotes))
	justifications := make([]string, 0, len(payload.Quotes))
	for _, q := range payload.Quotes {
		quotes = append(quotes, fmt.Sprintf("%s (page %s)", q.Quote, stringifyPage(q.PageNumber)))
		justifications = append(justifications, q.Justification)
	}
	return []string{strings.Join(quotes, "\n"), strings.Join(justifications, "\n")}, nil
}

func (structuredQuoteAnalyzer) ChunkSize() int { return 0 }

func (structuredQuoteAnalyzer) ExcerptCount(pages int) int { return defaultExcerptCount(pages) }

// rawQuoteAnalyzer はGPTの応答をそのまま1列で出力します。
type rawQuoteAnalyzer struct{}

func (rawQuoteAnalyzer) OutputPrompt(string) string {
	return "Provide an exhaustive list of quotes."
}

func (rawQuoteAnalyzer) ResponseFormat() gpt.ResponseFormat { return gpt.FormatText }

func (rawQuoteAnalyzer) Headers() []string { return []string{"Relevant Quotes"} }

func (rawQuoteAnalyzer) FormatResponse(resp string) ([]string, error) {
	return []string{resp}, nil
}

func (rawQuoteAnalyzer) ChunkSize() int { return 0 }

func (rawQuoteAnalyzer) ExcerptCount(pages int) int { return defaultExcerptCount(pages) }

// summaryAnalyzer は変数ごとの要約を生成します。要約は文脈が広いほど
// 質が上がるため、チャンクを大きめに取り抜粋数もページ数に比例させます。
type summaryAnalyzer struct{}

func (summaryAnalyzer) OutputPrompt(string) string { return "" }

func (summaryAnalyzer) ResponseFormat() gpt.ResponseFormat { return gpt.FormatText }

func (summaryAnalyzer) Headers() []string { return []string{"Summary"} }

func (summaryAnalyzer) FormatResponse(resp string) ([]string, error) {
	return []string{resp}, nil
}

func (summaryAnalyzer) ChunkSize() int { return 500 }

func (summaryAnalyzer) ExcerptCount(pages int) int { return 5 + pages }

// stringifyPage はJSON応答中のページ番号（文字列・数値の揺れあり）を
// 表示用文字列にします。
func stringifyPage(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%d", int(t))
	case nil:
		return "?"
	default:
		return fmt.Sprint(t)
	}
}

// buildVariablePrompt はメインクエリのテンプレートと出力形式指示から
// 変数1件分のプロンプトを組み立てます。
func buildVariablePrompt(template string, v VariableSpec, outputPrompt string, excerpts []string) string {
	main := strings.NewReplacer(
		"{variable_name}", v.Name,
		"{variable_description}", v.Description,
		"{context}", v.Context,
	).Replace(template)

	if outputPrompt != "" {
		outputPrompt = " " + outputPrompt
	}
	return fmt.Sprintf("<instructions>%s.%s</instructions> \n\n \"\"\"%s\"\"\"", main, outputPrompt, strings.Join(excerpts, "\n"))
}
