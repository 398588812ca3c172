package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/policy-reader/internal/extract"
	"github.com/yourusername/policy-reader/internal/gpt"
	"github.com/yourusername/policy-reader/internal/mail"
	"github.com/yourusername/policy-reader/internal/report"
)

// RunJob はジョブIDに対応する解析を実行します。文書単位の失敗はバッチを
// 止めず、結果ブックの末尾に失敗一覧として記録されます。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	ws := s.workspaceFor(jobID)
	manifest, err := loadManifest(ws.dir)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	an, err := analyzerFor(manifest.TaskType, manifest.OutputFormat)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}
	client, err := gpt.NewClient(s.cfg.APIKeyForProfile(manifest.Profile), manifest.GPTModel, s.cfg.EmbeddingModel, s.cache)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, newError("CONFIG_ERROR", "OpenAIクライアントの初期化に失敗しました。", err)
	}

	result, runErr := s.executeAnalysis(ctx, ws, manifest, an, client, reporter)
	if runErr != nil {
		if cleanupErr := removeDir(ws.dir); cleanupErr != nil {
			runErr = fmt.Errorf("%w (ワークスペースの削除にも失敗しました: %v)", runErr, cleanupErr)
		}
		return nil, runErr
	}
	return result, nil
}

func (s *Service) executeAnalysis(ctx context.Context, ws workspace, manifest *JobManifest, an analyzer, client *gpt.Client, reporter ProgressReporter) (*Result, error) {
	stored := storedFilesFromManifest(ws.dir, manifest)
	if len(stored) == 0 {
		return nil, fmt.Errorf("manifest has no input files")
	}

	start := s.now()
	wb, err := report.NewWorkbook()
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	if err := wb.WriteQueryInfo(manifest.MainQuery, reportVariables(manifest.Variables)); err != nil {
		return nil, err
	}

	reportProgress(reporter, map[string]any{
		"totalDocs":      len(stored),
		"totalVariables": len(manifest.Variables),
	})

	totalPages := 0
	var failed []string
	for i, doc := range stored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reportProgress(reporter, map[string]any{
			"currentDoc": i + 1,
			"message":    fmt.Sprintf("%s を解析しています", doc.originalName),
		})

		sections, err := extractSections(doc, manifest.ChunkSize)
		if err != nil {
			s.logf("文書の抽出に失敗しました: job=%s doc=%s err=%v", ws.jobID, doc.originalName, err)
			failed = append(failed, doc.originalName)
			continue
		}

		for _, section := range sections {
			label := doc.originalName
			if section.SectionNum > 0 {
				label = fmt.Sprintf("%s (%d of %d)", doc.originalName, section.SectionNum, len(sections))
			}
			totalPages += section.Pages

			rows, err := s.analyzeSection(ctx, client, an, manifest, section, reporter)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.logf("文書の解析に失敗しました: job=%s doc=%s err=%v", ws.jobID, label, err)
				failed = append(failed, label)
				continue
			}
			if err := wb.AddDocument(report.DocumentResult{
				Name:    label,
				Headers: an.Headers(),
				Rows:    rows,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := wb.WriteMetrics(len(stored), totalPages, s.now().Sub(start), failed); err != nil {
		return nil, err
	}
	outputPath := filepath.Join(ws.outDir, resultFilename)
	if err := wb.SaveAs(outputPath); err != nil {
		return nil, err
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("結果ブックの確認に失敗しました: %w", err)
	}

	s.sendResultsMail(manifest.Email, outputPath)
	s.logf("%s: %s GMT, %d documents, %d pages, job=%s",
		mail.MaskEmail(manifest.Email), s.now().UTC().Format("2006-01-02 15:04:05"), len(stored), totalPages, ws.jobID)

	// 保持期限が過ぎたら成果物ごとワークスペースを削除する
	retention := time.Duration(s.cfg.JobRetentionHours) * time.Hour
	if retention > 0 {
		time.AfterFunc(retention, func() {
			_ = removeDir(ws.dir)
		})
	}

	reportProgress(reporter, map[string]any{"message": "解析が完了しました"})

	return &Result{
		JobID:          ws.jobID,
		OutputPath:     outputPath,
		OutputFilename: resultFilename,
		OutputSize:     info.Size(),
		Documents:      len(stored),
		Pages:          totalPages,
		Failed:         failed,
	}, nil
}

// analyzeSection は1セクション分の全変数を問い合わせます。コンテキストに
// 収まる短い文書は全文のまま、長い文書は変数ごとの関連抜粋だけを渡します。
func (s *Service) analyzeSection(ctx context.Context, client *gpt.Client, an analyzer, manifest *JobManifest, section extract.Section, reporter ProgressReporter) ([]report.Row, error) {
	runOnFullText := section.CharCount < s.cfg.MaxContextChars-1000

	var chunkEmbeddings [][]float32
	var varEmbeddings [][]float32
	if !runOnFullText {
		var err error
		chunkEmbeddings, err = client.EmbedChunks(ctx, section.Chunks)
		if err != nil {
			return nil, err
		}
		prompts := make([]string, len(manifest.Variables))
		for i, v := range manifest.Variables {
			prompts[i] = variableEmbedText(v)
		}
		varEmbeddings, err = client.EmbedChunks(ctx, prompts)
		if err != nil {
			return nil, err
		}
	}

	rows := make([]report.Row, 0, len(manifest.Variables))
	for i, v := range manifest.Variables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reportProgress(reporter, map[string]any{"currentVariable": i + 1})

		excerpts := section.Chunks
		if !runOnFullText {
			excerpts = gpt.TopRelevant(chunkEmbeddings, section.Chunks, varEmbeddings[i], an.ExcerptCount(section.Pages), v.Name)
		}

		prompt := buildVariablePrompt(manifest.MainQuery, v, an.OutputPrompt(v.Name), excerpts)
		resp, err := client.Query(ctx, prompt, an.ResponseFormat(), runOnFullText)
		if err != nil {
			return nil, err
		}
		values, err := an.FormatResponse(resp)
		if err != nil {
			return nil, err
		}
		rows = append(rows, report.Row{Variable: v.Name, Values: values})
	}
	return rows, nil
}

func (s *Service) sendResultsMail(email, outputPath string) {
	if s.mailer == nil || !s.mailer.Enabled() {
		return
	}
	data, err := os.ReadFile(outputPath)
	if err != nil {
		s.logf("結果メール用のファイル読み込みに失敗しました: %v", err)
		return
	}
	if err := s.mailer.SendResults(email, resultFilename, data); err != nil {
		s.logf("結果メールの送信に失敗しました: %v", err)
	}
}

func extractSections(doc storedFile, chunkSize int) ([]extract.Section, error) {
	switch doc.kind {
	case fileKindDOCX:
		return extract.FromDOCX(doc.path, chunkSize)
	default:
		return extract.FromPDF(doc.path, chunkSize)
	}
}

// variableEmbedText は変数定義から埋め込み用のテキストを組み立てます。
func variableEmbedText(v VariableSpec) string {
	prompt := v.Name
	if len(v.Description) > 1 {
		prompt = fmt.Sprintf("%s: '%s'", v.Name, v.Description)
	}
	if len(v.Context) > 1 {
		prompt += ". Context: " + v.Context
	}
	return prompt
}

func reportVariables(variables []VariableSpec) []report.Variable {
	out := make([]report.Variable, len(variables))
	for i, v := range variables {
		out[i] = report.Variable{Name: v.Name, Description: v.Description, Context: v.Context}
	}
	return out
}
