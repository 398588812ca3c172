package analyze

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const resultFilename = "results.xlsx"

// Result は解析ジョブの成果を表します。
type Result struct {
	JobID          string   `json:"jobId"`
	OutputPath     string   `json:"-"`
	OutputFilename string   `json:"outputFile"`
	OutputSize     int64    `json:"-"`
	Documents      int      `json:"documents"`
	Pages          int      `json:"pages"`
	Failed         []string `json:"failed"`
}

// ToJobResult はジョブレコードに格納する結果ペイロードを返します。
func (r *Result) ToJobResult() map[string]any {
	failed := r.Failed
	if failed == nil {
		failed = []string{}
	}
	return map[string]any{
		"documents":  r.Documents,
		"pages":      r.Pages,
		"failed":     failed,
		"outputFile": r.OutputFilename,
	}
}

// OpenResultFile はジョブIDに対応する結果ブックを開き、Result 情報と
// ファイルハンドルを返します。
func (s *Service) OpenResultFile(jobID string) (*Result, *os.File, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, nil, fmt.Errorf("jobID is required")
	}

	ws := s.workspaceFor(jobID)
	outputPath := filepath.Join(ws.outDir, resultFilename)
	file, err := os.Open(outputPath)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	result := &Result{
		JobID:          jobID,
		OutputPath:     outputPath,
		OutputFilename: resultFilename,
		OutputSize:     info.Size(),
	}
	return result, file, nil
}
