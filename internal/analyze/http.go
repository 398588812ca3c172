package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AnalyzeService は解析ジョブの準備・実行・破棄を提供します。
type AnalyzeService interface {
	PrepareJob(ctx context.Context, in PrepareInput) (*JobManifest, error)
	RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error)
	DiscardJob(jobID string) error
}

// JobScheduler は準備済みジョブを非同期実行へ引き渡します。
type JobScheduler interface {
	Schedule(ctx context.Context, manifest *JobManifest) error
}

// AnalyzeHandler は POST /api/analyze のハンドラーを返します。ジョブを
// 準備してスケジューラへ渡し、202 とジョブIDを即座に返します。
func AnalyzeHandler(svc AnalyzeService, scheduler JobScheduler, profileKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data で文書ファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロードされた文書ファイルが見つかりません。",
			})
			return
		}

		variables, err := parseVariables(c.PostForm("variables"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		input := PrepareInput{
			Files:        files,
			TaskType:     TaskType(strings.TrimSpace(c.PostForm("taskType"))),
			OutputFormat: OutputFormat(strings.TrimSpace(c.PostForm("outputFormat"))),
			MainQuery:    c.PostForm("mainQuery"),
			Variables:    variables,
			Email:        strings.TrimSpace(c.PostForm("email")),
			Profile:      c.GetString(profileKey),
			GPTModel:     c.PostForm("gptModel"),
		}

		manifest, err := svc.PrepareJob(c.Request.Context(), input)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if err := scheduler.Schedule(c.Request.Context(), manifest); err != nil {
			if cleanupErr := svc.DiscardJob(manifest.JobID); cleanupErr != nil {
				err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
			}
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"jobId": manifest.JobID})
	}
}

func extractFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File["files[]"]; len(files) > 0 {
		return files
	}
	if files := form.File["files"]; len(files) > 0 {
		return files
	}
	if file := form.File["file"]; len(file) > 0 {
		return file
	}
	return nil
}

// parseVariables は変数指定のJSON（オブジェクト配列または文字列配列）を
// 解析します。
func parseVariables(raw string) ([]VariableSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("variables は JSON 形式で指定してください。例: [{\"name\":\"target\"}]")
	}

	var specs []VariableSpec
	if err := json.Unmarshal([]byte(raw), &specs); err == nil {
		return specs, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, errors.New("variables の形式が正しくありません。")
	}
	specs = make([]VariableSpec, len(names))
	for i, name := range names {
		specs[i] = VariableSpec{Name: name}
	}
	return specs, nil
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case "LIMIT_EXCEEDED":
			status = http.StatusRequestEntityTooLarge
		case "CONFIG_ERROR":
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
