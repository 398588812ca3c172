package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/policy-reader/internal/analyze"
	"github.com/yourusername/policy-reader/internal/jobs"
)

// 自分のジョブ一覧で返す最大件数
const jobListLimit = 5

// analyzeScheduler は準備済みの解析ジョブをジョブレコードに登録し、
// バックグラウンド実行へ引き渡します。
type analyzeScheduler struct {
	manager *jobs.Manager
	runner  *jobs.Runner
	service *analyze.Service
}

func (s *analyzeScheduler) Schedule(ctx context.Context, manifest *analyze.JobManifest) error {
	if _, err := s.manager.Create(manifest.Email, manifest.JobID); err != nil {
		return err
	}

	jobID := manifest.JobID
	reporter := func(update map[string]any) {
		_ = s.manager.UpdateProgress(jobID, update)
	}
	// リクエストコンテキストは202応答で閉じるため実行には使わない
	s.runner.Go(context.Background(), jobID, func(taskCtx context.Context) (map[string]any, error) {
		result, err := s.service.RunJob(taskCtx, jobID, reporter)
		if err != nil {
			return nil, err
		}
		return result.ToJobResult(), nil
	})
	return nil
}

func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.Get(jobID)
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_NOT_FOUND",
					"message": "指定されたジョブは存在しません。",
				})
			case errors.Is(err, jobs.ErrCorrupt):
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    "JOB_RECORD_CORRUPT",
					"message": "ジョブレコードを読み取れませんでした。",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "ジョブ情報の取得に失敗しました。",
				})
			}
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"status":    record.Status,
			"progress":  record.Progress,
			"createdAt": record.CreatedAt,
			"updatedAt": record.UpdatedAt,
		}
		if record.Result != nil {
			payload["result"] = record.Result
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}
		c.JSON(http.StatusOK, payload)
	}
}

func jobListHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.TrimSpace(c.Query("email"))
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "email を指定してください。",
			})
			return
		}

		records, err := manager.FindByEmail(email, jobListLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ一覧の取得に失敗しました。",
			})
			return
		}

		items := make([]gin.H, 0, len(records))
		for _, record := range records {
			items = append(items, gin.H{
				"jobId":     record.JobID,
				"status":    record.Status,
				"createdAt": record.CreatedAt,
				"updatedAt": record.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"jobs": items})
	}
}

func jobDownloadHandler(manager *jobs.Manager, service *analyze.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.Get(jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_NOT_FOUND",
					"message": "指定されたジョブは存在しません。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record.Status != jobs.StatusCompleted {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "JOB_NOT_COMPLETED",
				"message": "ジョブはまだ完了していません。",
			})
			return
		}

		result, file, err := service.OpenResultFile(jobID)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_RESULT_NOT_FOUND",
					"message": "ジョブの成果物が見つかりませんでした。保持期限を過ぎた可能性があります。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブの成果物取得に失敗しました。",
			})
			return
		}
		defer file.Close()

		const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		encodedName := url.PathEscape(result.OutputFilename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", result.JobID)
		c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	}
}
