// Package analyze は文書バッチ解析ジョブの準備と実行を提供します。
package analyze

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"strings"
	"time"

	"github.com/yourusername/policy-reader/internal/config"
	"github.com/yourusername/policy-reader/internal/gpt"
	"github.com/yourusername/policy-reader/internal/mail"
)

// Service は解析ジョブのワークスペース管理とパイプライン実行を担います。
type Service struct {
	cfg    *config.Config
	cache  *gpt.Cache
	mailer *mail.Sender
	logger *log.Logger
	now    func() time.Time
}

// NewService は Service を作成します。cache / mailer / logger は nil でも
// 構いません。
func NewService(cfg *config.Config, cache *gpt.Cache, mailer *mail.Sender, logger *log.Logger) *Service {
	return &Service{
		cfg:    cfg,
		cache:  cache,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
}

// PrepareInput はジョブ準備に必要なユーザー入力です。
type PrepareInput struct {
	Files        []*multipart.FileHeader
	TaskType     TaskType
	OutputFormat OutputFormat
	MainQuery    string
	Variables    []VariableSpec
	Email        string
	Profile      string
	GPTModel     string
}

// PrepareJob は入力ファイルをワークスペースへ取り込み、マニフェストを
// 保存します。以降の実行は RunJob がマニフェストだけを頼りに行います。
func (s *Service) PrepareJob(ctx context.Context, in PrepareInput) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(in.Files) == 0 {
		return nil, newError("INVALID_INPUT", "解析する文書ファイルをアップロードしてください。", nil)
	}
	if strings.TrimSpace(in.MainQuery) == "" {
		return nil, newError("INVALID_INPUT", "メインクエリを入力してください。", nil)
	}
	if len(in.Variables) == 0 {
		return nil, newError("INVALID_INPUT", "変数を1件以上指定してください。", nil)
	}
	for _, v := range in.Variables {
		if strings.TrimSpace(v.Name) == "" {
			return nil, newError("INVALID_INPUT", "変数名が空の指定が含まれています。", nil)
		}
	}
	if !strings.Contains(in.Email, "@") {
		return nil, newError("INVALID_INPUT", "結果送付先のメールアドレスを指定してください。", nil)
	}
	if s.cfg.APIKeyForProfile(in.Profile) == "" {
		return nil, newError("CONFIG_ERROR", "OpenAI APIキーが設定されていません。", nil)
	}

	an, err := analyzerFor(in.TaskType, in.OutputFormat)
	if err != nil {
		return nil, err
	}
	chunkSize := an.ChunkSize()
	if chunkSize == 0 {
		chunkSize = s.cfg.ChunkSize
	}
	model := strings.TrimSpace(in.GPTModel)
	if model == "" {
		model = s.cfg.GPTModel
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	stored, err := s.storeUploads(ctx, in.Files, ws.inDir)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	manifest := &JobManifest{
		JobID:        ws.jobID,
		TaskType:     in.TaskType,
		OutputFormat: in.OutputFormat,
		MainQuery:    in.MainQuery,
		Variables:    in.Variables,
		Email:        in.Email,
		Profile:      in.Profile,
		GPTModel:     model,
		ChunkSize:    chunkSize,
		Files:        toJobFiles(stored),
		CreatedAt:    s.now().UTC(),
	}
	if err := writeManifest(ws.dir, manifest); err != nil {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}
	return manifest, nil
}

// DiscardJob はジョブのワークスペースを破棄します。
func (s *Service) DiscardJob(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("jobID is required")
	}
	return removeDir(s.workspaceFor(jobID).dir)
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
