// Package jobs はHTTPリクエストの寿命を超えて動く処理の登録・進捗管理・
// 結果保存を提供します。レコードはファイルとして永続化されるため、
// プロセス再起動後もジョブIDやメールアドレスから結果を引けます。
package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal は終端状態（completed / failed）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。1ジョブ = 1ファイルとして永続化されます。
type Record struct {
	JobID     string         `json:"jobId"`
	Status    Status         `json:"status"`
	UserEmail string         `json:"userEmail,omitempty"`
	Progress  map[string]any `json:"progress"`
	Result    map[string]any `json:"result,omitempty"`
	Error     *ErrorInfo     `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone はマップを共有しないコピーを返します。値自体は呼び出し側で変更しない前提です。
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Progress != nil {
		out.Progress = make(map[string]any, len(r.Progress))
		for k, v := range r.Progress {
			out.Progress[k] = v
		}
	}
	if r.Result != nil {
		out.Result = make(map[string]any, len(r.Result))
		for k, v := range r.Result {
			out.Result[k] = v
		}
	}
	if r.Error != nil {
		errCopy := *r.Error
		out.Error = &errCopy
	}
	return &out
}
