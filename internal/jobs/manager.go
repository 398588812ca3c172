package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Manager はジョブの状態遷移と永続化をまとめた公開APIです。
// 状態機械は pending → running → {completed, failed} の一方向のみで、
// 終端状態に入ったレコードへの変更要求は ErrAlreadyTerminal で拒否します。
type Manager struct {
	store    *Store
	registry *registry
	logger   *log.Logger
	now      func() time.Time
}

// NewManager は Manager を作成します。logger は nil でも構いません。
func NewManager(store *Store, logger *log.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	return &Manager{
		store:    store,
		registry: newRegistry(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Create は pending 状態の新規レコードを書き込み、返します。
// jobID が空の場合はランダムなUUIDを割り当てます。指定された場合、
// 既存IDとの衝突は ErrExists になります。
func (m *Manager) Create(userEmail, jobID string) (*Record, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	} else if err := validateJobID(jobID); err != nil {
		return nil, err
	}

	lock := m.registry.lock(jobID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.Read(jobID); !errors.Is(err, ErrNotFound) {
		if err == nil || errors.Is(err, ErrCorrupt) {
			return nil, fmt.Errorf("%w: %s", ErrExists, jobID)
		}
		return nil, err
	}

	now := m.now().UTC()
	record := &Record{
		JobID:     jobID,
		Status:    StatusPending,
		UserEmail: userEmail,
		Progress:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Write(record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Get はレコードを返します。読み取りはロックを取りません。書き込みが
// 原子的置換であるため、多少古くても常に構造的に完全なレコードが読めます。
func (m *Manager) Get(jobID string) (*Record, error) {
	return m.store.Read(jobID)
}

// MarkRunning はジョブを running に遷移させます。既に running の場合は
// updatedAt の更新のみ行います。
func (m *Manager) MarkRunning(jobID string) error {
	return m.mutate(jobID, func(record *Record) error {
		record.Status = StatusRunning
		return nil
	})
}

// UpdateProgress は進捗マップへ渡されたキーをマージします（全置換では
// ありません）。pending のジョブは最初の進捗更新で running に遷移します。
func (m *Manager) UpdateProgress(jobID string, updates map[string]any) error {
	return m.mutate(jobID, func(record *Record) error {
		if record.Status == StatusPending {
			record.Status = StatusRunning
		}
		if record.Progress == nil {
			record.Progress = make(map[string]any, len(updates))
		}
		for k, v := range updates {
			record.Progress[k] = v
		}
		return nil
	})
}

// MarkCompleted は結果を保存して completed に遷移させます。結果が直列化
// できない場合はジョブを failed に落とした上で ErrUnserializable を
// 返します（終端状態に到達させず放置することはしません）。
func (m *Manager) MarkCompleted(jobID string, result map[string]any) error {
	if _, err := json.Marshal(result); err != nil {
		failErr := m.MarkFailed(jobID, &ErrorInfo{
			Code:    "UNSERIALIZABLE_RESULT",
			Message: fmt.Sprintf("result payload could not be serialized: %v", err),
		})
		if failErr != nil {
			return failErr
		}
		return fmt.Errorf("%w: job=%s: %v", ErrUnserializable, jobID, err)
	}

	return m.mutate(jobID, func(record *Record) error {
		record.Status = StatusCompleted
		record.Result = result
		record.Error = nil
		return nil
	})
}

// MarkFailed はエラー情報を保存して failed に遷移させます。
func (m *Manager) MarkFailed(jobID string, errInfo *ErrorInfo) error {
	if errInfo == nil {
		errInfo = &ErrorInfo{Message: "unknown error"}
	}
	return m.mutate(jobID, func(record *Record) error {
		record.Status = StatusFailed
		record.Error = errInfo
		record.Result = nil
		return nil
	})
}

// FindByEmail は指定メールアドレスのジョブを作成日時の新しい順で返します。
// limit が正の場合はその件数に切り詰めます。壊れたレコードはログに残して
// 読み飛ばします。
func (m *Manager) FindByEmail(email string, limit int) ([]*Record, error) {
	entries, err := m.store.List()
	if err != nil {
		return nil, err
	}

	matched := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry.Err != nil {
			m.logf("skipping corrupt job record %s: %v", entry.JobID, entry.Err)
			continue
		}
		if entry.Record.UserEmail == email {
			matched = append(matched, entry.Record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Cleanup は作成から retention を超えたレコードを削除し、削除件数を
// 返します。壊れたレコードは createdAt が読めないためファイルの更新時刻で
// 年齢を判定します。個別の削除失敗はログに残して続行します。
func (m *Manager) Cleanup(retention time.Duration) (int, error) {
	entries, err := m.store.List()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().UTC().Add(-retention)
	deleted := 0
	for _, entry := range entries {
		age := entry.ModTime
		if entry.Err == nil {
			age = entry.Record.CreatedAt
		}
		if age.IsZero() || !age.Before(cutoff) {
			continue
		}

		lock := m.registry.lock(entry.JobID)
		lock.Lock()
		err := m.store.Delete(entry.JobID)
		lock.Unlock()
		if err != nil {
			m.logf("failed to delete expired job %s: %v", entry.JobID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// mutate は per-id ロックの下で read-modify-write を行います。
func (m *Manager) mutate(jobID string, fn func(*Record) error) error {
	lock := m.registry.lock(jobID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.Read(jobID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return fmt.Errorf("%w: job=%s status=%s", ErrAlreadyTerminal, jobID, record.Status)
	}
	if err := fn(record); err != nil {
		return err
	}
	record.UpdatedAt = m.now().UTC()
	return m.store.Write(record)
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
