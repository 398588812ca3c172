package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const recordSuffix = ".json"

// Store はジョブ状態をローカルファイルシステムに保存します。
// 1ジョブにつき1ファイル（<jobID>.json）で、書き込みは一時ファイルへの
// 書き出しと os.Rename による置き換えで行うため、読み手が書きかけの
// レコードを観測することはありません。
type Store struct {
	dir string
}

// Entry は List が返す1件分の走査結果です。レコードが壊れている場合は
// Record が nil となり、Err に原因が入ります。ModTime は破損レコードの
// 年齢判定（掃除処理のフォールバック）に使用します。
type Entry struct {
	JobID   string
	Record  *Record
	Err     error
	ModTime time.Time
}

// NewStore は保存先ディレクトリを作成して Store を返します。
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("jobs dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create jobs dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir は保存先ディレクトリを返します。
func (s *Store) Dir() string {
	return s.dir
}

// Write はレコード全体を直列化して置き換えます。同一ディレクトリ内の
// 一時ファイルに書いてから rename するため、対象ファイルを直接
// 切り詰めることはありません。
func (s *Store) Write(record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if err := validateJobID(record.JobID); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: job=%s: %v", ErrUnserializable, record.JobID, err)
	}

	tmp, err := os.CreateTemp(s.dir, record.JobID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp record: %w", err)
	}
	if err := os.Rename(tmpName, s.recordPath(record.JobID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

// Read はジョブIDに対応するレコードを返します。ファイルが無い場合は
// ErrNotFound、解析できない場合は ErrCorrupt を返します。
func (s *Store) Read(jobID string) (*Record, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.recordPath(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to read record %s: %w", jobID, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, jobID, err)
	}
	return &record, nil
}

// List は保存されている全レコードを走査します。走査中に並行して書き込みが
// あってもスナップショット一貫性は保証しません（各エントリ単位では
// 常に完全なレコードです）。
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan jobs dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		jobID := strings.TrimSuffix(name, recordSuffix)

		entry := Entry{JobID: jobID}
		if info, err := de.Info(); err == nil {
			entry.ModTime = info.ModTime()
		}

		record, err := s.Read(jobID)
		switch {
		case err == nil:
			entry.Record = record
		case errors.Is(err, ErrNotFound):
			// 走査中に削除された。エントリ自体を飛ばす
			continue
		default:
			entry.Err = err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete はレコードファイルを削除します。存在しない場合もエラーにしません。
func (s *Store) Delete(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if err := os.Remove(s.recordPath(jobID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete record %s: %w", jobID, err)
	}
	return nil
}

func (s *Store) recordPath(jobID string) string {
	return filepath.Join(s.dir, jobID+recordSuffix)
}

// validateJobID はファイル名として安全なIDであることを確認します。
func validateJobID(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	if strings.ContainsAny(jobID, "/\\") || jobID == "." || jobID == ".." {
		return fmt.Errorf("invalid jobID: %q", jobID)
	}
	return nil
}
