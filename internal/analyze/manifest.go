package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFilename = "manifest.json"

// JobManifest は解析ジョブに必要な情報を保持します。
type JobManifest struct {
	JobID        string         `json:"jobId"`
	TaskType     TaskType       `json:"taskType"`
	OutputFormat OutputFormat   `json:"outputFormat"`
	MainQuery    string         `json:"mainQuery"`
	Variables    []VariableSpec `json:"variables"`
	Email        string         `json:"email"`
	Profile      string         `json:"profile"`
	GPTModel     string         `json:"gptModel"`
	ChunkSize    int            `json:"chunkSize"`
	Files        []JobFile      `json:"files"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// VariableSpec は抽出対象となる変数の定義です。
type VariableSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Context     string `json:"context,omitempty"`
}

// JobFile はジョブ入力ファイルのメタデータを表します。
type JobFile struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	Kind         string `json:"kind"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
}

func writeManifest(jobDir string, manifest *JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	path := filepath.Join(jobDir, manifestFilename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

func loadManifest(jobDir string) (*JobManifest, error) {
	path := filepath.Join(jobDir, manifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest JobManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
