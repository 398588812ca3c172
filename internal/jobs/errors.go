package jobs

import "errors"

// ジョブ操作が返すエラーの分類です。呼び出し側は errors.Is で判別します。
var (
	// ErrNotFound は指定されたジョブIDが存在しないことを表します。
	ErrNotFound = errors.New("job not found")

	// ErrExists は Create に渡されたジョブIDが既に使用されていることを表します。
	ErrExists = errors.New("job already exists")

	// ErrAlreadyTerminal は終端状態のジョブに対する変更要求を表します。
	ErrAlreadyTerminal = errors.New("job already in terminal state")

	// ErrCorrupt は保存されたレコードが解析できないことを表します。NotFound とは区別されます。
	ErrCorrupt = errors.New("job record corrupt")

	// ErrUnserializable は結果ペイロードが永続化形式に変換できないことを表します。
	ErrUnserializable = errors.New("job result not serializable")
)
