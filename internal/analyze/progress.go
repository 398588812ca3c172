package analyze

// ProgressReporter は進捗更新用コールバックです。キーと値はそのまま
// ジョブレコードの progress にマージされます。
type ProgressReporter func(update map[string]any)

func reportProgress(cb ProgressReporter, update map[string]any) {
	if cb == nil {
		return
	}
	cb(update)
}
