package jobs

import (
	"context"
	"log"
	"time"
)

// Sweeper は保存領域を定期的に走査し、保持期間を超えたレコードを
// 削除します。年齢判定のみで削除するため、終端に達していない古い
// ジョブも対象になります（記録が消えるだけで、実行中のゴルーチンを
// 止めるわけではありません）。
type Sweeper struct {
	manager   *Manager
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
}

// NewSweeper は Sweeper を作成します。interval が0以下の場合は
// retention の 1/4（最低1分）で実行します。
func NewSweeper(manager *Manager, retention, interval time.Duration, logger *log.Logger) *Sweeper {
	if interval <= 0 {
		interval = retention / 4
		if interval < time.Minute {
			interval = time.Minute
		}
	}
	return &Sweeper{
		manager:   manager,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start は掃除ループをバックグラウンドで起動します。
func (s *Sweeper) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run は起動直後に1回掃除し、以後 interval ごとに繰り返します。
// ctx のキャンセルで停止します。
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	deleted, err := s.manager.Cleanup(s.retention)
	if err != nil {
		s.logf("job sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		s.logf("job sweep removed %d expired record(s)", deleted)
	}
}

func (s *Sweeper) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
