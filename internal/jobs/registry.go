package jobs

import "sync"

// registry はジョブIDごとのロックを遅延生成して保持します。
// 同一IDに対する read-modify-write を直列化し、別IDの更新同士は
// 並行して進められるようにします。ロックは参照中に取り除かれると
// 困るため、プロセス存続中は解放しません（想定規模は数十ジョブ）。
type registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRegistry() *registry {
	return &registry{locks: make(map[string]*sync.Mutex)}
}

func (r *registry) lock(jobID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[jobID] = l
	}
	return l
}
