package service

import "sync"

// ownerLocks 按账号串行化台账操作。轮询与重试的定时触发相互
// 独立，同一账号上两次 tick 重叠执行是真实存在的竞态来源。
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire 锁定某账号，返回解锁函数。锁实例按账号懒创建且不回收，
// 账号数量与接入的邮箱数同阶，不构成泄漏压力。
func (l *ownerLocks) acquire(ownerEmail string) func() {
	l.mu.Lock()
	m, ok := l.locks[ownerEmail]
	if !ok {
		m = &sync.Mutex{}
		l.locks[ownerEmail] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
