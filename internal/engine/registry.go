package engine

import "sync"

// Registry 以 ticket 为键的跟踪表，是"这单是否已被看护"的唯一事实源。
// 发现循环插入、各 watcher 删除自己的条目，三个操作都在同一把锁下，
// 并发发现同一个 ticket 时只有一次注册成功。
type Registry struct {
	mu     sync.RWMutex
	orders map[int64]*TrackedOrder
}

func NewRegistry() *Registry {
	return &Registry{orders: make(map[int64]*TrackedOrder)}
}

// Register 仅当 ticket 不存在时插入，返回是否插入成功。
// contains 检查与插入在同一临界区内完成。
func (r *Registry) Register(ticket int64, o *TrackedOrder) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[ticket]; ok {
		return false
	}
	r.orders[ticket] = o
	return true
}

// Unregister 删除条目，不存在时为 no-op。
func (r *Registry) Unregister(ticket int64) {
	r.mu.Lock()
	delete(r.orders, ticket)
	r.mu.Unlock()
}

// Get 返回跟踪记录；只应读取注册后不变的字段。
func (r *Registry) Get(ticket int64) (*TrackedOrder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[ticket]
	return o, ok
}

// Contains 查询 ticket 是否在跟踪中。
func (r *Registry) Contains(ticket int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.orders[ticket]
	return ok
}

// Count 当前跟踪数量，供状态接口展示。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// Tickets 返回当前全部 ticket（注册后不变的字段，读取无竞态）。
func (r *Registry) Tickets() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.orders))
	for t := range r.orders {
		out = append(out, t)
	}
	return out
}
