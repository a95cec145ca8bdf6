package registry

import (
	"sort"
	"sync"

	"autframe/internal/session"
	"autframe/pkg/domain"
)

// Entry 已注册的会话及其浏览器目标
type Entry struct {
	Session *session.Session
	Target  domain.TargetID
}

// Registry 进程内会话表，由宿主创建并注入
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.SessionID]Entry
}

// New 创建会话表
func New() *Registry {
	return &Registry{entries: make(map[domain.SessionID]Entry)}
}

// Add 注册会话
func (r *Registry) Add(s *session.Session, target domain.TargetID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.ID()] = Entry{Session: s, Target: target}
}

// Get 按ID查找会话
func (r *Registry) Get(id domain.SessionID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Remove 移除并返回会话
func (r *Registry) Remove(id domain.SessionID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

// List 按创建时间返回全部会话
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Session.CreatedAt(), out[j].Session.CreatedAt()
		if ti.Equal(tj) {
			return out[i].Session.ID() < out[j].Session.ID()
		}
		return ti.Before(tj)
	})
	return out
}

// Len 返回会话数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
