// Package session 按浏览器会话缓存表单取值，替代进程级全局状态。
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rushteam/leadscore/core"
)

const (
	// CookieName 携带会话 ID
	CookieName = "leadscore_session"
	// KeyPrefix 是存储 key 前缀
	KeyPrefix = "session:"
	// DefaultTTL 为会话过期时间
	DefaultTTL = 24 * time.Hour
)

// Data 是单个会话的缓存内容
type Data struct {
	// Values 为上次加载或提交的字段取值（未归一化）
	Values map[string]any `json:"values"`
	// LastReport 为最近一次成功预测的报告，失败的提交不会覆盖它
	LastReport *ReportRef `json:"last_report,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ReportRef 记录报告 ID、生成时间与对应的归一化取值，用于按需重新渲染同一份报告
type ReportRef struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Values    map[string]any `json:"values"`
}

// Manager 读写 Store 中的会话数据，每个请求显式传入会话 ID。
type Manager struct {
	store core.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager 创建会话管理器，ttl <= 0 时使用 DefaultTTL
func NewManager(store core.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// NewID 生成新的会话 ID
func NewID() string { return uuid.NewString() }

// ValidID 检查 cookie 中的会话 ID 是否为合法 uuid
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func key(id string) string { return KeyPrefix + id }

// Load 读取会话，不存在或已过期时返回空 Data
func (m *Manager) Load(ctx context.Context, id string) (*Data, error) {
	raw, err := m.store.Get(ctx, key(id))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return &Data{Values: map[string]any{}}, nil
		}
		return nil, err
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeInternalError, err, "session: decode %s", id)
	}
	if d.Values == nil {
		d.Values = map[string]any{}
	}
	return &d, nil
}

// Save 写入会话并刷新过期时间
func (m *Manager) Save(ctx context.Context, id string, d *Data) error {
	d.UpdatedAt = m.now().UTC()
	raw, err := json.Marshal(d)
	if err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInternalError, err, "session: encode %s", id)
	}
	return m.store.Set(ctx, key(id), raw, m.ttlSeconds())
}

// SetValues 覆盖会话中的字段取值
func (m *Manager) SetValues(ctx context.Context, id string, values map[string]any) error {
	d, err := m.Load(ctx, id)
	if err != nil {
		return err
	}
	d.Values = make(map[string]any, len(values))
	for k, v := range values {
		d.Values[k] = v
	}
	return m.Save(ctx, id, d)
}

// Clear 删除会话
func (m *Manager) Clear(ctx context.Context, id string) error {
	return m.store.Delete(ctx, key(id))
}

// TTL 返回会话过期时间
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) ttlSeconds() int {
	s := int(m.ttl / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
