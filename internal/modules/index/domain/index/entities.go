package index

import (
	"strings"
	"time"

	"ContextIndex/pkg/xerr"
)

// Document 一个逻辑文档，source_id 全局唯一；chunks 为该文档拥有的向量 chunk id，按原始顺序排列。
//
// (source_id, modified) 唯一索引与主键重复，保留它只是为了维持"同一 source_id 不会有两行"的约束，
// 不代表多版本语义。
//
// Access 只用来声明 access_list.source_id -> docs.source_id 的外键（删除文档级联删除授权），
// 仓储读写都 Omit 关联，不会通过它加载或写入。
type Document struct {
	SourceID string        `gorm:"column:source_id;type:varchar(255);primaryKey;uniqueIndex:uniq_docs_source_modified,priority:1"`
	Provider string        `gorm:"column:provider;type:varchar(128);not null;index:idx_docs_provider"`
	Modified time.Time     `gorm:"column:modified;type:datetime;not null;uniqueIndex:uniq_docs_source_modified,priority:2"`
	Chunks   []string      `gorm:"column:chunks;type:json;serializer:json"`
	Access   []AccessEntry `gorm:"foreignKey:SourceID;references:SourceID;constraint:OnDelete:CASCADE"`
}

func (Document) TableName() string { return "docs" }

// AccessEntry 用户对文档的可见性；文档删除时级联删除
type AccessEntry struct {
	Id       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UID      string `gorm:"column:uid;type:varchar(255);not null;uniqueIndex:uniq_access_uid_source,priority:1"`
	SourceID string `gorm:"column:source_id;type:varchar(255);not null;uniqueIndex:uniq_access_uid_source,priority:2;index:idx_access_source"`
}

func (AccessEntry) TableName() string { return "access_list" }

// Chunk 待写入向量引擎的一段内容
type Chunk struct {
	Content  string
	Metadata map[string]any
}

// InDocument 一次摄取请求中的单个文档
type InDocument struct {
	SourceID string
	Provider string
	Modified time.Time
	UserIDs  []string
	Chunks   []Chunk
}

// Validate 摄取前的基本校验：source_id、授权用户、chunk 都不能为空
func (d *InDocument) Validate() error {
	if strings.TrimSpace(d.SourceID) == "" {
		return xerr.Wrapf(ErrInvalidDocument, "missing source_id")
	}
	hasUser := false
	for _, uid := range d.UserIDs {
		if strings.TrimSpace(uid) != "" {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return xerr.Wrapf(ErrInvalidDocument, "source %s has no authorized users", d.SourceID)
	}
	if len(d.Chunks) == 0 {
		return xerr.Wrapf(ErrInvalidDocument, "source %s has no chunks", d.SourceID)
	}
	return nil
}

// SourceCandidate 调用方认为需要检查的文档及其最新修改时间
type SourceCandidate struct {
	SourceID string
	Modified time.Time
}

// StaleResult findStale 的判定结果
type StaleResult struct {
	// Existing 已在索引中的 source_id（包含过期的）
	Existing []string
	// ToEmbed 未知或过期，需要重新向量化
	ToEmbed []string
	// ToDelete 过期，旧 chunk 需要删除
	ToDelete []string
}

// SourceCheckResult checkSources 的返回
type SourceCheckResult struct {
	StillCurrent []string
	ToEmbed      []string
	ToDelete     []string
}

// AccessOp 增量权限操作
type AccessOp string

const (
	AccessGrant  AccessOp = "GRANT"
	AccessRevoke AccessOp = "REVOKE"
)

// ParseAccessOp 兼容 allow/deny 的写法
func ParseAccessOp(s string) (AccessOp, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GRANT", "ALLOW":
		return AccessGrant, nil
	case "REVOKE", "DENY":
		return AccessRevoke, nil
	default:
		return "", ErrInvalidAccessOp
	}
}

func (op AccessOp) Valid() bool {
	return op == AccessGrant || op == AccessRevoke
}

// AccessReport 按 provider 批量修改权限的逐文档结果
type AccessReport struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// ScopeType 检索范围类型
type ScopeType string

const (
	ScopeProvider ScopeType = "provider"
	ScopeSource   ScopeType = "source"
)

// Scope 把检索限制在若干 provider 或若干 source_id 内
type Scope struct {
	Type   ScopeType
	Values []string
}

// Validate 指定了范围类型但列表为空视为非法参数
func (s *Scope) Validate() error {
	if s == nil {
		return nil
	}
	if s.Type != ScopeProvider && s.Type != ScopeSource {
		return ErrInvalidScope
	}
	for _, v := range s.Values {
		if strings.TrimSpace(v) != "" {
			return nil
		}
	}
	return ErrInvalidScope
}

// SearchRequest 用户检索请求
type SearchRequest struct {
	UserID string
	Query  string
	K      int
	Scope  *Scope
}

// NormalizeModified 统一到秒级 UTC，关系库只保存到秒
func NormalizeModified(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// IsOlder 按秒比较，stored 早于 claimed 即过期
func IsOlder(stored, claimed time.Time) bool {
	return stored.Unix() < claimed.Unix()
}
