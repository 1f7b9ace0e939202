package request

import "ContextIndex/internal/modules/index/domain/index"

// ScopeRequest type 取 provider 或 source
type ScopeRequest struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// SearchRequest user_id 为空时使用 JWT 中的 uuid
type SearchRequest struct {
	UserID string        `json:"user_id"`
	Query  string        `json:"query" binding:"required"`
	K      int           `json:"k"`
	Scope  *ScopeRequest `json:"scope,omitempty"`
}

func (r SearchRequest) ToDomain(userID string) index.SearchRequest {
	out := index.SearchRequest{UserID: userID, Query: r.Query, K: r.K}
	if r.Scope != nil {
		out.Scope = &index.Scope{Type: index.ScopeType(r.Scope.Type), Values: r.Scope.Values}
	}
	return out
}
