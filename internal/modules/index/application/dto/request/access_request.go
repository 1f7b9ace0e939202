package request

type DeclareAccessRequest struct {
	SourceID string   `json:"source_id" binding:"required"`
	UserIDs  []string `json:"user_ids"`
}

// UpdateAccessRequest op 取 GRANT / REVOKE
type UpdateAccessRequest struct {
	Op       string   `json:"op" binding:"required"`
	UserIDs  []string `json:"user_ids" binding:"required"`
	SourceID string   `json:"source_id" binding:"required"`
}

type UpdateAccessProviderRequest struct {
	Op       string   `json:"op" binding:"required"`
	UserIDs  []string `json:"user_ids" binding:"required"`
	Provider string   `json:"provider" binding:"required"`
}

type DeleteUserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}
