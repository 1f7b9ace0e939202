package http

import (
	"strings"

	indexRequest "ContextIndex/internal/modules/index/application/dto/request"
	indexRespond "ContextIndex/internal/modules/index/application/dto/respond"
	"ContextIndex/internal/modules/index/application/service"
	"ContextIndex/pkg/back"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueryHandler 带权限过滤的相似度检索
type QueryHandler struct {
	querySvc service.QueryService
}

func NewQueryHandler(querySvc service.QueryService) *QueryHandler {
	return &QueryHandler{querySvc: querySvc}
}

// Search 处理检索请求
//
// 路由: POST /query/search
// 鉴权: 需要 JWT；body 未指定 user_id 时以 token 中的 uuid 作为检索用户
func (h *QueryHandler) Search(c *gin.Context) {
	var req indexRequest.SearchRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = strings.TrimSpace(c.GetString("uuid"))
	}
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}
	docs, err := h.querySvc.Search(c.Request.Context(), req.ToDomain(userID))
	if err != nil {
		zlog.Info("search failed", zap.String("user_id", userID), zap.Error(err))
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.FromDocuments(docs))
}
