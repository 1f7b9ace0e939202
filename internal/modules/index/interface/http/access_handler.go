package http

import (
	indexRequest "ContextIndex/internal/modules/index/application/dto/request"
	indexRespond "ContextIndex/internal/modules/index/application/dto/respond"
	"ContextIndex/internal/modules/index/application/service"
	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/pkg/back"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// AccessHandler 文档可见性管理
type AccessHandler struct {
	accessSvc service.AccessService
}

func NewAccessHandler(accessSvc service.AccessService) *AccessHandler {
	return &AccessHandler{accessSvc: accessSvc}
}

func (h *AccessHandler) GetUsers(c *gin.Context) {
	users, err := h.accessSvc.GetUsers(c.Request.Context())
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.UsersRespond{Users: users})
}

// DeclareAccess 全量替换授权用户
//
// 路由: POST /access/declareAccess
// user_ids 为空时文档不再被任何人可见，随即被回收
func (h *AccessHandler) DeclareAccess(c *gin.Context) {
	var req indexRequest.DeclareAccessRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	err := h.accessSvc.DeclareAccess(c.Request.Context(), req.SourceID, req.UserIDs)
	back.Result(c, nil, err)
}

// UpdateAccess 路由: POST /access/updateAccess
func (h *AccessHandler) UpdateAccess(c *gin.Context) {
	var req indexRequest.UpdateAccessRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	op, err := index.ParseAccessOp(req.Op)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	err = h.accessSvc.UpdateAccess(c.Request.Context(), op, req.UserIDs, req.SourceID)
	back.Result(c, nil, err)
}

// UpdateAccessProvider 对 provider 下所有文档逐个授权/撤销，返回逐文档结果
func (h *AccessHandler) UpdateAccessProvider(c *gin.Context) {
	var req indexRequest.UpdateAccessProviderRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	op, err := index.ParseAccessOp(req.Op)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	report, err := h.accessSvc.UpdateAccessByProvider(c.Request.Context(), op, req.UserIDs, req.Provider)
	back.Result(c, report, err)
}

func (h *AccessHandler) DeleteUser(c *gin.Context) {
	var req indexRequest.DeleteUserRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	deleted, err := h.accessSvc.DeleteUser(c.Request.Context(), req.UserID)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.DeleteUserRespond{DeletedSources: deleted})
}
