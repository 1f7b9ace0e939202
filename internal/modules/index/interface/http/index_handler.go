package http

import (
	indexRequest "ContextIndex/internal/modules/index/application/dto/request"
	indexRespond "ContextIndex/internal/modules/index/application/dto/respond"
	"ContextIndex/internal/modules/index/application/service"
	"ContextIndex/pkg/back"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IndexHandler 文档摄取与删除
type IndexHandler struct {
	ingestSvc service.IngestService
	docSvc    service.DocumentService
}

func NewIndexHandler(ingestSvc service.IngestService, docSvc service.DocumentService) *IndexHandler {
	return &IndexHandler{ingestSvc: ingestSvc, docSvc: docSvc}
}

// AddDocuments 批量摄取
//
// 路由: POST /index/addDocuments
// 单个文档失败不影响其它文档，失败的 source_id 在 retry 中返回
func (h *IndexHandler) AddDocuments(c *gin.Context) {
	var req indexRequest.AddDocumentsRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	added, retry, err := h.ingestSvc.AddDocuments(c.Request.Context(), req.ToInDocuments())
	if err != nil {
		zlog.Warn("add documents aborted", zap.Error(err))
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.AddDocumentsRespond{Added: added, Retry: retry})
}

// CheckSources 路由: POST /index/checkSources
func (h *IndexHandler) CheckSources(c *gin.Context) {
	var req indexRequest.CheckSourcesRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	res, err := h.ingestSvc.CheckSources(c.Request.Context(), req.ToCandidates())
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.CheckSourcesRespond{
		StillCurrent: res.StillCurrent,
		ToEmbed:      res.ToEmbed,
		ToDelete:     res.ToDelete,
	})
}

func (h *IndexHandler) DeleteSources(c *gin.Context) {
	var req indexRequest.DeleteSourcesRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	n, err := h.docSvc.DeleteSourceIDs(c.Request.Context(), req.SourceIDs)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.DeleteRespond{DeletedChunks: n})
}

func (h *IndexHandler) DeleteProvider(c *gin.Context) {
	var req indexRequest.DeleteProviderRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	n, err := h.docSvc.DeleteProvider(c.Request.Context(), req.Provider)
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.DeleteRespond{DeletedChunks: n})
}

// CountDocuments 各 provider 的文档数
func (h *IndexHandler) CountDocuments(c *gin.Context) {
	counts, err := h.docSvc.CountDocumentsByProvider(c.Request.Context())
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, indexRespond.CountDocumentsRespond{Counts: counts})
}
