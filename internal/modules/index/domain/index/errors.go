package index

import (
	"errors"

	"ContextIndex/pkg/xerr"
)

// 可恢复错误：调用方可以稍后重试或修正参数；批量操作中只影响单个条目
var (
	ErrSourceNotFound  = xerr.New(xerr.NotFound, "source id 不存在，可能仍在索引队列中")
	ErrInvalidScope    = xerr.New(xerr.BadRequest, "检索范围非法：指定了范围类型但列表为空")
	ErrInvalidAccessOp = xerr.New(xerr.BadRequest, "未知的权限操作")
	ErrInvalidDocument = xerr.New(xerr.BadRequest, "文档参数不完整")
	ErrEmbedding       = xerr.New(xerr.ServiceUnavailable, "向量化服务不可用")
)

// ErrStore 后端失败（连接、约束、未知 SQL/引擎错误），事务已回滚
var ErrStore = xerr.New(xerr.InternalServerError, "索引存储失败")

// IsRecoverable 除存储失败与未知错误外，带业务码的错误都视为可恢复
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var ce *xerr.CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code != xerr.InternalServerError
}

// StoreError 把非业务错误包装为 ErrStore，业务错误原样返回
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		return err
	}
	return xerr.Wrapf(ErrStore, "%s: %w", op, err)
}
