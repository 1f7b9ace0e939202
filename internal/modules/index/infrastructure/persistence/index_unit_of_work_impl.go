package persistence

import (
	"context"

	"ContextIndex/internal/modules/index/domain/repository"

	"gorm.io/gorm"
)

type indexUnitOfWorkImpl struct {
	db         *gorm.DB
	paramLimit int
}

func NewIndexUnitOfWork(db *gorm.DB, paramLimit int) repository.IndexUnitOfWork {
	return &indexUnitOfWorkImpl{db: db, paramLimit: paramLimit}
}

// Transaction fn 返回错误或 ctx 取消时整体回滚
func (u *indexUnitOfWorkImpl) Transaction(ctx context.Context, fn func(docRepo repository.DocumentRepository, accessRepo repository.AccessRepository) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docRepo := NewDocumentRepository(tx, u.paramLimit)
		accessRepo := NewAccessRepository(tx, u.paramLimit)
		return fn(docRepo, accessRepo)
	})
}
