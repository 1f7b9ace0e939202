package persistence

import (
	"context"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accessRepositoryImpl struct {
	db    *gorm.DB
	batch int
}

func NewAccessRepository(db *gorm.DB, paramLimit int) repository.AccessRepository {
	return &accessRepositoryImpl{db: db, batch: paramLimit}
}

func (r *accessRepositoryImpl) ListUsers(ctx context.Context) ([]string, error) {
	var uids []string
	err := r.db.WithContext(ctx).
		Model(&index.AccessEntry{}).
		Distinct("uid").
		Order("uid").
		Pluck("uid", &uids).Error
	return uids, err
}

func (r *accessRepositoryImpl) ListBySource(ctx context.Context, sourceID string) ([]string, error) {
	var uids []string
	err := r.db.WithContext(ctx).
		Model(&index.AccessEntry{}).
		Where("source_id = ?", sourceID).
		Order("uid").
		Pluck("uid", &uids).Error
	return uids, err
}

func (r *accessRepositoryImpl) Grant(ctx context.Context, sourceID string, userIDs []string) error {
	users := util.UniqueStrings(userIDs)
	if len(users) == 0 {
		return nil
	}
	entries := make([]index.AccessEntry, 0, len(users))
	for _, uid := range users {
		entries = append(entries, index.AccessEntry{UID: uid, SourceID: sourceID})
	}
	// 每行两个参数
	size := r.batch / 2
	if size <= 0 {
		size = 1
	}
	// 通过唯一索引 uniq_access_uid_source 忽略已存在的记录
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&entries, size).Error
}

func (r *accessRepositoryImpl) Revoke(ctx context.Context, sourceID string, userIDs []string) error {
	for _, batch := range util.Partition(util.UniqueStrings(userIDs), r.batch) {
		err := r.db.WithContext(ctx).
			Where("source_id = ? AND uid IN ?", sourceID, batch).
			Delete(&index.AccessEntry{}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *accessRepositoryImpl) DeleteBySource(ctx context.Context, sourceID string) error {
	return r.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&index.AccessEntry{}).Error
}

func (r *accessRepositoryImpl) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	var sourceIDs []string
	err := r.db.WithContext(ctx).
		Model(&index.AccessEntry{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uid = ?", userID).
		Pluck("source_id", &sourceIDs).Error
	if err != nil {
		return nil, err
	}
	if len(sourceIDs) == 0 {
		return []string{}, nil
	}
	if err := r.db.WithContext(ctx).Where("uid = ?", userID).Delete(&index.AccessEntry{}).Error; err != nil {
		return nil, err
	}
	return sourceIDs, nil
}
