package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ContextIndex/internal/config"
	"ContextIndex/internal/initial"
	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := initial.OpenDatabase(config.DatabaseConfig{
		Dialect: "sqlite",
		Path:    filepath.Join(t.TempDir(), "index.db"),
	}, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, initial.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, docs repository.DocumentRepository, access repository.AccessRepository, sourceID, provider string, chunks []string, users ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := docs.Upsert(ctx, &index.Document{SourceID: sourceID, Provider: provider, Modified: t0, Chunks: chunks})
	require.NoError(t, err)
	require.NoError(t, access.Grant(ctx, sourceID, users))
}

func TestUpsertReplacesAndReportsOldChunks(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentRepository(newTestDB(t), 100)

	prev, err := docs.Upsert(ctx, &index.Document{SourceID: "a", Provider: "files", Modified: t0, Chunks: []string{"c1", "c2"}})
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = docs.Upsert(ctx, &index.Document{SourceID: "a", Provider: "files", Modified: t0.Add(time.Hour), Chunks: []string{"c2", "c3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, prev)

	got, err := docs.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"c2", "c3"}, got.Chunks)
	assert.Equal(t, t0.Add(time.Hour).Unix(), got.Modified.Unix())

	counts, err := docs.CountByProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"files": 1}, counts)

	missing, err := docs.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindStale(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, 2)
	access := NewAccessRepository(db, 2)
	seed(t, docs, access, "current", "files", []string{"c1"}, "u1")
	seed(t, docs, access, "old", "files", []string{"c2"}, "u1")

	res, err := docs.FindStale(ctx, []index.SourceCandidate{
		{SourceID: "current", Modified: t0.Add(400 * time.Millisecond)},
		{SourceID: "old", Modified: t0.Add(time.Minute)},
		{SourceID: "new", Modified: t0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"current", "old"}, res.Existing)
	assert.Equal(t, []string{"old", "new"}, res.ToEmbed)
	assert.Equal(t, []string{"old"}, res.ToDelete)
}

func TestDeleteBySourceIDsCascadesAccess(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, 2)
	access := NewAccessRepository(db, 2)
	seed(t, docs, access, "a", "files", []string{"c1", "c2"}, "u1", "u2")
	seed(t, docs, access, "b", "files", []string{"c3"}, "u1")
	seed(t, docs, access, "c", "mail", []string{"c4"}, "u2")

	chunks, err := docs.DeleteBySourceIDs(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, chunks)

	var n int64
	require.NoError(t, db.Model(&index.AccessEntry{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	users, err := access.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, users)
}

func TestDeleteByProvider(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, 10)
	access := NewAccessRepository(db, 10)
	seed(t, docs, access, "a", "files", []string{"c1"}, "u1")
	seed(t, docs, access, "b", "mail", []string{"c2", "c3"}, "u1")

	chunks, err := docs.DeleteByProvider(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, chunks)

	chunks, err = docs.DeleteByProvider(ctx, "mail")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	ids, err := docs.SourceIDsByProvider(ctx, "files")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestGrantIsIdempotentAndRevoke(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, 3)
	access := NewAccessRepository(db, 3)
	seed(t, docs, access, "a", "files", []string{"c1"}, "u1", "u2", "u1")

	require.NoError(t, access.Grant(ctx, "a", []string{"u2", "u3", "u4"}))
	uids, err := access.ListBySource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, uids)

	require.NoError(t, access.Revoke(ctx, "a", []string{"u1", "u3", "ghost"}))
	uids, err = access.ListBySource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u4"}, uids)
}

func TestFindOrphanedAndDeleteByUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, 10)
	access := NewAccessRepository(db, 10)
	seed(t, docs, access, "shared", "files", []string{"c1"}, "u1", "u2")
	seed(t, docs, access, "mine", "files", []string{"c2"}, "u1")

	affected, err := access.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"shared", "mine"}, affected)

	orphans, err := docs.FindOrphaned(ctx, affected)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, orphans)

	affected, err = access.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestVisibleChunkIDsRespectsAccessAndScope(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, 1)
	access := NewAccessRepository(db, 1)
	seed(t, docs, access, "a", "files", []string{"c1", "c2"}, "u1")
	seed(t, docs, access, "b", "mail", []string{"c3"}, "u1", "u2")
	seed(t, docs, access, "c", "files", []string{"c4"}, "u2")

	ids, err := docs.VisibleChunkIDs(ctx, "u1", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, ids)

	ids, err = docs.VisibleChunkIDs(ctx, "u1", &index.Scope{Type: index.ScopeProvider, Values: []string{"mail", "calendar"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, ids)

	ids, err = docs.VisibleChunkIDs(ctx, "u2", &index.Scope{Type: index.ScopeSource, Values: []string{"a", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c4"}, ids)

	ids, err = docs.VisibleChunkIDs(ctx, "nobody", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestForEachChunkID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, 10)
	access := NewAccessRepository(db, 10)
	seed(t, docs, access, "a", "files", []string{"c1", "c2"}, "u1")
	seed(t, docs, access, "b", "files", []string{"c3"}, "u1")
	seed(t, docs, access, "c", "files", []string{"c4"}, "u1")

	var seen []string
	calls := 0
	err := docs.ForEachChunkID(ctx, 2, func(ids []string) error {
		calls++
		seen = append(seen, ids...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3", "c4"}, seen)
}

func TestUnitOfWorkRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uow := NewIndexUnitOfWork(db, 10)
	boom := errors.New("boom")

	err := uow.Transaction(ctx, func(docRepo repository.DocumentRepository, accessRepo repository.AccessRepository) error {
		if _, err := docRepo.Upsert(ctx, &index.Document{SourceID: "a", Provider: "files", Modified: t0, Chunks: []string{"c1"}}); err != nil {
			return err
		}
		if err := accessRepo.Grant(ctx, "a", []string{"u1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := NewDocumentRepository(db, 10).Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := NewDocumentRepository(db, 10).LockSource(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
