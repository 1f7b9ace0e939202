package initial

import (
	"path/filepath"
	"strings"
	"testing"

	"ContextIndex/internal/config"
	"ContextIndex/internal/modules/index/domain/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpenDatabaseSQLiteCascades(t *testing.T) {
	db, err := OpenDatabase(config.DatabaseConfig{
		Dialect: "sqlite",
		Path:    filepath.Join(t.TempDir(), "nested", "index.db"),
	}, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, db.Create(&index.Document{SourceID: "s1", Provider: "files", Chunks: []string{"c1"}}).Error)
	require.NoError(t, db.Create(&index.AccessEntry{UID: "u1", SourceID: "s1"}).Error)

	require.NoError(t, db.Where("source_id = ?", "s1").Delete(&index.Document{}).Error)

	var n int64
	require.NoError(t, db.Model(&index.AccessEntry{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAutoMigrateForeignKeyOnAccessList(t *testing.T) {
	db, err := OpenDatabase(config.DatabaseConfig{
		Dialect: "sqlite",
		Path:    filepath.Join(t.TempDir(), "index.db"),
	}, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	ddl := func(table string) string {
		var sql string
		require.NoError(t, db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&sql).Error)
		require.NotEmpty(t, sql)
		return sql
	}

	docs := ddl("docs")
	assert.NotContains(t, strings.ToUpper(docs), "REFERENCES")

	access := ddl("access_list")
	assert.Contains(t, access, "REFERENCES `docs`")
	assert.Contains(t, strings.ToUpper(access), "ON DELETE CASCADE")

	// 文档可以先于授权写入；删除授权不影响文档
	require.NoError(t, db.Create(&index.Document{SourceID: "s1", Provider: "files", Chunks: []string{"c1"}}).Error)
	require.NoError(t, db.Create(&index.AccessEntry{UID: "u1", SourceID: "s1"}).Error)
	require.NoError(t, db.Where("uid = ?", "u1").Delete(&index.AccessEntry{}).Error)
	var n int64
	require.NoError(t, db.Model(&index.Document{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// 没有对应文档的授权被外键拒绝
	assert.Error(t, db.Create(&index.AccessEntry{UID: "u1", SourceID: "missing"}).Error)
}

func TestOpenDatabaseUnknownDialect(t *testing.T) {
	_, err := OpenDatabase(config.DatabaseConfig{Dialect: "oracle"}, logger.Silent)
	assert.Error(t, err)
}

func TestMilvusMetric(t *testing.T) {
	assert.EqualValues(t, "L2", MilvusMetric("l2"))
	assert.EqualValues(t, "COSINE", MilvusMetric(""))
}

func TestChunkSchema(t *testing.T) {
	s := chunkSchema("chunks", 128)
	assert.Equal(t, "chunks", s.CollectionName)
	require.Len(t, s.Fields, 4)
	assert.True(t, s.Fields[0].PrimaryKey)
	assert.Equal(t, "128", s.Fields[1].TypeParams["dim"])
	assert.Equal(t, "65535", s.Fields[2].TypeParams["max_length"])
}
