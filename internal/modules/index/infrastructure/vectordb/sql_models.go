package vectordb

import (
	"time"

	"gorm.io/gorm"
)

// VectorCollection SQL 向量引擎的集合
type VectorCollection struct {
	Id        string    `gorm:"column:id;type:varchar(64);primaryKey"`
	Name      string    `gorm:"column:name;type:varchar(128);not null;uniqueIndex:uniq_vector_collection_name"`
	Dim       int       `gorm:"column:dim;type:int;not null"`
	Metric    string    `gorm:"column:metric;type:varchar(16);not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
}

func (VectorCollection) TableName() string { return "vector_collection" }

// VectorChunk 单个 chunk 的向量与内容
type VectorChunk struct {
	Id           string         `gorm:"column:id;type:varchar(64);primaryKey"`
	CollectionId string         `gorm:"column:collection_id;type:varchar(64);not null;index:idx_vector_chunk_collection"`
	Content      string         `gorm:"column:content;type:mediumtext"`
	Embedding    []float32      `gorm:"column:embedding;type:json;serializer:json"`
	Metadata     map[string]any `gorm:"column:metadata;type:json;serializer:json"`
	CreatedAt    time.Time      `gorm:"column:created_at;type:datetime;not null;index:idx_vector_chunk_created"`
}

func (VectorChunk) TableName() string { return "vector_chunk" }

// AutoMigrate 建立 SQL 向量引擎的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&VectorCollection{}, &VectorChunk{})
}
