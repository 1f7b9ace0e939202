package config

import (
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultConfigPath = "configs/config_local.toml"

type MainConfig struct {
	AppName     string `toml:"appName"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	EnableTLS   bool   `toml:"enableTLS"`
	CertFile    string `toml:"certFile"`
	KeyFile     string `toml:"keyFile"`
	ShutdownSec int    `toml:"shutdownSeconds"`
}

// DatabaseConfig 关系库配置；dialect 取 mysql 或 sqlite
type DatabaseConfig struct {
	Dialect      string `toml:"dialect"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"maxOpenConns"`
	MaxIdleConns int    `toml:"maxIdleConns"`
	SlowQueryMs  int    `toml:"slowQueryMs"`
}

type LogConfig struct {
	LogPath    string `toml:"logPath"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"maxSizeMB"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAgeDays int    `toml:"maxAgeDays"`
}

type JwtConfig struct {
	Key         string `toml:"key"`
	ExpireHours int    `toml:"expireHours"`
	Issuer      string `toml:"issuer"`
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	VectorDim      int    `toml:"vectorDim"`
	MetricType     string `toml:"metricType"`
	// ExprBatch 单个 `id in [...]` 表达式最多携带的 id 数
	ExprBatch int `toml:"exprBatch"`
}

type KafkaConfig struct {
	Enabled         bool     `toml:"enabled"`
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	IngestTopic     string   `toml:"ingestTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
	Partitions      int32    `toml:"partitions"`
	Replication     int16    `toml:"replication"`
	MaxAttempts     int      `toml:"maxAttempts"`
}

type AIEmbeddingConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"apiKey"`
	BaseURL        string `toml:"baseURL"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
}

// IndexConfig 文档索引核心参数
type IndexConfig struct {
	// ParamLimit 单条语句允许携带的参数上限，不会超过 SafeParamLimit(dialect)
	ParamLimit int `toml:"paramLimit"`
	// InsertColumns 每个 chunk 写入时占用的参数个数（vector_chunk 共 6 列），写入批大小 = ParamLimit / InsertColumns
	InsertColumns int    `toml:"insertColumns"`
	VectorDriver  string `toml:"vectorDriver"`
	Collection    string `toml:"collection"`
	Metric        string `toml:"metric"`
	DefaultTopK   int    `toml:"defaultTopK"`
	MaxTopK       int    `toml:"maxTopK"`

	// MaxChunkRunes 超过该长度的 chunk 在向量化前再拆分，0 表示不拆
	MaxChunkRunes     int `toml:"maxChunkRunes"`
	ChunkOverlapRunes int `toml:"chunkOverlapRunes"`

	GCIntervalSeconds int `toml:"gcIntervalSeconds"`
	GCGraceSeconds    int `toml:"gcGraceSeconds"`
	GCBatchSize       int `toml:"gcBatchSize"`

	EmbedReadyAttempts        int `toml:"embedReadyAttempts"`
	EmbedReadyIntervalSeconds int `toml:"embedReadyIntervalSeconds"`
}

// 各方言单条语句可绑定的参数个数上限
const (
	sqliteMaxParams = 32766
	mysqlMaxParams  = 65535
)

// MaxSQLParams 方言的参数上限，未知方言按 sqlite 处理
func MaxSQLParams(dialect string) int {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "mysql":
		return mysqlMaxParams
	default:
		return sqliteMaxParams
	}
}

// SafeParamLimit 在方言上限基础上留 1/4 余量，给 IN 列表之外的条件参数
func SafeParamLimit(dialect string) int {
	return MaxSQLParams(dialect) * 3 / 4
}

// ClampParamLimit n 未设置或超过安全值时取安全值
func ClampParamLimit(dialect string, n int) int {
	safe := SafeParamLimit(dialect)
	if n <= 0 || n > safe {
		return safe
	}
	return n
}

// InsertBatchSize 写入向量引擎的子批大小
func (c IndexConfig) InsertBatchSize() int {
	n := c.ParamLimit / c.InsertColumns
	if n <= 0 {
		return 1
	}
	return n
}

type Config struct {
	MainConfig     `toml:"mainConfig"`
	DatabaseConfig `toml:"databaseConfig"`
	JwtConfig      `toml:"jwtConfig"`
	MilvusConfig   `toml:"milvusConfig"`
	KafkaConfig    `toml:"kafkaConfig"`
	AIConfig       `toml:"aiConfig"`
	LogConfig      `toml:"logConfig"`
	IndexConfig    `toml:"indexConfig"`
}

var config *Config

// LoadConfig 从 path 读取配置并补齐默认值
func LoadConfig(path string) (*Config, error) {
	c := new(Config)
	if _, err := toml.DecodeFile(path, c); err != nil {
		c.Normalize()
		return c, err
	}
	c.Normalize()
	return c, nil
}

// GetConfig 返回全局配置；路径可用 CONTEXT_INDEX_CONFIG 覆盖
func GetConfig() *Config {
	if config == nil {
		path := strings.TrimSpace(os.Getenv("CONTEXT_INDEX_CONFIG"))
		if path == "" {
			path = defaultConfigPath
		}
		c, err := LoadConfig(path)
		if err != nil {
			log.Printf("加载配置文件失败: %v, 使用默认设置", err)
		}
		config = c
	}
	return config
}

// Normalize 补齐缺省值
func (c *Config) Normalize() {
	if strings.TrimSpace(c.MainConfig.AppName) == "" {
		c.MainConfig.AppName = "ContextIndex"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port <= 0 {
		c.MainConfig.Port = 10034
	}
	if c.MainConfig.ShutdownSec <= 0 {
		c.MainConfig.ShutdownSec = 10
	}

	c.DatabaseConfig.Dialect = strings.ToLower(strings.TrimSpace(c.DatabaseConfig.Dialect))
	if c.DatabaseConfig.Dialect == "" {
		c.DatabaseConfig.Dialect = "sqlite"
	}
	if c.DatabaseConfig.Dialect == "sqlite" && strings.TrimSpace(c.DatabaseConfig.Path) == "" {
		c.DatabaseConfig.Path = "data/context_index.db"
	}
	if c.DatabaseConfig.SlowQueryMs <= 0 {
		c.DatabaseConfig.SlowQueryMs = 1000
	}

	if c.JwtConfig.Issuer == "" {
		c.JwtConfig.Issuer = c.MainConfig.AppName
	}

	if c.MilvusConfig.VectorDim <= 0 {
		c.MilvusConfig.VectorDim = 768
	}
	if c.MilvusConfig.MetricType == "" {
		c.MilvusConfig.MetricType = "COSINE"
	}
	if c.MilvusConfig.ExprBatch <= 0 {
		c.MilvusConfig.ExprBatch = 1000
	}

	if c.KafkaConfig.MaxAttempts <= 0 {
		c.KafkaConfig.MaxAttempts = 3
	}
	if c.KafkaConfig.IngestTopic == "" {
		c.KafkaConfig.IngestTopic = "context_index.ingest"
	}
	if c.KafkaConfig.ConsumerGroupID == "" {
		c.KafkaConfig.ConsumerGroupID = "context_index"
	}

	ic := &c.IndexConfig
	ic.ParamLimit = ClampParamLimit(c.DatabaseConfig.Dialect, ic.ParamLimit)
	if ic.InsertColumns <= 0 {
		ic.InsertColumns = 6
	}
	ic.VectorDriver = strings.ToLower(strings.TrimSpace(ic.VectorDriver))
	if ic.VectorDriver == "" {
		ic.VectorDriver = "sql"
	}
	if ic.Collection == "" {
		ic.Collection = c.MilvusConfig.CollectionName
	}
	if ic.Collection == "" {
		ic.Collection = "context_chunks"
	}
	ic.Metric = strings.ToLower(strings.TrimSpace(ic.Metric))
	if ic.Metric == "" {
		ic.Metric = "cosine"
	}
	if ic.DefaultTopK <= 0 {
		ic.DefaultTopK = 5
	}
	if ic.MaxTopK <= 0 {
		ic.MaxTopK = 100
	}
	if ic.GCIntervalSeconds <= 0 {
		ic.GCIntervalSeconds = 600
	}
	if ic.GCGraceSeconds <= 0 {
		ic.GCGraceSeconds = 1800
	}
	if ic.GCBatchSize <= 0 {
		ic.GCBatchSize = 1000
	}
	if ic.EmbedReadyAttempts <= 0 {
		ic.EmbedReadyAttempts = 20
	}
	if ic.EmbedReadyIntervalSeconds <= 0 {
		ic.EmbedReadyIntervalSeconds = 3
	}
}
