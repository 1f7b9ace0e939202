package respond

import (
	"ContextIndex/internal/modules/index/infrastructure/pipeline"

	"github.com/cloudwego/eino/schema"
)

type AddDocumentsRespond struct {
	Added []string `json:"added"`
	Retry []string `json:"retry"`
}

type CheckSourcesRespond struct {
	StillCurrent []string `json:"still_current"`
	ToEmbed      []string `json:"to_embed"`
	ToDelete     []string `json:"to_delete"`
}

type DeleteRespond struct {
	DeletedChunks int `json:"deleted_chunks"`
}

type CountDocumentsRespond struct {
	Counts map[string]int64 `json:"counts"`
}

type UsersRespond struct {
	Users []string `json:"users"`
}

type DeleteUserRespond struct {
	DeletedSources []string `json:"deleted_sources"`
}

// SearchHit 单个命中的 chunk，按 distance 升序排列
type SearchHit struct {
	ChunkID  string         `json:"chunk_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Distance float64        `json:"distance"`
	Score    float64        `json:"score"`
}

type SearchRespond struct {
	Hits []SearchHit `json:"hits"`
}

func FromDocuments(docs []*schema.Document) *SearchRespond {
	res := &SearchRespond{Hits: make([]SearchHit, 0, len(docs))}
	for _, d := range docs {
		hit := SearchHit{ChunkID: d.ID, Content: d.Content, Score: d.Score()}
		md := make(map[string]any, len(d.MetaData))
		for k, v := range d.MetaData {
			if k == pipeline.MetaDistance {
				if f, ok := v.(float32); ok {
					hit.Distance = float64(f)
				}
				continue
			}
			md[k] = v
		}
		if len(md) > 0 {
			hit.Metadata = md
		}
		res.Hits = append(res.Hits, hit)
	}
	return res
}
