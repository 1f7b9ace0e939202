package request

import (
	"time"

	"ContextIndex/internal/modules/index/domain/index"
)

// ChunkPayload 已切分好的一段内容
type ChunkPayload struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IncomingDocument 待摄取的文档；modified 为 Unix 秒
type IncomingDocument struct {
	SourceID string         `json:"source_id"`
	Provider string         `json:"provider"`
	Modified int64          `json:"modified"`
	UserIDs  []string       `json:"user_ids"`
	Chunks   []ChunkPayload `json:"chunks"`
}

// AddDocumentsRequest HTTP 与 Kafka 共用的摄取请求体
type AddDocumentsRequest struct {
	Documents []IncomingDocument `json:"documents" binding:"required"`
}

func (r AddDocumentsRequest) ToInDocuments() []index.InDocument {
	out := make([]index.InDocument, 0, len(r.Documents))
	for _, d := range r.Documents {
		chunks := make([]index.Chunk, 0, len(d.Chunks))
		for _, c := range d.Chunks {
			chunks = append(chunks, index.Chunk{Content: c.Content, Metadata: c.Metadata})
		}
		out = append(out, index.InDocument{
			SourceID: d.SourceID,
			Provider: d.Provider,
			Modified: time.Unix(d.Modified, 0).UTC(),
			UserIDs:  d.UserIDs,
			Chunks:   chunks,
		})
	}
	return out
}

// Filter 只保留 source_id 在 ids 中的文档，用于重试重投
func (r AddDocumentsRequest) Filter(ids []string) AddDocumentsRequest {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := AddDocumentsRequest{Documents: make([]IncomingDocument, 0, len(ids))}
	for _, d := range r.Documents {
		if _, ok := keep[d.SourceID]; ok {
			out.Documents = append(out.Documents, d)
		}
	}
	return out
}

type SourceCandidate struct {
	SourceID string `json:"source_id"`
	Modified int64  `json:"modified"`
}

type CheckSourcesRequest struct {
	Candidates []SourceCandidate `json:"candidates" binding:"required"`
}

func (r CheckSourcesRequest) ToCandidates() []index.SourceCandidate {
	out := make([]index.SourceCandidate, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, index.SourceCandidate{SourceID: c.SourceID, Modified: time.Unix(c.Modified, 0).UTC()})
	}
	return out
}

type DeleteSourcesRequest struct {
	SourceIDs []string `json:"source_ids" binding:"required"`
}

type DeleteProviderRequest struct {
	Provider string `json:"provider" binding:"required"`
}
