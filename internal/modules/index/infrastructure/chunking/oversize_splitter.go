package chunking

import (
	"context"
	"errors"
	"unicode/utf8"

	"ContextIndex/internal/modules/index/domain/index"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// MetaPartIndex 被拆开的 chunk 在原 chunk 中的序号
const MetaPartIndex = "part_index"

// OversizeSplitter 调用方已经切好 chunk，这里只把超过 embedding 输入上限的 chunk 再拆开，
// 其余 chunk 原样保留，顺序不变
type OversizeSplitter struct {
	maxRunes int
	impl     document.Transformer
}

func NewOversizeSplitter(ctx context.Context, maxRunes, overlap int) (*OversizeSplitter, error) {
	if maxRunes <= 0 {
		return nil, errors.New("maxRunes must be positive")
	}
	if overlap < 0 || overlap >= maxRunes {
		overlap = 0
	}
	impl, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   maxRunes,
		OverlapSize: overlap,
		Separators:  []string{"\n\n", "\n", "。", "！", "？", "；", "，", ". ", " "},
		LenFunc:     utf8.RuneCountInString,
		KeepType:    recursive.KeepTypeEnd,
	})
	if err != nil {
		return nil, err
	}
	return &OversizeSplitter{maxRunes: maxRunes, impl: impl}, nil
}

func (s *OversizeSplitter) Split(ctx context.Context, chunks []index.Chunk) ([]index.Chunk, error) {
	out := make([]index.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if utf8.RuneCountInString(c.Content) <= s.maxRunes {
			out = append(out, c)
			continue
		}
		frags, err := s.impl.Transform(ctx, []*schema.Document{{Content: c.Content}})
		if err != nil {
			return nil, err
		}
		part := 0
		for _, f := range frags {
			if f == nil || f.Content == "" {
				continue
			}
			md := make(map[string]any, len(c.Metadata)+1)
			for k, v := range c.Metadata {
				md[k] = v
			}
			md[MetaPartIndex] = part
			part++
			out = append(out, index.Chunk{Content: f.Content, Metadata: md})
		}
	}
	return out, nil
}
