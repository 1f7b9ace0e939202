package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ContextIndex/internal/modules/index/application/dto/request"
	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/infrastructure/mq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdder struct {
	retry []string
	err   error
	got   [][]index.InDocument
}

func (f *fakeAdder) AddDocuments(ctx context.Context, docs []index.InDocument) ([]string, []string, error) {
	f.got = append(f.got, docs)
	if f.err != nil {
		return nil, nil, f.err
	}
	retry := map[string]bool{}
	for _, id := range f.retry {
		retry[id] = true
	}
	var added, again []string
	for _, d := range docs {
		if retry[d.SourceID] {
			again = append(again, d.SourceID)
		} else {
			added = append(added, d.SourceID)
		}
	}
	return added, again, nil
}

type fakePublisher struct {
	msgs []mq.Message
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, msg mq.Message) (mq.PublishResult, error) {
	if p.err != nil {
		return mq.PublishResult{}, p.err
	}
	p.msgs = append(p.msgs, msg)
	return mq.PublishResult{Offset: int64(len(p.msgs))}, nil
}

func (p *fakePublisher) Close() error { return nil }

func ingestMessage(t *testing.T, headers map[string]string, ids ...string) mq.Message {
	t.Helper()
	req := request.AddDocumentsRequest{}
	for _, id := range ids {
		req.Documents = append(req.Documents, request.IncomingDocument{
			SourceID: id,
			Provider: "files",
			Modified: 1717200000,
			UserIDs:  []string{"u1"},
			Chunks:   []request.ChunkPayload{{Content: "text " + id}},
		})
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return mq.Message{Topic: "context_index.ingest", Value: body, Headers: headers}
}

func TestWorkerAddsDocuments(t *testing.T) {
	adder := &fakeAdder{}
	pub := &fakePublisher{}
	w := NewIngestConsumerWorker(nil, adder, pub, "", 3)

	require.NoError(t, w.Handle(context.Background(), ingestMessage(t, nil, "a", "b")))
	require.Len(t, adder.got, 1)
	assert.Len(t, adder.got[0], 2)
	assert.Equal(t, int64(1717200000), adder.got[0][0].Modified.Unix())
	assert.Empty(t, pub.msgs)
}

func TestWorkerRepublishesRetryWithAttempt(t *testing.T) {
	adder := &fakeAdder{retry: []string{"b"}}
	pub := &fakePublisher{}
	w := NewIngestConsumerWorker(nil, adder, pub, "", 3)

	require.NoError(t, w.Handle(context.Background(), ingestMessage(t, nil, "a", "b")))
	require.Len(t, pub.msgs, 1)
	out := pub.msgs[0]
	assert.Equal(t, "context_index.ingest", out.Topic)
	assert.Equal(t, "2", out.Headers[mq.HeaderAttempt])
	assert.Equal(t, []byte("b"), out.Key)

	var req request.AddDocumentsRequest
	require.NoError(t, json.Unmarshal(out.Value, &req))
	require.Len(t, req.Documents, 1)
	assert.Equal(t, "b", req.Documents[0].SourceID)
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	adder := &fakeAdder{retry: []string{"a"}}
	pub := &fakePublisher{}
	w := NewIngestConsumerWorker(nil, adder, pub, "", 3)

	msg := ingestMessage(t, map[string]string{mq.HeaderAttempt: "3"}, "a")
	require.NoError(t, w.Handle(context.Background(), msg))
	assert.Empty(t, pub.msgs)
}

func TestWorkerDropsInvalidPayload(t *testing.T) {
	adder := &fakeAdder{}
	w := NewIngestConsumerWorker(nil, adder, &fakePublisher{}, "", 3)
	require.NoError(t, w.Handle(context.Background(), mq.Message{Value: []byte("{not json")}))
	assert.Empty(t, adder.got)
}

func TestWorkerLeavesMessageUnackedOnError(t *testing.T) {
	w := NewIngestConsumerWorker(nil, &fakeAdder{err: context.Canceled}, &fakePublisher{}, "", 3)
	err := w.Handle(context.Background(), ingestMessage(t, nil, "a"))
	assert.ErrorIs(t, err, context.Canceled)

	boom := errors.New("broker down")
	w = NewIngestConsumerWorker(nil, &fakeAdder{retry: []string{"a"}}, &fakePublisher{err: boom}, "retry.topic", 3)
	err = w.Handle(context.Background(), ingestMessage(t, nil, "a"))
	assert.ErrorIs(t, err, boom)
}

func TestAttemptOf(t *testing.T) {
	assert.Equal(t, 1, attemptOf(mq.Message{}))
	assert.Equal(t, 1, attemptOf(mq.Message{Headers: map[string]string{mq.HeaderAttempt: "x"}}))
	assert.Equal(t, 4, attemptOf(mq.Message{Headers: map[string]string{mq.HeaderAttempt: " 4 "}}))
}
