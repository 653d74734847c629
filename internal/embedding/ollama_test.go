package embedding

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedderClient implements langchaingo's embeddings.EmbedderClient.
type fakeEmbedderClient struct {
	vectors [][]float32
	err     error
	texts   []string
}

func (f *fakeEmbedderClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func TestOllama_Embed(t *testing.T) {
	client := &fakeEmbedderClient{vectors: [][]float32{{1, 2, 3}}}
	o, err := newOllama(client, "nomic-embed-text")
	require.NoError(t, err)

	got, err := o.Embed(context.Background(), "line one\nline two")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)
	assert.Equal(t, []string{"line one line two"}, client.texts, "newlines are stripped before embedding")
	assert.Equal(t, "nomic-embed-text", o.ModelName())
}

func TestOllama_EmptyResult(t *testing.T) {
	client := &fakeEmbedderClient{vectors: [][]float32{{}}}
	o, err := newOllama(client, "nomic-embed-text")
	require.NoError(t, err)

	_, err = o.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "no data returned")
}

func TestOllama_NetworkErrorIsUnavailable(t *testing.T) {
	client := &fakeEmbedderClient{err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	o, err := newOllama(client, "nomic-embed-text")
	require.NoError(t, err)

	_, err = o.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOllama_OtherErrorsWrapped(t *testing.T) {
	original := errors.New("model not found")
	client := &fakeEmbedderClient{err: original}
	o, err := newOllama(client, "missing")
	require.NoError(t, err)

	_, err = o.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, original)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestNewOllama_BuildsClient(t *testing.T) {
	o, err := NewOllama("http://localhost:11434", "nomic-embed-text")
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", o.ModelName())
}
