package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	chronicleerrors "github.com/habiliai/chronicle/errors"
	"github.com/pkg/errors"
)

type (
	// Embedder is the pluggable embedding model capability: a deterministic
	// mapping from text to a fixed-length vector. Implementations may fail;
	// callers degrade per record (indexing) or per query (search), they
	// never treat a failure as fatal.
	Embedder interface {
		Embed(ctx context.Context, texts ...string) ([][]float32, error)
	}

	EmbeddingTaskType string

	// NomicEmbedder implements Embedder against the Nomic Atlas API
	NomicEmbedder struct {
		client *http.Client
		apiKey string
	}
)

const (
	EmbeddingTaskTypeDocument EmbeddingTaskType = "search_document"
	EmbeddingTaskTypeQuery    EmbeddingTaskType = "search_query"

	NomicEmbedderTextEndpoint = "https://api-atlas.nomic.ai/v1/embedding/text"
	NomicTextEmbedderModel    = "nomic-embed-text-v1.5"
)

func (e *EmbeddingTaskType) String() string {
	return string(*e)
}

func NewNomicEmbedder(apiKey string) *NomicEmbedder {
	return &NomicEmbedder{client: http.DefaultClient, apiKey: apiKey}
}

// Embed implements Embedder.Embed
func (e *NomicEmbedder) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	return e.EmbedTexts(ctx, EmbeddingTaskTypeDocument, texts...)
}

func (e *NomicEmbedder) EmbedTexts(ctx context.Context, taskType EmbeddingTaskType, texts ...string) ([][]float32, error) {
	var requestBody bytes.Buffer
	if err := json.NewEncoder(&requestBody).Encode(struct {
		TaskType string   `json:"task_type"`
		Model    string   `json:"model"`
		Texts    []string `json:"texts"`
	}{
		TaskType: taskType.String(),
		Model:    NomicTextEmbedderModel,
		Texts:    texts,
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, NomicEmbedderTextEndpoint, &requestBody)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(chronicleerrors.ErrEmbeddingUnavailable, "failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(chronicleerrors.ErrEmbeddingUnavailable, "embedding request returned %s", resp.Status)
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.Wrapf(err, "failed to decode response")
	}

	if len(response.Embeddings) != len(texts) {
		return nil, errors.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings))
	}

	return response.Embeddings, nil
}

var (
	_ Embedder = (*NomicEmbedder)(nil)
)
