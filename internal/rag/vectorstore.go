package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hubenschmidt/voicecore/internal/call"
	"github.com/hubenschmidt/voicecore/internal/httpx"
)

// QdrantStore implements call.VectorStore against Qdrant's REST API,
// adapted from the teacher's internal/pipeline/qdrant.go. Qdrant's
// search endpoint returns a cosine *score* in [-1, 1] where higher is
// better; spec.md's relevance_threshold is a *distance* where lower is
// better and 1.0 is the default cutoff. For a Cosine collection,
// distance = 1 - score, so callers can reason in distance terms
// throughout the rest of the pipeline without knowing which metric the
// backing store uses.
type QdrantStore struct {
	url        string
	collection string
	client     *http.Client
}

// NewQdrantStore creates a Qdrant-backed VectorStore bound to one
// collection.
func NewQdrantStore(url, collection string, poolSize int) *QdrantStore {
	return &QdrantStore{
		url:        url,
		collection: collection,
		client:     httpx.NewPooledClient(poolSize, 30*time.Second),
	}
}

// Query implements call.VectorStore. k and the distance filtering are
// the caller's responsibility (internal/rag/generation.go applies
// relevance_threshold); this method requests k results unfiltered and
// converts score to distance.
func (q *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]call.VectorHit, error) {
	vec := make([]float64, len(vector))
	for i, v := range vector {
		vec[i] = float64(v)
	}

	body, err := json.Marshal(qdrantSearchRequest{
		Vector:      vec,
		Limit:       k,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", q.url+"/collections/"+q.collection+"/points/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search status %d", resp.StatusCode)
	}

	var result qdrantSearchResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]call.VectorHit, 0, len(result.Result))
	for _, r := range result.Result {
		text, _ := r.Payload["text"].(string)
		hits = append(hits, call.VectorHit{
			Text:     text,
			Distance: 1 - r.Score,
		})
	}
	return hits, nil
}

// EnsureCollection creates the collection if it doesn't already exist.
// Used by cmd/seed and at gateway startup.
func (q *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	body, err := json.Marshal(qdrantCreateCollection{
		Vectors: qdrantVectorConfig{Size: vectorSize, Distance: "Cosine"},
	})
	if err != nil {
		return fmt.Errorf("marshal collection config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", q.url+"/collections/"+q.collection, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusOK {
		return nil
	}
	return fmt.Errorf("create collection status %d", resp.StatusCode)
}

// Point is a vector with its payload, used for seeding.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Upsert inserts or updates points in the collection.
func (q *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	qp := make([]qdrantPoint, len(points))
	for i, p := range points {
		vec := make([]float64, len(p.Vector))
		for j, v := range p.Vector {
			vec[j] = float64(v)
		}
		qp[i] = qdrantPoint{ID: p.ID, Vector: vec, Payload: p.Payload}
	}

	body, err := json.Marshal(qdrantUpsertRequest{Points: qp})
	if err != nil {
		return fmt.Errorf("marshal upsert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", q.url+"/collections/"+q.collection+"/points", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upsert status %d", resp.StatusCode)
	}
	return nil
}

// PointCount returns the number of points currently in the collection.
func (q *QdrantStore) PointCount(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", q.url+"/collections/"+q.collection, nil)
	if err != nil {
		return 0, fmt.Errorf("create collection info request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("collection info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("collection info status %d", resp.StatusCode)
	}

	var result qdrantCollectionInfo
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode collection info: %w", err)
	}
	return result.Result.PointsCount, nil
}

type qdrantCreateCollection struct {
	Vectors qdrantVectorConfig `json:"vectors"`
}

type qdrantVectorConfig struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantUpsertRequest struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantSearchRequest struct {
	Vector      []float64 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantSearchResult struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantSearchResult `json:"result"`
}

type qdrantCollectionInfo struct {
	Result struct {
		PointsCount int `json:"points_count"`
	} `json:"result"`
}
