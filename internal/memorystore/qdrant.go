package memorystore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadOriginalID mirrors the teacher's qdrant_vector.go convention:
// Qdrant only accepts UUID or integer point IDs, so a non-UUID memory_id
// is rehashed into a deterministic UUID and the original preserved here.
const payloadOriginalID = "_original_id"

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantVectorStore connects to Qdrant over its gRPC API (default port
// 6334) and ensures collection exists with the requested dimensionality
// and distance metric.
func NewQdrantVectorStore(dsn, collection string, dimensions int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	q := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return q, nil
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *qdrantStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	uuidStr := pointUUID(id)
	metadataAny := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		metadataAny[k] = v
	}
	if uuidStr != id {
		metadataAny[payloadOriginalID] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(uuidStr),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(metadataAny),
	}}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

func (q *qdrantStore) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID(id))),
	})
	return err
}

func (q *qdrantStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	results := make([]VectorResult, 0, len(hits))
	for _, hit := range hits {
		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}
		metadata := make(map[string]string)
		var originalID string
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				if k == payloadOriginalID {
					originalID = v.GetStringValue()
					continue
				}
				metadata[k] = v.GetStringValue()
			}
		}
		id := originalID
		if id == "" {
			id = uuidStr
		}
		results = append(results, VectorResult{ID: id, Score: float64(hit.Score), Metadata: metadata})
	}
	return results, nil
}

// BatchSimilaritySearch issues a single QueryBatch gRPC call covering all
// of vectors, matching spec.md §4.2's "exactly one round trip regardless
// of batch size" requirement for batch_find_similar.
func (q *qdrantStore) BatchSimilaritySearch(ctx context.Context, vectors [][]float32, filter map[string]string) ([][]VectorResult, error) {
	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(1)
	queries := make([]*qdrant.QueryPoints, len(vectors))
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		queries[i] = &qdrant.QueryPoints{
			CollectionName: q.collection,
			Query:          qdrant.NewQueryDense(vec),
			Limit:          &limit,
			Filter:         queryFilter,
			WithPayload:    qdrant.NewWithPayload(true),
		}
	}

	batches, err := q.client.QueryBatch(ctx, &qdrant.QueryBatchPoints{
		CollectionName: q.collection,
		QueryPoints:    queries,
	})
	if err != nil {
		return nil, err
	}

	out := make([][]VectorResult, len(vectors))
	for i, batch := range batches {
		hits := batch.GetResult()
		results := make([]VectorResult, 0, len(hits))
		for _, hit := range hits {
			uuidStr := hit.Id.GetUuid()
			if uuidStr == "" {
				uuidStr = hit.Id.String()
			}
			metadata := make(map[string]string)
			var originalID string
			if hit.Payload != nil {
				for k, v := range hit.Payload {
					if k == payloadOriginalID {
						originalID = v.GetStringValue()
						continue
					}
					metadata[k] = v.GetStringValue()
				}
			}
			id := originalID
			if id == "" {
				id = uuidStr
			}
			results = append(results, VectorResult{ID: id, Score: float64(hit.Score), Metadata: metadata})
		}
		out[i] = results
	}
	return out, nil
}

func (q *qdrantStore) Dimension() int { return q.dimension }

func (q *qdrantStore) Close() error { return q.client.Close() }
