// Package qdrant implements vectorstore.Store on a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/config"
	"github.com/docqa/docqa/pkg/models"
	"github.com/docqa/docqa/pkg/vectorstore"
)

// Store is a vectorstore.Store backed by one Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
	log        *zap.Logger
}

// New connects to Qdrant. The collection is not created until EnsureCollection.
func New(cfg config.VectorStoreConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Store{client: client, collection: cfg.Collection, log: log}, nil
}

// EnsureCollection implements vectorstore.Store.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	s.log.Info("created qdrant collection", zap.String("collection", s.collection), zap.Int("dim", dim))
	return nil
}

// Upsert implements vectorstore.Store. Point ids must be UUIDs.
func (s *Store) Upsert(ctx context.Context, p models.Point) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(p.ID),
				Vectors: qdrant.NewVectorsDense(p.Vector),
				Payload: qdrant.NewValueMap(map[string]any{
					vectorstore.PayloadText:     p.Payload.Text,
					vectorstore.PayloadFilename: p.Payload.Filename,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", p.ID, err)
	}
	return nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]models.Point, error) {
	if topK <= 0 {
		return nil, nil
	}
	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search qdrant: %w", err)
	}
	out := make([]models.Point, 0, len(res))
	for _, sp := range res {
		p := toPoint(sp.GetId(), sp.GetPayload())
		p.Score = sp.GetScore()
		out = append(out, p)
	}
	return out, nil
}

// Get implements vectorstore.Store. Ids that are not UUIDs are reported as missing.
func (s *Store) Get(ctx context.Context, id string) (models.Point, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Point{}, false, nil
	}
	res, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return models.Point{}, false, fmt.Errorf("get point %s: %w", id, err)
	}
	if len(res) == 0 {
		return models.Point{}, false, nil
	}
	return toPoint(res[0].GetId(), res[0].GetPayload()), true, nil
}

// Scroll implements vectorstore.Store.
func (s *Store) Scroll(ctx context.Context, limit int) ([]models.Point, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: s.collection,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if limit > 0 {
		req.Limit = qdrant.PtrOf(uint32(limit))
	}
	res, err := s.client.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("scroll qdrant: %w", err)
	}
	out := make([]models.Point, 0, len(res))
	for _, rp := range res {
		out = append(out, toPoint(rp.GetId(), rp.GetPayload()))
	}
	return out, nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func toPoint(id *qdrant.PointId, payload map[string]*qdrant.Value) models.Point {
	return models.Point{
		ID: pointID(id),
		Payload: models.Payload{
			Text:     payload[vectorstore.PayloadText].GetStringValue(),
			Filename: payload[vectorstore.PayloadFilename].GetStringValue(),
		},
	}
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
