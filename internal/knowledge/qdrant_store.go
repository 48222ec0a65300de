package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	DefaultQdrantAddr       = "localhost:6334"
	DefaultQdrantCollection = "psadt_docs"

	payloadID      = "doc_id"
	payloadContent = "content"
	payloadMeta    = "meta."
)

// QdrantStore keeps documents in a Qdrant collection over gRPC. Document ids
// map to deterministic UUIDs so re-adding the same id is detected.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	collection  string
	embed       Embedder
}

type QdrantConfig struct {
	Addr       string
	Collection string
	APIKey     string
	// Dimensions of the embedder's vectors; used when creating the collection.
	Dimensions int
}

// OpenQdrantStore dials addr and makes sure the collection exists.
func OpenQdrantStore(ctx context.Context, cfg QdrantConfig, e Embedder) (*QdrantStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultQdrantAddr
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: connect qdrant: %w", err)
	}
	s := newQdrantStore(qdrant.NewCollectionsClient(conn), qdrant.NewPointsClient(conn), cfg.Collection, e)
	s.conn = conn
	if err := s.ensureCollection(ctx, cfg.Dimensions); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", key), method, req, reply, cc, opts...)
	}
}

func newQdrantStore(cc qdrant.CollectionsClient, pc qdrant.PointsClient, collection string, e Embedder) *QdrantStore {
	if collection == "" {
		collection = DefaultQdrantCollection
	}
	if e == nil {
		e = NewHashEmbedder(0)
	}
	return &QdrantStore{collections: cc, points: pc, collection: collection, embed: e}
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("knowledge: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}
	if dims <= 0 {
		v, err := embedOne(ctx, s.embed, "dimension probe")
		if err != nil {
			return fmt.Errorf("knowledge: probe dimensions: %w", err)
		}
		dims = len(v)
	}
	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dims),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("knowledge: create collection %q: %w", s.collection, err)
	}
	return nil
}

func pointID(docID string) *qdrant.PointId {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID))
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: u.String()}}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func (s *QdrantStore) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = pointID(d.ID)
		texts[i] = d.Content
	}
	found, err := s.points.Get(ctx, &qdrant.GetPoints{CollectionName: s.collection, Ids: ids})
	if err != nil {
		return fmt.Errorf("knowledge: qdrant lookup: %w", err)
	}
	existing := map[string]bool{}
	for _, p := range found.GetResult() {
		existing[p.GetId().GetUuid()] = true
	}
	if err := checkBatch(docs, func(id string) bool { return existing[pointID(id).GetUuid()] }); err != nil {
		return err
	}

	vecs, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("knowledge: embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return ErrDimension
	}
	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		payload := map[string]*qdrant.Value{
			payloadID:      stringValue(d.ID),
			payloadContent: stringValue(d.Content),
		}
		for k, v := range d.Metadata {
			payload[payloadMeta+k] = stringValue(v)
		}
		points[i] = &qdrant.PointStruct{
			Id: ids[i],
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vecs[i]}},
			},
			Payload: payload,
		}
	}
	wait := true
	if _, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("knowledge: qdrant upsert: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	q, err := embedOne(ctx, forQuery(s.embed), query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         q,
		Limit:          uint64(topK),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: qdrant search: %w", err)
	}
	cands := make([]scored, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		d := Document{Metadata: map[string]string{}}
		for k, v := range p.GetPayload() {
			switch {
			case k == payloadID:
				d.ID = v.GetStringValue()
			case k == payloadContent:
				d.Content = v.GetStringValue()
			case strings.HasPrefix(k, payloadMeta):
				d.Metadata[strings.TrimPrefix(k, payloadMeta)] = v.GetStringValue()
			}
		}
		// cosine collections report similarity
		cands = append(cands, scored{doc: d, dist: clampDistance(1 - float64(p.GetScore()))})
	}
	return rank(cands, topK), nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("knowledge: qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *QdrantStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
