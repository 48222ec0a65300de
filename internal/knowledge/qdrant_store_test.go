package knowledge

import (
	"context"
	"sort"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// fakeCollections and fakePoints implement the handful of RPCs the store
// uses; the embedded interfaces panic on anything else.
type fakeCollections struct {
	qdrant.CollectionsClient
	names   []string
	created []*qdrant.CreateCollection
}

func (f *fakeCollections) List(context.Context, *qdrant.ListCollectionsRequest, ...grpc.CallOption) (*qdrant.ListCollectionsResponse, error) {
	resp := &qdrant.ListCollectionsResponse{}
	for _, n := range f.names {
		resp.Collections = append(resp.Collections, &qdrant.CollectionDescription{Name: n})
	}
	return resp, nil
}

func (f *fakeCollections) Create(_ context.Context, in *qdrant.CreateCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	f.names = append(f.names, in.CollectionName)
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	qdrant.PointsClient
	points map[string]*qdrant.PointStruct
}

func (f *fakePoints) Get(_ context.Context, in *qdrant.GetPoints, _ ...grpc.CallOption) (*qdrant.GetResponse, error) {
	resp := &qdrant.GetResponse{}
	for _, id := range in.Ids {
		if p, ok := f.points[id.GetUuid()]; ok {
			resp.Result = append(resp.Result, &qdrant.RetrievedPoint{Id: p.Id, Payload: p.Payload})
		}
	}
	return resp, nil
}

func (f *fakePoints) Upsert(_ context.Context, in *qdrant.UpsertPoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	for _, p := range in.Points {
		f.points[p.Id.GetUuid()] = p
	}
	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *qdrant.SearchPoints, _ ...grpc.CallOption) (*qdrant.SearchResponse, error) {
	var hits []*qdrant.ScoredPoint
	for _, p := range f.points {
		d := cosineDistance(in.Vector, p.Vectors.GetVector().GetData())
		hits = append(hits, &qdrant.ScoredPoint{Id: p.Id, Payload: p.Payload, Score: float32(1 - orInf(d))})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if uint64(len(hits)) > in.Limit {
		hits = hits[:in.Limit]
	}
	return &qdrant.SearchResponse{Result: hits}, nil
}

func (f *fakePoints) Count(context.Context, *qdrant.CountPoints, ...grpc.CallOption) (*qdrant.CountResponse, error) {
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: uint64(len(f.points))}}, nil
}

func TestQdrantStore(t *testing.T) {
	cc := &fakeCollections{}
	pc := &fakePoints{points: map[string]*qdrant.PointStruct{}}
	s := newQdrantStore(cc, pc, "", NewHashEmbedder(128))
	require.NoError(t, s.ensureCollection(context.Background(), 0))
	require.Len(t, cc.created, 1)
	assert.Equal(t, DefaultQdrantCollection, cc.created[0].CollectionName)
	assert.Equal(t, uint64(128), cc.created[0].GetVectorsConfig().GetParams().GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, cc.created[0].GetVectorsConfig().GetParams().GetDistance())

	// existing collection is left alone
	require.NoError(t, s.ensureCollection(context.Background(), 0))
	assert.Len(t, cc.created, 1)

	storeContract(t, s)

	res, err := s.Search(context.Background(), "registry values", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "registry.md", res[0].Document.ID)
	assert.Equal(t, "registry.md", res[0].Document.Metadata["filename"])
	assert.Contains(t, res[0].Document.Content, "Set-RegistryKey")
	assert.NoError(t, s.Close())
}

func TestPointIDDeterministic(t *testing.T) {
	assert.Equal(t, pointID("a/b.md").GetUuid(), pointID("a/b.md").GetUuid())
	assert.NotEqual(t, pointID("a/b.md").GetUuid(), pointID("a/c.md").GetUuid())
}
