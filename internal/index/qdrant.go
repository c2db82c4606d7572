package index

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dgallion1/legichunk/internal/doctree"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

type healthAPI interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Qdrant stores chunks in a Qdrant collection over gRPC.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	health      healthAPI
	collection  string
}

// NewQdrant connects to Qdrant's gRPC port (usually 6334).
func NewQdrant(addr, collection string) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		health:      pb.NewQdrantClient(conn),
		collection:  collection,
	}, nil
}

// Collection returns the collection name.
func (q *Qdrant) Collection() string { return q.collection }

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection with a keyword index on
// source_book if it does not exist.
func (q *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("index: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: create collection %s: %w", q.collection, err)
	}

	wait := true
	keyword := pb.FieldType_FieldTypeKeyword
	_, err = q.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: q.collection,
		Wait:           &wait,
		FieldName:      "source_book",
		FieldType:      &keyword,
	})
	if err != nil {
		return fmt.Errorf("index: create source_book index: %w", err)
	}
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: chunkPayload(r.Chunk),
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("index: upsert %d points: %w", len(records), err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if f.ScoreThreshold > 0 {
		th := f.ScoreThreshold
		req.ScoreThreshold = &th
	}
	if len(f.SourceBooks) > 0 {
		should := make([]*pb.Condition, 0, len(f.SourceBooks))
		for _, b := range f.SourceBooks {
			should = append(should, fieldMatch("source_book", b))
		}
		req.Filter = &pb.Filter{Should: should}
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
			Chunk: chunkFromPayload(r.GetPayload()),
		}
	}
	return hits, nil
}

func (q *Qdrant) Health(ctx context.Context) error {
	if _, err := q.health.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("index: qdrant health: %w", err)
	}
	return nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func str(s string) *pb.Value  { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
func integer(n int) *pb.Value { return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}} }

// chunkPayload stores every chunk field so a hit can be rebuilt without
// reading the JSONL files.
func chunkPayload(c doctree.Chunk) map[string]*pb.Value {
	path := make([]*pb.Value, len(c.HierarchyPath))
	for i, l := range c.HierarchyPath {
		path[i] = str(l)
	}
	p := map[string]*pb.Value{
		"content":        str(c.Content),
		"source_book":    str(c.SourceBook),
		"source_url":     str(c.SourceURL),
		"article_id":     str(c.ArticleID),
		"article_url":    str(c.ArticleURL),
		"hierarchy_path": {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: path}}},
		"page":           integer(c.Page),
		"raw_content":    str(c.RawContent),
		"offset":         integer(c.Offset),
		"chunk_index":    integer(c.ChunkIndex),
		"overlap":        integer(c.Overlap),
	}
	if len(c.Extra) > 0 {
		fields := make(map[string]*pb.Value, len(c.Extra))
		for k, v := range c.Extra {
			fields[k] = str(v)
		}
		p["extra"] = &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	}
	return p
}

func chunkFromPayload(p map[string]*pb.Value) doctree.Chunk {
	c := doctree.Chunk{
		Content:    p["content"].GetStringValue(),
		SourceBook: p["source_book"].GetStringValue(),
		SourceURL:  p["source_url"].GetStringValue(),
		ArticleID:  p["article_id"].GetStringValue(),
		ArticleURL: p["article_url"].GetStringValue(),
		Page:       int(p["page"].GetIntegerValue()),
		RawContent: p["raw_content"].GetStringValue(),
		Offset:     int(p["offset"].GetIntegerValue()),
		ChunkIndex: int(p["chunk_index"].GetIntegerValue()),
		Overlap:    int(p["overlap"].GetIntegerValue()),
	}
	values := p["hierarchy_path"].GetListValue().GetValues()
	c.HierarchyPath = make([]string, len(values))
	for i, v := range values {
		c.HierarchyPath[i] = v.GetStringValue()
	}
	if fields := p["extra"].GetStructValue().GetFields(); len(fields) > 0 {
		c.Extra = make(map[string]string, len(fields))
		for k, v := range fields {
			c.Extra[k] = v.GetStringValue()
		}
	}
	return c
}
