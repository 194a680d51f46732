// Package vectorstore owns the mapping between a named collection and its
// Milvus index: inserts with normalized metadata, filtered similarity
// search, point deletion by document, and schema introspection.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	fieldID     = "id"
	fieldVector = "vector"
	fieldText   = "text"

	textMaxLength    = 65535
	varcharMaxLength = 512

	hnswM              = 16
	hnswEfConstruction = 200
)

// varcharFields and int64Fields define the scalar schema. The title aliases
// (title/subject/name) all carry the same value so collections created
// against any schema generation stay queryable.
var varcharFields = []struct {
	name string
	get  func(m ChunkMetadata) string
}{
	{"filename", func(m ChunkMetadata) string { return m.Filename }},
	{"title", func(m ChunkMetadata) string { return m.Title }},
	{"subject", func(m ChunkMetadata) string { return m.Title }},
	{"name", func(m ChunkMetadata) string { return m.Title }},
	{"chunk_id", func(m ChunkMetadata) string { return m.ChunkID }},
	{"collection_name", func(m ChunkMetadata) string { return m.Collection }},
	{"file_type", func(m ChunkMetadata) string { return m.FileType }},
	{"author", func(m ChunkMetadata) string { return m.Author }},
	{"publisher", func(m ChunkMetadata) string { return m.Publisher }},
	{"date", func(m ChunkMetadata) string { return m.Date }},
	{"keywords", func(m ChunkMetadata) string { return m.Keywords }},
	{"description", func(m ChunkMetadata) string { return m.Description }},
	{"language", func(m ChunkMetadata) string { return m.Language }},
	{"content_type", func(m ChunkMetadata) string { return m.ContentType }},
	{"source_type", func(m ChunkMetadata) string { return m.SourceType }},
	{"processed_at", func(m ChunkMetadata) string { return m.ProcessedAt }},
}

var int64Fields = []struct {
	name string
	get  func(m ChunkMetadata) int64
}{
	{"document_id", func(m ChunkMetadata) int64 { return m.DocumentID }},
	{"chunk_index", func(m ChunkMetadata) int64 { return int64(m.ChunkIndex) }},
	{"total_chunks", func(m ChunkMetadata) int64 { return int64(m.TotalChunks) }},
	{"content_length", func(m ChunkMetadata) int64 { return int64(m.ContentLength) }},
	{"file_size", func(m ChunkMetadata) int64 { return m.FileSize }},
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension(ctx context.Context) (int, error)
}

type Store struct {
	client   *milvusclient.Client
	embedder Embedder

	mu      sync.Mutex
	ensured map[string]bool
}

func New(client *milvusclient.Client, embedder Embedder) *Store {
	return &Store{
		client:   client,
		embedder: embedder,
		ensured:  make(map[string]bool),
	}
}

func Connect(ctx context.Context, endpoint, apiKey string, embedder Embedder) (*Store, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return New(client, embedder), nil
}

type SearchResult struct {
	Content  string
	Metadata map[string]any
	Score    float32
}

type CollectionStats struct {
	Exists bool  `json:"exists"`
	Count  int64 `json:"count"`
}

type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// AddTexts normalizes metadata, embeds the texts and inserts one batch. The
// returned id slice is index-aligned with texts. Connectivity failures
// propagate; retry policy belongs to the caller, whose batch is the unit of
// retry.
func (s *Store) AddTexts(ctx context.Context, collection string, texts []string, metadatas []ChunkMetadata) ([]int64, error) {
	if len(texts) != len(metadatas) {
		return nil, fmt.Errorf("texts and metadatas length mismatch: %d != %d", len(texts), len(metadatas))
	}
	if len(texts) == 0 {
		return nil, nil
	}

	normalized := make([]ChunkMetadata, len(metadatas))
	for i, m := range metadatas {
		normalized[i] = Normalize(m)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts for %s: %w", collection, err)
	}

	dim, err := s.embedder.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCollection(ctx, collection, dim); err != nil {
		return nil, err
	}

	columns := []column.Column{
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnFloatVector(fieldVector, dim, vectors),
	}
	columns = append(columns, metadataColumns(normalized)...)

	result, err := s.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collection).WithColumns(columns...))
	if err != nil {
		return nil, fmt.Errorf("failed to insert %d chunks into %s: %w", len(texts), collection, err)
	}

	ids, err := extractIDs(result.IDs)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(texts) {
		return nil, fmt.Errorf("insert into %s returned %d ids for %d texts", collection, len(ids), len(texts))
	}

	slog.Debug("inserted chunks", "collection", collection, "count", len(ids))
	return ids, nil
}

// SimilaritySearch returns up to k results ordered by similarity. The
// optional filter is an equality match over metadata fields, translated to a
// Milvus boolean expression.
func (s *Store) SimilaritySearch(ctx context.Context, collection, query string, k int, filter map[string]any) ([]SearchResult, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	outputFields := []string{fieldText}
	for _, f := range varcharFields {
		outputFields = append(outputFields, f.name)
	}
	for _, f := range int64Fields {
		outputFields = append(outputFields, f.name)
	}

	opt := milvusclient.NewSearchOption(collection, k, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(fieldVector).
		WithOutputFields(outputFields...)
	if expr := buildFilterExpr(filter); expr != "" {
		opt = opt.WithFilter(expr)
	}

	resultSets, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	var results []SearchResult
	for _, rs := range resultSets {
		textCol := rs.GetColumn(fieldText)
		if textCol == nil {
			continue
		}
		for i := 0; i < rs.ResultCount; i++ {
			content, err := textCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read search result %d: %w", i, err)
			}

			metadata := make(map[string]any)
			for _, f := range varcharFields {
				if c := rs.GetColumn(f.name); c != nil {
					if v, err := c.GetAsString(i); err == nil {
						metadata[f.name] = v
					}
				}
			}
			for _, f := range int64Fields {
				if c := rs.GetColumn(f.name); c != nil {
					if v, err := c.GetAsInt64(i); err == nil {
						metadata[f.name] = v
					}
				}
			}

			result := SearchResult{Content: content, Metadata: metadata}
			if i < len(rs.Scores) {
				result.Score = rs.Scores[i]
			}
			results = append(results, result)
		}
	}

	slog.Debug("similarity search", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// DeleteByDocument removes all vectors whose document_id matches. A missing
// collection or a zero match is a normal outcome, not an error.
func (s *Store) DeleteByDocument(ctx context.Context, collection string, documentID int64) (int64, error) {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		slog.Warn("collection does not exist, nothing to delete", "collection", collection)
		return 0, nil
	}

	result, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(collection).
		WithExpr(fmt.Sprintf("document_id == %d", documentID)))
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %d from %s: %w", documentID, collection, err)
	}

	slog.Info("deleted document vectors",
		"collection", collection,
		"document_id", documentID,
		"deleted", result.DeleteCount,
	)
	return result.DeleteCount, nil
}

// DropCollection removes the whole vector partition. Missing collections are
// logged and ignored.
func (s *Store) DropCollection(ctx context.Context, collection string) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		slog.Warn("collection does not exist, nothing to drop", "collection", collection)
		return nil
	}

	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collection)); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", collection, err)
	}

	s.mu.Lock()
	delete(s.ensured, collection)
	s.mu.Unlock()

	slog.Info("dropped collection", "collection", collection)
	return nil
}

// Stats reports existence and entity count. exists=false is a normal
// outcome for an unknown collection name.
func (s *Store) Stats(ctx context.Context, collection string) (CollectionStats, error) {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return CollectionStats{}, fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		return CollectionStats{Exists: false}, nil
	}

	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(collection).
		WithOutputFields("count(*)").
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return CollectionStats{}, fmt.Errorf("failed to count entities in %s: %w", collection, err)
	}

	countCol := rs.GetColumn("count(*)")
	if countCol == nil {
		return CollectionStats{Exists: true}, nil
	}
	count, err := countCol.GetAsInt64(0)
	if err != nil {
		return CollectionStats{}, fmt.Errorf("failed to read entity count for %s: %w", collection, err)
	}

	return CollectionStats{Exists: true, Count: count}, nil
}

// DescribeSchema lists the fields of an existing collection, for diagnosing
// schema drift across collection generations.
func (s *Store) DescribeSchema(ctx context.Context, collection string) ([]FieldInfo, error) {
	desc, err := s.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to describe collection %s: %w", collection, err)
	}

	fields := make([]FieldInfo, 0, len(desc.Schema.Fields))
	for _, f := range desc.Schema.Fields {
		fields = append(fields, FieldInfo{Name: f.Name, Type: f.DataType.String()})
	}
	return fields, nil
}

// EnsureCollection creates the collection with the full scalar schema and
// indexes when it does not exist yet, then loads it for search.
func (s *Store) EnsureCollection(ctx context.Context, collection string) error {
	dim, err := s.embedder.Dimension(ctx)
	if err != nil {
		return err
	}
	return s.ensureCollection(ctx, collection, dim)
}

func (s *Store) ensureCollection(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	done := s.ensured[collection]
	s.mu.Unlock()
	if done {
		return nil
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", collection, err)
	}

	if !exists {
		schema := collectionSchema(dim)
		err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(collection, schema).
			WithIndexOptions(
				milvusclient.NewCreateIndexOption(collection, fieldVector,
					index.NewHNSWIndex(entity.COSINE, hnswM, hnswEfConstruction)),
				milvusclient.NewCreateIndexOption(collection, "document_id", index.NewInvertedIndex()),
			))
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", collection, err)
		}
		slog.Info("created collection", "collection", collection, "dimension", dim)
	}

	task, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(collection))
	if err != nil {
		return fmt.Errorf("failed to load collection %s: %w", collection, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to await load of collection %s: %w", collection, err)
	}

	s.mu.Lock()
	s.ensured[collection] = true
	s.mu.Unlock()
	return nil
}

func collectionSchema(dim int) *entity.Schema {
	schema := entity.NewSchema().
		WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).WithIsAutoID(true)).
		WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim))).
		WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(textMaxLength))

	for _, f := range varcharFields {
		schema = schema.WithField(entity.NewField().WithName(f.name).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(varcharMaxLength))
	}
	for _, f := range int64Fields {
		schema = schema.WithField(entity.NewField().WithName(f.name).
			WithDataType(entity.FieldTypeInt64))
	}
	return schema
}

func metadataColumns(metadatas []ChunkMetadata) []column.Column {
	columns := make([]column.Column, 0, len(varcharFields)+len(int64Fields))

	for _, f := range varcharFields {
		values := make([]string, len(metadatas))
		for i, m := range metadatas {
			values[i] = f.get(m)
		}
		columns = append(columns, column.NewColumnVarChar(f.name, values))
	}
	for _, f := range int64Fields {
		values := make([]int64, len(metadatas))
		for i, m := range metadatas {
			values[i] = f.get(m)
		}
		columns = append(columns, column.NewColumnInt64(f.name, values))
	}
	return columns
}

func extractIDs(ids column.Column) ([]int64, error) {
	if ids == nil {
		return nil, fmt.Errorf("insert returned no id column")
	}
	out := make([]int64, ids.Len())
	for i := range out {
		v, err := ids.GetAsInt64(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read inserted id %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// buildFilterExpr renders an equality filter as a Milvus boolean expression,
// with keys sorted for deterministic output.
func buildFilterExpr(filter map[string]any) string {
	if len(filter) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := filter[k].(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s == %q", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s == %v", k, v))
		}
	}
	return strings.Join(parts, " && ")
}
