// Package ingest turns an uploaded document into indexed vector chunks and
// tracks its lifecycle in the relational store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"mathchat-backend/dao"
	"mathchat-backend/model"
	"mathchat-backend/service/storage"
	"mathchat-backend/service/vectorstore"
)

// insertBatchSize bounds how many chunks go to the vector store per call, so
// one oversized document cannot hold a single huge request open.
const insertBatchSize = 10

// Documents is the relational surface the pipeline needs.
type Documents interface {
	GetDocument(ctx context.Context, id int64) (*model.Document, error)
	SetDocumentStatus(ctx context.Context, id int64, status model.Status) error
	MarkDocumentCompleted(ctx context.Context, id int64, chunkCount int, vectorIDs []int64) error
	MarkDocumentFailed(ctx context.Context, id int64, message string) error
	GetCollection(ctx context.Context, id int64) (*model.Collection, error)
}

// Vectors is the write side of the vector store.
type Vectors interface {
	AddTexts(ctx context.Context, collection string, texts []string, metadatas []vectorstore.ChunkMetadata) ([]int64, error)
}

type Pipeline struct {
	docs     Documents
	vectors  Vectors
	fetcher  storage.Storage
	splitter textsplitter.TextSplitter
}

func NewPipeline(docs Documents, vectors Vectors, fetcher storage.Storage, splitter textsplitter.TextSplitter) *Pipeline {
	return &Pipeline{docs: docs, vectors: vectors, fetcher: fetcher, splitter: splitter}
}

var _ Documents = (*dao.Store)(nil)

// Process runs the full ingestion for one document: fetch, split, embed,
// index, then record the outcome. Any failure marks the document failed with
// the cause; the error is also returned for the dispatcher's logs.
func (p *Pipeline) Process(ctx context.Context, documentID int64) error {
	doc, err := p.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to look up document %d: %w", documentID, err)
	}
	if doc == nil {
		return fmt.Errorf("document %d does not exist", documentID)
	}

	if err := p.docs.SetDocumentStatus(ctx, documentID, model.StatusProcessing); err != nil {
		return fmt.Errorf("failed to mark document %d processing: %w", documentID, err)
	}

	vectorIDs, chunkCount, err := p.run(ctx, doc)
	if err != nil {
		slog.Error("document ingestion failed", "document_id", documentID, "err", err)
		if markErr := p.docs.MarkDocumentFailed(ctx, documentID, err.Error()); markErr != nil {
			slog.Error("failed to record ingestion failure", "document_id", documentID, "err", markErr)
		}
		return err
	}

	if err := p.docs.MarkDocumentCompleted(ctx, documentID, chunkCount, vectorIDs); err != nil {
		return fmt.Errorf("failed to mark document %d completed: %w", documentID, err)
	}

	slog.Info("document ingested", "document_id", documentID, "chunks", chunkCount)
	return nil
}

func (p *Pipeline) run(ctx context.Context, doc *model.Document) ([]int64, int, error) {
	coll, err := p.docs.GetCollection(ctx, doc.CollectionID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to look up collection %d: %w", doc.CollectionID, err)
	}
	if coll == nil {
		return nil, 0, fmt.Errorf("collection %d does not exist", doc.CollectionID)
	}

	data, err := p.fetcher.Fetch(ctx, doc.FilePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch document content: %w", err)
	}

	chunks, err := loadAndSplit(ctx, doc.FileType, data, p.splitter)
	if err != nil {
		return nil, 0, err
	}
	if len(chunks) == 0 {
		return nil, 0, fmt.Errorf("document %s produced no chunks", doc.Filename)
	}

	processedAt := time.Now().UTC().Format(time.RFC3339)
	texts := make([]string, len(chunks))
	metadatas := make([]vectorstore.ChunkMetadata, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.PageContent
		metadatas[i] = vectorstore.ChunkMetadata{
			DocumentID:    doc.ID,
			Filename:      doc.Filename,
			Title:         doc.Title,
			ChunkIndex:    i,
			TotalChunks:   len(chunks),
			Collection:    coll.Name,
			ContentLength: len(chunk.PageContent),
			FileSize:      doc.FileSize,
			FileType:      string(doc.FileType),
			ProcessedAt:   processedAt,
			Extra:         chunk.Metadata,
		}
	}

	var vectorIDs []int64
	for start := 0; start < len(texts); start += insertBatchSize {
		end := min(start+insertBatchSize, len(texts))
		ids, err := p.vectors.AddTexts(ctx, coll.Name, texts[start:end], metadatas[start:end])
		if err != nil {
			return nil, 0, fmt.Errorf("failed to index chunks %d-%d: %w", start, end-1, err)
		}
		vectorIDs = append(vectorIDs, ids...)
	}

	return vectorIDs, len(chunks), nil
}
