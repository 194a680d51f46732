package dao

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"mathchat-backend/model"
)

func (s *Store) CreateDocument(ctx context.Context, doc *model.Document) error {
	return s.db.WithContext(ctx).Create(doc).Error
}

func (s *Store) GetDocument(ctx context.Context, id int64) (*model.Document, error) {
	var doc model.Document
	if err := s.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (s *Store) GetDocumentsByCollection(ctx context.Context, collectionID int64) ([]model.Document, error) {
	var docs []model.Document
	if err := s.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&model.Document{}, id).Error
}

func (s *Store) SetDocumentStatus(ctx context.Context, id int64, status model.Status) error {
	return s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// MarkDocumentCompleted records the result of a successful ingestion run.
func (s *Store) MarkDocumentCompleted(ctx context.Context, id int64, chunkCount int, vectorIDs []int64) error {
	blob, err := json.Marshal(model.DocMetadataBlob{
		VectorIDs:   vectorIDs,
		TotalChunks: chunkCount,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.StatusCompleted,
			"chunk_count":  chunkCount,
			"processed_at": &now,
			"doc_metadata": blob,
		}).Error
}

func (s *Store) MarkDocumentFailed(ctx context.Context, id int64, message string) error {
	return s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        model.StatusFailed,
			"error_message": message,
		}).Error
}
