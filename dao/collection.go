package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"mathchat-backend/model"
)

func (s *Store) CreateCollection(ctx context.Context, collection *model.Collection) error {
	return s.db.WithContext(ctx).Create(collection).Error
}

func (s *Store) GetCollection(ctx context.Context, id int64) (*model.Collection, error) {
	var collection model.Collection
	if err := s.db.WithContext(ctx).First(&collection, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &collection, nil
}

func (s *Store) GetCollectionByName(ctx context.Context, name string) (*model.Collection, error) {
	var collection model.Collection
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&collection).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &collection, nil
}

func (s *Store) GetCollections(ctx context.Context) ([]model.Collection, error) {
	var collections []model.Collection
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&collections).Error; err != nil {
		return nil, err
	}
	return collections, nil
}

// DeleteCollection removes the collection record and its documents in one
// transaction. Dropping the vector partition is the caller's follow-up step.
func (s *Store) DeleteCollection(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Collection{}, id).Error
	})
}
