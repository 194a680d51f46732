// Package controller maps HTTP requests onto the services.
package controller

import (
	"context"

	"mathchat-backend/dao"
	"mathchat-backend/service/rag"
	"mathchat-backend/service/storage"
	"mathchat-backend/service/vectorstore"
)

// VectorAdmin is the vector-store surface the HTTP layer needs beyond
// retrieval: per-document deletion and collection lifecycle.
type VectorAdmin interface {
	DeleteByDocument(ctx context.Context, collection string, documentID int64) (int64, error)
	DropCollection(ctx context.Context, collection string) error
	Stats(ctx context.Context, collection string) (vectorstore.CollectionStats, error)
}

// IngestDispatcher schedules background processing of an uploaded document.
type IngestDispatcher interface {
	Dispatch(ctx context.Context, documentID int64) error
}

type Handler struct {
	store      *dao.Store
	vectors    VectorAdmin
	rag        *rag.Service
	dispatcher IngestDispatcher
	files      storage.Storage
}

func NewHandler(store *dao.Store, vectors VectorAdmin, ragSvc *rag.Service, dispatcher IngestDispatcher, files storage.Storage) *Handler {
	return &Handler{
		store:      store,
		vectors:    vectors,
		rag:        ragSvc,
		dispatcher: dispatcher,
		files:      files,
	}
}
