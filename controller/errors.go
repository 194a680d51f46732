package controller

import "errors"

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrChat = errors.New("failed to answer question")

	ErrCreateCollection = errors.New("failed to create collection")
	ErrGetCollections   = errors.New("failed to get collections")
	ErrGetCollection    = errors.New("failed to get collection")
	ErrDeleteCollection = errors.New("failed to delete collection")

	ErrUploadDocument = errors.New("failed to upload document")
	ErrGetDocuments   = errors.New("failed to get documents")
	ErrGetDocument    = errors.New("failed to get document")
	ErrDeleteDocument = errors.New("failed to delete document")
)
