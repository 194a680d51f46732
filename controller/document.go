package controller

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mathchat-backend/model"
	"mathchat-backend/response"
)

// maxUploadSize bounds one document upload. Embedding cost grows with
// document size, so oversized files are rejected before any work happens.
const maxUploadSize = 50 << 20

// UploadDocument accepts a multipart file, persists it and schedules
// background ingestion. The response carries the pending document record;
// clients poll its status.
func (h *Handler) UploadDocument(c *gin.Context) {
	collection, ok := h.collectionByParam(c, ErrUploadDocument)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: "file field is required",
		})
		return
	}

	fileType := model.FileType(strings.TrimPrefix(strings.ToLower(filepath.Ext(fileHeader.Filename)), "."))
	if !model.SupportedFileTypes[fileType] {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, response.Response{
			Msg: fmt.Sprintf("unsupported file type %q", fileType),
		})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, response.Response{
			Msg: "file exceeds the 50 MB upload limit",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		slog.Error(ErrUploadDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error(ErrUploadDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}

	key := fmt.Sprintf("documents/%d/%s%s", collection.ID, uuid.New().String(), filepath.Ext(fileHeader.Filename))
	if err := h.files.Store(c.Request.Context(), key, data); err != nil {
		slog.Error(ErrUploadDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}

	doc := model.Document{
		Filename:     fileHeader.Filename,
		FilePath:     key,
		FileType:     fileType,
		FileSize:     fileHeader.Size,
		CollectionID: collection.ID,
		Status:       model.StatusPending,
	}
	if err := h.store.CreateDocument(c.Request.Context(), &doc); err != nil {
		slog.Error(ErrUploadDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), doc.ID); err != nil {
		slog.Error("failed to schedule ingestion", "document_id", doc.ID, "err", err)
		if markErr := h.store.MarkDocumentFailed(c.Request.Context(), doc.ID, err.Error()); markErr != nil {
			slog.Error("failed to record dispatch failure", "document_id", doc.ID, "err", markErr)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, response.Response{
		Data: documentResponse(doc),
	})
}

func (h *Handler) GetDocuments(c *gin.Context) {
	collection, ok := h.collectionByParam(c, ErrGetDocuments)
	if !ok {
		return
	}

	docs, err := h.store.GetDocumentsByCollection(c.Request.Context(), collection.ID)
	if err != nil {
		slog.Error(ErrGetDocuments.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetDocuments.Error(),
		})
		return
	}

	var resp response.GetDocumentsResponse
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, documentResponse(doc))
	}
	c.JSON(http.StatusOK, response.Response{Data: resp})
}

func (h *Handler) GetDocument(c *gin.Context) {
	doc, ok := h.documentByParam(c, ErrGetDocument)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, response.Response{Data: documentResponse(*doc)})
}

// DeleteDocument removes the vectors first, then the record. Vector deletion
// failures abort so a retry can finish the cleanup.
func (h *Handler) DeleteDocument(c *gin.Context) {
	doc, ok := h.documentByParam(c, ErrDeleteDocument)
	if !ok {
		return
	}

	collection, err := h.store.GetCollection(c.Request.Context(), doc.CollectionID)
	if err != nil {
		slog.Error(ErrDeleteDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrDeleteDocument.Error(),
		})
		return
	}

	if collection != nil {
		deleted, err := h.vectors.DeleteByDocument(c.Request.Context(), collection.Name, doc.ID)
		if err != nil {
			slog.Error(ErrDeleteDocument.Error(), "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Msg: ErrDeleteDocument.Error(),
			})
			return
		}
		slog.Info("document vectors removed", "document_id", doc.ID, "deleted", deleted)
	}

	if err := h.store.DeleteDocument(c.Request.Context(), doc.ID); err != nil {
		slog.Error(ErrDeleteDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrDeleteDocument.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}

func (h *Handler) documentByParam(c *gin.Context, opErr error) (*model.Document, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return nil, false
	}

	doc, err := h.store.GetDocument(c.Request.Context(), id)
	if err != nil {
		slog.Error(opErr.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: opErr.Error(),
		})
		return nil, false
	}
	if doc == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
			Msg: "document not found",
		})
		return nil, false
	}
	return doc, true
}

func documentResponse(doc model.Document) response.DocumentResponse {
	return response.DocumentResponse{
		ID:           doc.ID,
		Filename:     doc.Filename,
		Title:        doc.Title,
		FileType:     string(doc.FileType),
		FileSize:     doc.FileSize,
		Status:       string(doc.Status),
		ChunkCount:   doc.ChunkCount,
		ErrorMessage: doc.ErrorMessage,
		CreatedAt:    doc.CreatedAt,
		ProcessedAt:  doc.ProcessedAt,
	}
}
