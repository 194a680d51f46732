package controller

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mathchat-backend/model"
	"mathchat-backend/request"
	"mathchat-backend/response"
)

func (h *Handler) CreateCollection(c *gin.Context) {
	var req request.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	existing, err := h.store.GetCollectionByName(c.Request.Context(), req.Name)
	if err != nil {
		slog.Error(ErrCreateCollection.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrCreateCollection.Error(),
		})
		return
	}
	if existing != nil {
		c.AbortWithStatusJSON(http.StatusConflict, response.Response{
			Msg: "collection already exists",
		})
		return
	}

	collection := model.Collection{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.CreateCollection(c.Request.Context(), &collection); err != nil {
		slog.Error(ErrCreateCollection.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrCreateCollection.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Data: response.CollectionResponse{
			ID:          collection.ID,
			Name:        collection.Name,
			Description: collection.Description,
		},
	})
}

func (h *Handler) GetCollections(c *gin.Context) {
	collections, err := h.store.GetCollections(c.Request.Context())
	if err != nil {
		slog.Error(ErrGetCollections.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetCollections.Error(),
		})
		return
	}

	var resp response.GetCollectionsResponse
	for _, coll := range collections {
		docs, err := h.store.GetDocumentsByCollection(c.Request.Context(), coll.ID)
		if err != nil {
			slog.Error(ErrGetCollections.Error(), "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Msg: ErrGetCollections.Error(),
			})
			return
		}
		resp.Collections = append(resp.Collections, response.CollectionResponse{
			ID:          coll.ID,
			Name:        coll.Name,
			Description: coll.Description,
			Documents:   len(docs),
		})
	}

	c.JSON(http.StatusOK, response.Response{Data: resp})
}

// GetCollectionStats reports the vector-side state of a collection.
func (h *Handler) GetCollectionStats(c *gin.Context) {
	collection, ok := h.collectionByParam(c, ErrGetCollection)
	if !ok {
		return
	}

	stats, err := h.vectors.Stats(c.Request.Context(), collection.Name)
	if err != nil {
		slog.Error(ErrGetCollection.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetCollection.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.CollectionStatsResponse{
			Exists: stats.Exists,
			Count:  stats.Count,
		},
	})
}

// DeleteCollection drops the vector partition first, then the relational
// records. A failed vector drop leaves the records intact for a retry.
func (h *Handler) DeleteCollection(c *gin.Context) {
	collection, ok := h.collectionByParam(c, ErrDeleteCollection)
	if !ok {
		return
	}

	if err := h.vectors.DropCollection(c.Request.Context(), collection.Name); err != nil {
		slog.Error(ErrDeleteCollection.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrDeleteCollection.Error(),
		})
		return
	}

	if err := h.store.DeleteCollection(c.Request.Context(), collection.ID); err != nil {
		slog.Error(ErrDeleteCollection.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrDeleteCollection.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}

func (h *Handler) collectionByParam(c *gin.Context, opErr error) (*model.Collection, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return nil, false
	}

	collection, err := h.store.GetCollection(c.Request.Context(), id)
	if err != nil {
		slog.Error(opErr.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: opErr.Error(),
		})
		return nil, false
	}
	if collection == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
			Msg: "collection not found",
		})
		return nil, false
	}
	return collection, true
}
