package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"mathchat-backend/request"
	"mathchat-backend/response"
	"mathchat-backend/service/llm"
	"mathchat-backend/service/rag"
)

func (h *Handler) Chat(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	history := make([]rag.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, rag.Message{Role: m.Role, Content: m.Content})
	}

	answer, err := h.rag.Chat(c.Request.Context(), rag.Request{
		Question:           req.Question,
		Collection:         req.Collection,
		Provider:           llm.Provider(req.Provider),
		Temperature:        req.Temperature,
		TopK:               req.TopK,
		SystemPrompt:       req.SystemPrompt,
		CustomInstructions: req.CustomInstructions,
		History:            history,
	})
	if err != nil {
		status := chatErrorStatus(err)
		slog.Error(ErrChat.Error(), "err", err, "status", status)
		c.AbortWithStatusJSON(status, response.Response{
			Msg: err.Error(),
		})
		return
	}

	sources := make([]response.SourceResponse, 0, len(answer.Sources))
	for _, s := range answer.Sources {
		sources = append(sources, response.SourceResponse{
			Title:      s.Title,
			Filename:   s.Filename,
			ChunkIndex: s.ChunkIndex,
			Score:      s.Score,
			Content:    s.Content,
		})
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.ChatResponse{
			Answer:   answer.Text,
			Provider: string(answer.Provider),
			Sources:  sources,
		},
	})
}

// chatErrorStatus maps the orchestrator's error taxonomy onto HTTP status
// codes: caller mistakes are 400, the remaining unretryable failures
// (retrieval, exhausted failover) are upstream faults.
func chatErrorStatus(err error) int {
	var ve *rag.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	if rag.IsFatal(err) || errors.Is(err, llm.ErrNoProviderAvailable) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
