package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lumen-backend/internal/http/response"
	"github.com/yungbote/lumen-backend/internal/modules/retrieval"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type Searcher interface {
	Search(ctx context.Context, callerID uuid.UUID, q retrieval.Query) (*retrieval.Result, error)
}

type SearchHandler struct {
	log      *logger.Logger
	searcher Searcher
}

func NewSearchHandler(log *logger.Logger, searcher Searcher) *SearchHandler {
	return &SearchHandler{log: log.With("handler", "SearchHandler"), searcher: searcher}
}

func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var q retrieval.Query
	if !bindJSON(c, &q) {
		return
	}
	if q.Scope.Kind == "" {
		q.Scope.Kind = retrieval.ScopeUser
	}
	res, err := h.searcher.Search(c.Request.Context(), userID, q)
	if err != nil {
		response.RespondErr(c, "search_failed", err)
		return
	}
	response.RespondOK(c, res)
}
