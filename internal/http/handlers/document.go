package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/http/response"
	"github.com/yungbote/lumen-backend/internal/modules/ingestion"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type DocumentService interface {
	Upload(ctx context.Context, ownerID uuid.UUID, in ingestion.UploadInput) (*types.SourceDocument, error)
	Register(ctx context.Context, ownerID uuid.UUID, in ingestion.RegisterInput) (*types.SourceDocument, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*types.SourceDocument, error)
	SignedURL(ctx context.Context, ownerID, id uuid.UUID) (string, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	RequestExtract(ctx context.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error)
	Retry(ctx context.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error)
	EmbedForOwner(ctx context.Context, ownerID, id uuid.UUID) (*ingestion.EmbedResult, error)
}

type DocumentHandler struct {
	log       *logger.Logger
	documents DocumentService
	maxBytes  int64
}

func NewDocumentHandler(log *logger.Logger, documents DocumentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{
		log:       log.With("handler", "DocumentHandler"),
		documents: documents,
		maxBytes:  maxBytes,
	}
}

// declaredTypeFor prefers the explicit form value and falls back to the file
// extension.
func declaredTypeFor(explicit, filename string) types.DeclaredType {
	if t := types.DeclaredType(strings.ToLower(strings.TrimSpace(explicit))); t != "" {
		return t
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return types.TypePDF
	case ".docx":
		return types.TypeDOCX
	case ".txt", ".md", ".text":
		return types.TypePlainText
	}
	return ""
}

// Upload accepts multipart field "file" plus optional "declared_type".
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	defer f.Close()

	doc, err := h.documents.Upload(c.Request.Context(), userID, ingestion.UploadInput{
		Filename:     filepath.Base(fh.Filename),
		DeclaredType: declaredTypeFor(c.PostForm("declared_type"), fh.Filename),
		SizeBytes:    fh.Size,
		Body:         f,
	})
	if err != nil {
		h.log.Warn("Upload failed", "error", err, "user_id", userID)
		response.RespondErr(c, "upload_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

func (h *DocumentHandler) Register(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ingestion.RegisterInput
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documents.Register(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondErr(c, "register_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	docs, err := h.documents.List(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("List documents failed", "error", err, "user_id", userID)
		response.RespondErr(c, "load_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "load_document_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

func (h *DocumentHandler) SignedURL(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	url, err := h.documents.SignedURL(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "signed_url_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"url": url})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), userID, id); err != nil {
		response.RespondErr(c, "delete_document_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Extract(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	doc, err := h.documents.RequestExtract(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "extract_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

func (h *DocumentHandler) Retry(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	doc, err := h.documents.Retry(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "retry_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

type embedChunksRequest struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func (h *DocumentHandler) EmbedChunks(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req embedChunksRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.DocumentID == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", errors.New("document_id is required"))
		return
	}
	res, err := h.documents.EmbedForOwner(c.Request.Context(), userID, req.DocumentID)
	if err != nil {
		response.RespondErr(c, "embed_failed", err)
		return
	}
	response.RespondOK(c, res)
}
