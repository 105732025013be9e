package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nimbus/internal/app"
	"nimbus/internal/transport/http/response"
)

type DocumentHandler struct {
	docService *app.DocumentService
}

type ToggleEnableRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type SplitRequest struct {
	Strategy       string `json:"strategy"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
	EmbeddingModel string `json:"embedding_model"`
}

type EmbedRequest struct {
	EmbeddingModel string `json:"embedding_model"`
}

func NewDocumentHandler(docService *app.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open uploaded file failed")
		return
	}
	defer src.Close()

	doc, err := h.docService.Upload(c.Request.Context(), username, fileHeader.Filename, fileHeader.Size, src)
	if err != nil {
		h.writeDocumentError(c, err, "upload failed")
		return
	}

	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.docService.List(username)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) ToggleEnable(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ToggleEnableRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.docService.SetEnabled(c.Param("filename"), username, *req.Enabled); err != nil {
		h.writeDocumentError(c, err, "toggle enable failed")
		return
	}
	response.OK(c, gin.H{"enabled": *req.Enabled})
}

func (h *DocumentHandler) Parse(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	doc, err := h.docService.Parse(c.Request.Context(), c.Param("filename"), username)
	if err != nil {
		h.writeDocumentError(c, err, "parse failed")
		return
	}
	response.OK(c, gin.H{
		"filename":       doc.Filename,
		"parser":         doc.ParserName,
		"parsing_status": doc.ParsingStatus,
		"chars":          len(doc.ParsedText),
	})
}

func (h *DocumentHandler) Split(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	chunks, err := h.docService.Split(c.Request.Context(), c.Param("filename"), username, app.SplitInput{
		Strategy:       req.Strategy,
		ChunkSize:      req.ChunkSize,
		ChunkOverlap:   req.ChunkOverlap,
		EmbeddingModel: req.EmbeddingModel,
	})
	if err != nil {
		h.writeDocumentError(c, err, "split failed")
		return
	}
	response.OK(c, gin.H{"chunks": chunks, "count": len(chunks)})
}

func (h *DocumentHandler) Preview(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chunks, err := h.docService.Preview(c.Param("filename"), username)
	if err != nil {
		h.writeDocumentError(c, err, "preview failed")
		return
	}
	response.OK(c, gin.H{"chunks": chunks, "count": len(chunks)})
}

func (h *DocumentHandler) Embed(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	count, err := h.docService.Embed(c.Request.Context(), c.Param("filename"), username, req.EmbeddingModel)
	if err != nil {
		h.writeDocumentError(c, err, "embed failed")
		return
	}
	response.OK(c, gin.H{"embedded_chunks": count})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	filename := c.Param("filename")
	if err := h.docService.Delete(c.Request.Context(), filename, username); err != nil {
		h.writeDocumentError(c, err, "delete failed")
		return
	}
	response.OK(c, gin.H{"deleted": filename})
}

func (h *DocumentHandler) writeDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrFileTooLarge),
		errors.Is(err, app.ErrNotParsed),
		errors.Is(err, app.ErrNoSplits),
		errors.Is(err, app.ErrUnknownStrategy):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedType, err.Error())
	case errors.Is(err, app.ErrDocumentExists):
		response.Error(c, http.StatusConflict, response.CodeDocumentExists, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound), errors.Is(err, app.ErrNotOwner):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
