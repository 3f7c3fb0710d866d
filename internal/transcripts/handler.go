package transcripts

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/ingest"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
)

// multipart framing on top of the file itself
const multipartOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches transcript routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transcripts", h.upload)
	rg.GET("/transcripts", h.list)
	rg.GET("/transcripts/:id", h.get)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit := h.Svc.maxBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge(c, limit)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", []map[string]string{
			{"field": "file", "issue": "required"},
		})
		return
	}
	if fileHeader.Size > limit {
		tooLarge(c, limit)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	t, err := h.Svc.Upload(c.Request.Context(), userID, fileHeader.Filename, c.PostForm("lens"), data)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnsupportedFormat):
			respond.Error(c, http.StatusBadRequest, "unsupported_format", "Only .txt, .vtt and .srt transcripts are supported", gin.H{
				"supportedFormats": ingest.SupportedFormats,
			})
		case errors.Is(err, ingest.ErrMalformedSubtitle), errors.Is(err, ingest.ErrEmptyTranscript):
			respond.Error(c, http.StatusUnprocessableEntity, "malformed_transcript", err.Error(), nil)
		case errors.Is(err, ErrTooLarge):
			tooLarge(c, limit)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store transcript", nil)
		}
		return
	}

	c.Set(middleware.TranscriptIDKey, t.ID)
	respond.JSON(c, http.StatusCreated, toResponse(t))
}

func tooLarge(c *gin.Context, limit int64) {
	respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "transcript exceeds the upload limit", gin.H{
		"maxBytes": limit,
	})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set(middleware.TranscriptIDKey, id)

	t, err := h.Svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	resp := toResponse(t)
	if include, _ := strconv.ParseBool(c.Query("includeText")); include {
		parsed, err := h.Svc.Load(c.Request.Context(), t)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to load transcript text", nil)
			return
		}
		resp.Text = parsed.Text
	}
	respond.OK(c, resp)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 50 {
		limit = 50
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	resp := make([]TranscriptResponse, 0, len(items))
	for _, t := range items {
		resp = append(resp, toResponse(t))
	}
	respond.OK(c, resp)
}

// writeLookupError maps repository errors to the error envelope.
func writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "transcript not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch transcript", nil)
	}
}
