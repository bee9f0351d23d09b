package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abduss/swiftshare/internal/logger"
	"github.com/abduss/swiftshare/internal/transform"
)

// multipart framing allowance on top of the file itself
const formOverhead = 1 << 20

type transformer interface {
	Transform(ctx context.Context, kind, name string, src io.Reader, size int64) (transform.Output, error)
}

// HTTPConfig wires the share endpoints.
type HTTPConfig struct {
	Manager        *Manager
	Service        *Service
	Transformer    transformer
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// RegisterRoutes mounts share operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, cfg HTTPConfig) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	handler := &httpHandler{cfg: cfg}
	group.POST("/convert", handler.convertDirect)
	group.POST("/shares/convert", handler.convertShare)
	group.POST("/shares/compress", handler.compressShare)
	group.GET("/shares/:code", handler.preview)
	group.GET("/shares/:code/download", handler.download)
	group.GET("/shares/:code/link", handler.link)
}

type httpHandler struct {
	cfg HTTPConfig
}

type shareResponse struct {
	Code           string    `json:"code"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	OriginalSize   int64     `json:"original_size,omitempty"`
	CompressedSize int64     `json:"compressed_size,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type upload struct {
	name string
	size int64
	body io.ReadCloser
}

// readUpload extracts the "file" form field, enforcing the upload limit.
func (h *httpHandler) readUpload(c *gin.Context) (upload, bool) {
	if h.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+formOverhead)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return upload{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return upload{}, false
	}
	if h.cfg.MaxUploadBytes > 0 && fileHeader.Size > h.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return upload{}, false
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("open upload file: %w", err), "read upload")
		return upload{}, false
	}
	return upload{name: fileHeader.Filename, size: fileHeader.Size, body: f}, true
}

func (h *httpHandler) convertShare(c *gin.Context) {
	kind := c.PostForm("conversion_type")
	if kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversion_type is required"})
		return
	}
	h.createShare(c, kind)
}

func (h *httpHandler) compressShare(c *gin.Context) {
	h.createShare(c, transform.KindCompression)
}

func (h *httpHandler) createShare(c *gin.Context, kind string) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}
	defer up.body.Close()

	out, err := h.cfg.Transformer.Transform(c.Request.Context(), kind, up.name, up.body, up.size)
	if err != nil {
		h.writeError(c, err, "transform file")
		return
	}
	defer out.Body.Close()

	rec, err := h.cfg.Manager.Create(c.Request.Context(), CreateInput{
		Source:       out.Body,
		DisplayName:  out.DisplayName,
		OriginalName: up.name,
		Category:     kind,
		Size:         out.Size,
		SourceSize:   up.size,
	})
	if err != nil {
		h.writeError(c, err, "store file")
		return
	}

	resp := shareResponse{
		Code:      rec.Code,
		FileName:  rec.DisplayName,
		FileSize:  rec.SizeBytes,
		ExpiresAt: rec.ExpiresAt,
	}
	if kind == transform.KindCompression {
		resp.OriginalSize = rec.SourceSizeBytes
		resp.CompressedSize = rec.SizeBytes
	}
	c.JSON(http.StatusCreated, resp)
}

// convertDirect streams the converted file straight back without issuing a code.
func (h *httpHandler) convertDirect(c *gin.Context) {
	kind := c.PostForm("conversion_type")
	if kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversion_type is required"})
		return
	}
	up, ok := h.readUpload(c)
	if !ok {
		return
	}
	defer up.body.Close()

	out, err := h.cfg.Transformer.Transform(c.Request.Context(), kind, up.name, up.body, up.size)
	if err != nil {
		h.writeError(c, err, "transform file")
		return
	}
	defer out.Body.Close()

	c.DataFromReader(http.StatusOK, out.Size, "application/octet-stream", out.Body, map[string]string{
		"Content-Disposition": attachment(out.DisplayName),
	})
}

func (h *httpHandler) preview(c *gin.Context) {
	summary, err := h.cfg.Service.Peek(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err, "look up file")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) download(c *gin.Context) {
	reader, rec, err := h.cfg.Service.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err, "download file")
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", attachment(rec.DisplayName))
	c.Header("Content-Length", fmt.Sprintf("%d", rec.SizeBytes))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		logger.FromContext(c, h.cfg.Logger).Warn("download interrupted", zap.String("code", rec.Code), zap.Error(err))
	}
}

func (h *httpHandler) link(c *gin.Context) {
	ttl := DefaultLinkTTL
	if raw := c.Query("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
		ttl = parsed
	}

	link, err := h.cfg.Service.Link(c.Request.Context(), c.Param("code"), ttl)
	if err != nil {
		h.writeError(c, err, "create link")
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *httpHandler) writeError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, transform.ErrKindRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload"})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found or expired"})
	case errors.Is(err, ErrLinkUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "direct links are not available"})
	default:
		h.fail(c, err, action)
	}
}

func (h *httpHandler) fail(c *gin.Context, err error, action string) {
	logger.FromContext(c, h.cfg.Logger).Error(action, zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, ErrCodeSpaceExhausted) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": "failed to " + action})
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
