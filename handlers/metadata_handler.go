// Package handlers is made to handle requests
package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"metadata-injector/audio"
	"metadata-injector/config"
	"metadata-injector/errors"
	"metadata-injector/metadata"
	"metadata-injector/models"
	"metadata-injector/storage"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Version is reported by the health check
var Version = "1.0.0"

// ProcessedPrefix is prepended to the name of a downloaded file
const ProcessedPrefix = "processed_"

// uploadField is the multipart field holding the media file
const uploadField = "file"

var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".mkv":  "video/x-matroska",
	".mka":  "audio/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".asf":  "video/x-ms-asf",
	".wma":  "audio/x-ms-wma",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

// mimeType returns the content type served for a file name
func mimeType(name string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "application/octet-stream"
}

type MetadataHandler struct {
	cfg      config.Config
	registry *audio.Registry
	store    *storage.Store
	metrics  *Metrics
}

func NewMetadataHandler(cfg config.Config, registry *audio.Registry, store *storage.Store, metrics *Metrics) *MetadataHandler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &MetadataHandler{
		cfg:      cfg,
		registry: registry,
		store:    store,
		metrics:  metrics,
	}
}

// accepted returns the extensions the upload accepts, those that are both
// configured and have a tag writer
func (h *MetadataHandler) accepted() []string {
	var exts []string
	for _, ext := range h.cfg.AllowedExtensions {
		if h.registry.Supported(ext) {
			exts = append(exts, ext)
		}
	}
	return exts
}

// statusFor maps an error to the HTTP status it is reported with
func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.InvalidArgument, errors.UnsupportedFormat:
		return http.StatusBadRequest
	case errors.TagOpen:
		return http.StatusUnprocessableEntity
	case errors.UploadUnknown:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *MetadataHandler) fail(c *gin.Context, err error, message string) {
	status := statusFor(err)
	logger := zerolog.Ctx(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(message)
	} else {
		logger.Warn().Err(err).Msg(message)
	}

	resp := models.ErrorResponse{
		Success: false,
		Message: fmt.Sprintf("%s: %s", message, errors.Message(err)),
	}
	if kind := errors.KindOf(err); kind != errors.Other {
		resp.Kind = kind.String()
	}
	c.JSON(status, resp)
}

func fileInfo(name string, size int64) models.FileInfo {
	return models.FileInfo{
		Filename:  name,
		FileType:  mimeType(name),
		FileSize:  size,
		SizeMB:    fmt.Sprintf("%.2f MB", float64(size)/(1024*1024)),
		SizeHuman: humanize.IBytes(uint64(size)),
	}
}

func (h *MetadataHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Message: "Metadata injector API is running",
		Version: Version,
	})
}

func (h *MetadataHandler) Formats(c *gin.Context) {
	c.JSON(http.StatusOK, models.FormatsResponse{
		Success:    true,
		Extensions: h.accepted(),
	})
}

func (h *MetadataHandler) RandomMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, models.MetadataResponse{
		Success:  true,
		Metadata: metadata.Generate(),
	})
}

func (h *MetadataHandler) Pools(c *gin.Context) {
	c.JSON(http.StatusOK, models.PoolsResponse{
		Success:    true,
		Titles:     metadata.Titles(),
		Artists:    metadata.Artists(),
		Albums:     metadata.Albums(),
		Comments:   metadata.Comments(),
		Genres:     metadata.Genres(),
		Years:      models.Range{Min: metadata.MinYear, Max: metadata.MaxYear},
		Tracks:     models.Range{Min: metadata.MinTrack, Max: metadata.MaxTrack},
		TrackTotal: metadata.TrackTotal,
	})
}

// receive stores the uploaded file after checking its extension
func (h *MetadataHandler) receive(c *gin.Context) (*storage.Upload, error) {
	const op errors.Op = "handlers.receive"

	if err := c.Request.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		return nil, errors.E(op, errors.InvalidArgument, errors.Info(uploadField), err)
	}

	file, header, err := c.Request.FormFile(uploadField)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, errors.Info(uploadField), "a file is required")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !h.cfg.Allowed(ext) || !h.registry.Supported(ext) {
		msg := fmt.Sprintf("only %s files are accepted", strings.Join(h.accepted(), ", "))
		return nil, errors.E(op, errors.UnsupportedFormat, errors.Format(ext), msg)
	}

	up, err := h.store.Save(header.Filename, file)
	if err != nil {
		return nil, errors.E(op, err)
	}
	h.metrics.uploadBytes.Add(float64(up.Size))
	return up, nil
}

func (h *MetadataHandler) InjectMetadata(c *gin.Context) {
	ctx := c.Request.Context()

	up, err := h.receive(c)
	if err != nil {
		h.fail(c, err, "Failed to receive file")
		return
	}

	ext := strings.ToLower(filepath.Ext(up.Name))
	start := time.Now()
	ts, err := h.registry.Inject(ctx, up.Path)
	h.metrics.observeInject(ext, time.Since(start), err)
	if err != nil {
		if rerr := h.store.Remove(up.ID.String()); rerr != nil {
			zerolog.Ctx(ctx).Error().Err(rerr).Str("upload", up.ID.String()).Msg("failed to remove upload")
		}
		h.fail(c, err, "Failed to inject metadata")
		return
	}

	// the size changes with the new tags
	if after, err := h.store.Lookup(up.ID.String()); err == nil {
		up = after
	}

	zerolog.Ctx(ctx).Info().
		Str("upload", up.ID.String()).
		Str("file", up.Name).
		Str("title", ts.Title).
		Msg("injected metadata")

	c.JSON(http.StatusOK, models.InjectResponse{
		Success:     true,
		Message:     "Metadata injected successfully",
		ID:          up.ID.String(),
		Metadata:    ts,
		File:        fileInfo(up.Name, up.Size),
		DownloadURL: "/api/v1/metadata/download/" + up.ID.String(),
	})
}

func (h *MetadataHandler) Download(c *gin.Context) {
	f, up, err := h.store.Open(c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to find file")
		return
	}
	defer f.Close()

	name := ProcessedPrefix + up.Name
	c.DataFromReader(http.StatusOK, up.Size, mimeType(up.Name), f, map[string]string{
		"Content-Description":       "File Transfer",
		"Content-Transfer-Encoding": "binary",
		"Content-Disposition":       mime.FormatMediaType("attachment", map[string]string{"filename": name}),
	})
}

func (h *MetadataHandler) Delete(c *gin.Context) {
	if err := h.store.Remove(c.Param("id")); err != nil {
		h.fail(c, err, "Failed to remove file")
		return
	}
	c.JSON(http.StatusOK, models.DeleteResponse{
		Success: true,
		Message: "File removed",
	})
}

func (h *MetadataHandler) Inspect(c *gin.Context) {
	ctx := c.Request.Context()

	up, err := h.receive(c)
	if err != nil {
		h.fail(c, err, "Failed to receive file")
		return
	}
	defer func() {
		if err := h.store.Remove(up.ID.String()); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("upload", up.ID.String()).Msg("failed to remove upload")
		}
	}()

	rep, err := h.registry.Inspect(ctx, up.Path)
	if err != nil {
		h.fail(c, err, "Failed to inspect file")
		return
	}
	c.JSON(http.StatusOK, models.InspectResponse{
		Success: true,
		Report:  rep,
	})
}
