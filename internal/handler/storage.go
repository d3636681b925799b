package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"imghost/internal/logger"
	"imghost/internal/model"
	"imghost/internal/ratelimit"
	"imghost/internal/storage"
)

type StorageHandler struct {
	router         *storage.Router
	limiter        *ratelimit.Limiter
	tmpDir         string
	maxUploadBytes int64
}

func NewStorageHandler(router *storage.Router, limiter *ratelimit.Limiter, tmpDir string, maxUploadBytes int64) *StorageHandler {
	return &StorageHandler{
		router:         router,
		limiter:        limiter,
		tmpDir:         tmpDir,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *StorageHandler) R2Usage(c echo.Context) error {
	usage, err := h.router.GetR2Usage(c.Request().Context())
	if err != nil {
		return databaseError(c, "get r2 usage", err)
	}
	return c.JSON(http.StatusOK, usage)
}

func (h *StorageHandler) Status(c echo.Context) error {
	status, err := h.router.GetStorageStatus(c.Request().Context())
	if err != nil {
		return databaseError(c, "get storage status", err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *StorageHandler) Operations(c echo.Context) error {
	usage, err := h.limiter.GetUsageStats(c.Request().Context())
	if err != nil {
		return databaseError(c, "get operation usage", err)
	}
	return c.JSON(http.StatusOK, usage)
}

// RecentOperations lists the newest logged R2 operations.
func (h *StorageHandler) RecentOperations(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ops, err := h.limiter.RecentOperations(c.Request().Context(), limit)
	if err != nil {
		return databaseError(c, "list recent operations", err)
	}
	if ops == nil {
		ops = []model.R2Operation{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  ops,
		"total": len(ops),
	})
}

func (h *StorageHandler) CleanupOperations(c echo.Context) error {
	deleted, err := h.limiter.Cleanup(c.Request().Context())
	if err != nil {
		return databaseError(c, "cleanup operations", err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": deleted})
}

// Delete removes an object from one provider and then releases its bytes
// from the usage counters. The size and files query parameters describe what
// was freed; files defaults to 1.
func (h *StorageHandler) Delete(c echo.Context) error {
	provider := model.Provider(c.Param("provider"))
	if !provider.Valid() {
		return validationError(c, "provider", "must be r2 or s3")
	}

	key := strings.TrimLeft(c.Param("*"), "/")
	if err := ValidateObjectKey(key); err != nil {
		return badRequestError(c, err.Error())
	}

	size, err := queryInt64(c, "size", 0)
	if err != nil {
		return badRequestError(c, err.Error())
	}
	files, err := queryInt64(c, "files", 1)
	if err != nil {
		return badRequestError(c, err.Error())
	}

	ctx := c.Request().Context()
	if err := h.router.Delete(ctx, provider, key); err != nil {
		if errors.Is(err, storage.ErrBackendNotConfigured) {
			return unavailableError(c, fmt.Sprintf("%s backend is not configured", provider))
		}
		return storageError(c, "delete object", err)
	}

	if size > 0 || files > 0 {
		if err := h.router.ReduceUsage(ctx, provider, size, files); err != nil {
			return databaseError(c, "reduce usage", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider": provider,
		"key":      key,
		"deleted":  true,
	})
}

// Upload accepts a multipart form with a file, an optional key and a size_type.
// The file is spooled to the temp dir before being routed to a backend.
func (h *StorageHandler) Upload(c echo.Context) error {
	sizeType := model.SizeType(c.FormValue("size_type"))
	if !validSizeType(sizeType) {
		return validationError(c, "size_type", "must be one of thumb, medium, large, original")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return validationError(c, "file", "is required")
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes),
		})
	}

	key := strings.TrimLeft(c.FormValue("key"), "/")
	if key == "" {
		key = path.Join("images", string(sizeType), uuid.New().String()+strings.ToLower(path.Ext(fh.Filename)))
	}
	if err := ValidateObjectKey(key); err != nil {
		return badRequestError(c, err.Error())
	}

	contentType := fh.Header.Get(echo.HeaderContentType)

	src, err := fh.Open()
	if err != nil {
		return badRequestError(c, "Unreadable upload")
	}
	defer src.Close()

	tmpPath, err := h.spool(src)
	if err != nil {
		return internalError(c, "spool upload", err)
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil {
			logger.HTTP.Warn().Err(err).Str("path", tmpPath).Msg("failed to remove spooled upload")
		}
	}()

	result, err := h.router.Upload(c.Request().Context(), tmpPath, key, contentType, sizeType)
	if err != nil {
		return storageError(c, "upload object", err)
	}
	return createdResponse(c, result)
}

func (h *StorageHandler) spool(src io.Reader) (string, error) {
	f, err := os.CreateTemp(h.tmpDir, "upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func validSizeType(s model.SizeType) bool {
	for _, t := range model.SizeTypes {
		if s == t {
			return true
		}
	}
	return false
}
