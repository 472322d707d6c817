package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"drive/internal/server/service"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains the HTTP handlers for the drive API.
type Handler struct {
	svc    *service.HierarchyService
	usage  *service.UsageReporter
	health HealthChecker
}

// NewHandler creates a new handler. health may be nil when there is nothing to ping.
func NewHandler(svc *service.HierarchyService, usage *service.UsageReporter, health HealthChecker) *Handler {
	return &Handler{svc: svc, usage: usage, health: health}
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

type renameFolderRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	ItemID        string  `json:"item_id"`
	ItemType      string  `json:"item_type"`
	DestinationID *string `json:"destination_id"`
}

// HandleListRoot handles GET /api/folders.
func (h *Handler) HandleListRoot(c echo.Context) error {
	return h.list(c, nil)
}

// HandleListFolder handles GET /api/folders/:id.
func (h *Handler) HandleListFolder(c echo.Context) error {
	id := c.Param("id")
	return h.list(c, &id)
}

func (h *Handler) list(c echo.Context, folderID *string) error {
	listing, err := h.svc.ListFolder(c.Request().Context(), ownerID(c), folderID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, listing)
}

// HandleCreateFolder handles POST /api/folders.
func (h *Handler) HandleCreateFolder(c echo.Context) error {
	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	folder, err := h.svc.CreateFolder(c.Request().Context(), ownerID(c), req.Name, req.ParentID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, folder)
}

// HandleRenameFolder handles PATCH /api/folders/:id.
func (h *Handler) HandleRenameFolder(c echo.Context) error {
	var req renameFolderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	folder, err := h.svc.RenameFolder(c.Request().Context(), ownerID(c), c.Param("id"), req.Name)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, folder)
}

// HandleDeleteFolder handles DELETE /api/folders/:id.
func (h *Handler) HandleDeleteFolder(c echo.Context) error {
	return h.delete(c, service.ItemFolder)
}

// HandleDeleteFile handles DELETE /api/files/:id.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	return h.delete(c, service.ItemFile)
}

func (h *Handler) delete(c echo.Context, itemType service.ItemType) error {
	result, err := h.svc.DeleteItem(c.Request().Context(), ownerID(c), c.Param("id"), itemType)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleUpload handles POST /api/files.
// Accepts a multipart form with a "file" field and an optional "folder_id" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	var folderID *string
	if v := c.FormValue("folder_id"); v != "" {
		folderID = &v
	}

	file, err := h.svc.UploadFile(c.Request().Context(), ownerID(c), service.UploadRequest{
		Name:     fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  src,
		FolderID: folderID,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, file)
}

// HandleDownload handles GET /api/files/:id/download.
func (h *Handler) HandleDownload(c echo.Context) error {
	file, rc, err := h.svc.OpenFile(c.Request().Context(), ownerID(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer rc.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(file.Name)))
	res.Header().Set(echo.HeaderContentLength, fmt.Sprint(file.Size))
	res.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	res.WriteHeader(http.StatusOK)
	if _, err := io.Copy(res, rc); err != nil {
		slog.Error("failed to stream file", "file_id", file.ID, "error", err)
	}
	return nil
}

// HandleMove handles POST /api/move.
func (h *Handler) HandleMove(c echo.Context) error {
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	itemType, err := service.ParseItemType(req.ItemType)
	if err != nil {
		return mapServiceError(c, err)
	}

	if err := h.svc.MoveItem(c.Request().Context(), ownerID(c), req.ItemID, itemType, req.DestinationID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "item moved"})
}

// HandleUsage handles GET /api/usage.
func (h *Handler) HandleUsage(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)

	summary, err := h.usage.Summary(ctx, owner)
	if err != nil {
		return mapServiceError(c, err)
	}
	overTime, err := h.usage.UsageOverTime(ctx, owner)
	if err != nil {
		return mapServiceError(c, err)
	}
	byCategory, err := h.usage.UsageByCategory(ctx, owner)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"summary":     summary,
		"used_human":  humanize.IBytes(uint64(summary.UsedBytes)),
		"limit_human": humanize.IBytes(uint64(summary.LimitBytes)),
		"over_time":   overTime,
		"by_category": byCategory,
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if h.health == nil {
		dbStatus = "in-memory"
	} else if err := h.health.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
// Missing and foreign items produce the same response.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrOwnershipViolation):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
	case errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidSize),
		errors.Is(err, service.ErrInvalidItemType),
		errors.Is(err, service.ErrSizeMismatch),
		errors.Is(err, service.ErrInvalidMove):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrQuotaExceeded):
		return c.JSON(http.StatusInsufficientStorage, echo.Map{"error": "storage quota exceeded"})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "concurrent modification, retry the request"})
	case service.IsIntegrityError(err):
		slog.Error("hierarchy integrity error", "path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	default:
		slog.Error("request failed", "path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
