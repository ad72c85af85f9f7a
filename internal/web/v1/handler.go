package v1

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/profile-service/internal/core/domain"
	logicv1 "github.com/duynhne/profile-service/internal/logic/v1"
	"github.com/duynhne/profile-service/internal/upload"
	"github.com/duynhne/profile-service/middleware"
)

// Multipart field names.
const (
	avatarField  = "avatar"
	galleryField = "images"
)

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	service *logicv1.UserService
	uploads *upload.Store
}

// NewUserHandler creates a new user handler
func NewUserHandler(service *logicv1.UserService, uploads *upload.Store) *UserHandler {
	return &UserHandler{
		service: service,
		uploads: uploads,
	}
}

func startRequestSpan(c *gin.Context) (context.Context, trace.Span) {
	return middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("route", c.FullPath()),
	))
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()
	zapLogger := middleware.GetLoggerFromGinContext(c)

	var req domain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		zapLogger.Warn("Invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeValidationError(err)})
		return
	}

	user, err := h.service.CreateUser(ctx, req)
	if err != nil {
		span.RecordError(err)

		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			zapLogger.Info("User rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, validationBody(verr))
			return
		}

		zapLogger.Error("Failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	zapLogger.Info("User created", zap.String("user_id", user.ID))
	c.JSON(http.StatusCreated, user)
}

// GetUser handles GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()
	zapLogger := middleware.GetLoggerFromGinContext(c)

	id := c.Param("id")
	span.SetAttributes(attribute.String("user.id", id))

	user, err := h.service.GetUser(ctx, id)
	if err != nil {
		if isNotFound(err) {
			zapLogger.Debug("User not found", zap.String("user_id", id))
			c.Status(http.StatusNotFound)
			return
		}
		span.RecordError(err)
		zapLogger.Error("Failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// UploadAvatar handles POST /users/:id/avatar (multipart field "avatar")
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()
	zapLogger := middleware.GetLoggerFromGinContext(c)

	id := c.Param("id")
	span.SetAttributes(attribute.String("user.id", id))

	// malformed ids cannot match a record; answer before writing anything
	if _, err := domain.ParseID(id); err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	file, err := c.FormFile(avatarField)
	if err != nil {
		zapLogger.Info("Avatar missing from request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file is required"})
		return
	}

	filename, accepted, err := h.uploads.SaveSingle(ctx, avatarField, file)
	if err != nil {
		span.RecordError(err)
		zapLogger.Error("Failed to store avatar", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}
	if !accepted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar must be a JPEG or PNG image"})
		return
	}

	user, err := h.service.SetAvatar(ctx, id, filename)
	if err != nil {
		h.saveFailed(c, span, zapLogger, err, []string{filename})
		return
	}

	zapLogger.Info("Avatar updated", zap.String("user_id", id), zap.String("avatar", filename))
	c.JSON(http.StatusOK, user)
}

// UploadGallery handles POST /users/:id/gallery (repeated multipart field "images").
// The stored gallery is replaced, not appended to.
func (h *UserHandler) UploadGallery(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()
	zapLogger := middleware.GetLoggerFromGinContext(c)

	id := c.Param("id")
	span.SetAttributes(attribute.String("user.id", id))

	if _, err := domain.ParseID(id); err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	// a body that is not multipart carries no images and clears the gallery
	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		zapLogger.Info("Invalid multipart body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart body"})
		return
	}
	var files []*multipart.FileHeader
	if form != nil {
		files = form.File[galleryField]
	}

	filenames, err := h.uploads.SaveMany(ctx, galleryField, files)
	if err != nil {
		span.RecordError(err)
		zapLogger.Error("Failed to store gallery images",
			zap.Error(err),
			zap.Strings("stored", filenames),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	user, err := h.service.SetGallery(ctx, id, filenames)
	if err != nil {
		h.saveFailed(c, span, zapLogger, err, filenames)
		return
	}

	zapLogger.Info("Gallery updated", zap.String("user_id", id), zap.Int("images", len(filenames)))
	c.JSON(http.StatusOK, user)
}

// saveFailed answers a record save that followed a successful upload. The
// written files are not removed.
func (h *UserHandler) saveFailed(c *gin.Context, span trace.Span, zapLogger *zap.Logger, err error, written []string) {
	if len(written) > 0 {
		zapLogger.Warn("Uploaded files left without a record",
			zap.Strings("files", written),
			zap.String("dir", h.uploads.Dir()),
			zap.Error(err),
		)
	}

	if isNotFound(err) {
		c.Status(http.StatusNotFound)
		return
	}

	span.RecordError(err)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, validationBody(verr))
		return
	}

	zapLogger.Error("Failed to save user", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeValidationError(err)})
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrInvalidID)
}

func validationBody(verr *domain.ValidationError) gin.H {
	return gin.H{
		"error":  "Validation failed",
		"fields": verr.Fields,
	}
}
