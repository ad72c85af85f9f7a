// Package upload receives image file parts from multipart requests, drops the
// ones whose declared type is not an accepted image type, and writes the rest
// to the image directory under collision-free names.
//
// Files are written before the caller touches any record and are never
// removed afterwards, even when the record save that follows fails.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/profile-service/config"
	"github.com/duynhne/profile-service/middleware"
)

// ErrWriteFile wraps failures to persist an accepted file.
var ErrWriteFile = errors.New("write uploaded file")

// Decision is the outcome of classifying a declared MIME type.
type Decision int

const (
	Accept Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

var acceptedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// Rejection reasons reported in logs and metrics.
const (
	reasonType    = "mime_type"
	reasonContent = "content_mismatch"
)

// ClassifyUpload decides whether a part with the given declared Content-Type is kept.
// The header must equal an accepted type exactly: no parameters, lower case.
func ClassifyUpload(mimeType string) Decision {
	if _, ok := acceptedTypes[mimeType]; ok {
		return Accept
	}
	return Reject
}

// DestinationPath returns the directory uploaded files are written to.
func DestinationPath(cfg config.UploadConfig) string {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = config.DefaultUploadDir
	}
	return filepath.Clean(dir)
}

// StoredName composes the on-disk name: a unique token, a hyphen, then the
// base name of the client's filename.
func StoredName(token, original string) string {
	return token + "-" + baseName(original)
}

func baseName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

// Store writes accepted uploads into a single directory.
type Store struct {
	dir           string
	verifyContent bool
	logger        *zap.Logger
	newToken      func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for rejection and write events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenFunc replaces the unique-token generator.
func WithTokenFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newToken = fn
		}
	}
}

// NewStore creates the destination directory if needed and returns a Store writing into it.
func NewStore(cfg config.UploadConfig, opts ...Option) (*Store, error) {
	s := &Store{
		dir:           DestinationPath(cfg),
		verifyContent: cfg.VerifyContent,
		logger:        zap.NewNop(),
		newToken:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory %q: %w", s.dir, err)
	}
	return s, nil
}

// Dir returns the destination directory.
func (s *Store) Dir() string {
	return s.dir
}

// SaveSingle stores one file part. accepted is false when the part was dropped
// by the type filter; no error is returned in that case.
func (s *Store) SaveSingle(ctx context.Context, field string, file *multipart.FileHeader) (name string, accepted bool, err error) {
	ctx, span := middleware.StartSpan(ctx, "upload.save_single", trace.WithAttributes(
		attribute.String("layer", "upload"),
		attribute.String("upload.field", field),
	))
	defer span.End()

	name, accepted, err = s.save(ctx, field, file)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Bool("upload.accepted", accepted))
	return name, accepted, err
}

// SaveMany stores file parts in the order received and returns the stored
// names of the accepted ones. The result is never nil. On a write failure the
// files stored so far stay on disk and the error is returned.
func (s *Store) SaveMany(ctx context.Context, field string, files []*multipart.FileHeader) ([]string, error) {
	ctx, span := middleware.StartSpan(ctx, "upload.save_many", trace.WithAttributes(
		attribute.String("layer", "upload"),
		attribute.String("upload.field", field),
		attribute.Int("upload.received", len(files)),
	))
	defer span.End()

	names := make([]string, 0, len(files))
	for _, file := range files {
		name, accepted, err := s.save(ctx, field, file)
		if err != nil {
			span.RecordError(err)
			return names, err
		}
		if accepted {
			names = append(names, name)
		}
	}

	span.SetAttributes(attribute.Int("upload.stored", len(names)))
	return names, nil
}

func (s *Store) save(ctx context.Context, field string, file *multipart.FileHeader) (string, bool, error) {
	declared := file.Header.Get("Content-Type")
	if ClassifyUpload(declared) == Reject {
		s.reject(ctx, field, file.Filename, declared, reasonType)
		return "", false, nil
	}

	src, err := file.Open()
	if err != nil {
		return "", false, fmt.Errorf("open upload %q: %w", file.Filename, err)
	}
	defer src.Close()

	if s.verifyContent {
		ok, err := matchesDeclared(src, declared)
		if err != nil {
			return "", false, fmt.Errorf("inspect upload %q: %w", file.Filename, err)
		}
		if !ok {
			s.reject(ctx, field, file.Filename, declared, reasonContent)
			return "", false, nil
		}
	}

	name := StoredName(s.newToken(), file.Filename)
	path := filepath.Join(s.dir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", false, fmt.Errorf("%w %q: %w", ErrWriteFile, name, err)
	}

	written, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		// a partial file is not a stored file
		_ = os.Remove(path)
		return "", false, fmt.Errorf("%w %q: %w", ErrWriteFile, name, err)
	}

	storedFiles.WithLabelValues(field).Inc()
	storedBytes.WithLabelValues(field).Add(float64(written))
	s.logger.Debug("Upload stored",
		zap.String("field", field),
		zap.String("filename", name),
		zap.Int64("bytes", written),
	)
	middleware.AddSpanEvent(ctx, "upload.stored", attribute.String("upload.filename", name))
	return name, true, nil
}

func (s *Store) reject(ctx context.Context, field, filename, declared, reason string) {
	rejectedFiles.WithLabelValues(field, reason).Inc()
	s.logger.Info("Upload dropped",
		zap.String("field", field),
		zap.String("filename", filename),
		zap.String("content_type", declared),
		zap.String("reason", reason),
	)
	middleware.AddSpanEvent(ctx, "upload.rejected",
		attribute.String("upload.filename", filename),
		attribute.String("upload.reason", reason),
	)
}

// matchesDeclared sniffs the file header and rewinds the reader.
func matchesDeclared(src multipart.File, declared string) (bool, error) {
	detected, err := mimetype.DetectReader(src)
	if err != nil {
		return false, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return detected.Is(declared), nil
}
