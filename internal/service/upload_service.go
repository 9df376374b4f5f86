package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// PhotoUploader validates and stores student ID photos.
type PhotoUploader interface {
	Upload(ctx context.Context, file *multipart.FileHeader, idNumber string) (string, error)
}

type photoUploader struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewPhotoUploader constructs a photo uploader. A nil storage rejects every upload.
func NewPhotoUploader(storage FileStorage, maxSizeMB int, logger zerolog.Logger) PhotoUploader {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &photoUploader{
		storage: storage,
		logger:  logger.With().Str("component", "photo_uploader").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/upload"),
	}
}

func (u *photoUploader) Upload(ctx context.Context, file *multipart.FileHeader, idNumber string) (string, error) {
	ctx, span := u.tracer.Start(ctx, "photo.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("upload.max_bytes", u.maxSize))

	if u.storage == nil {
		span.SetStatus(codes.Error, "storage disabled")
		return "", ErrStorageUnavailable
	}

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return "", err
	}

	if file.Size > u.maxSize {
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return "", ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return "", err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, u.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return "", err
	}
	if int64(buf.Len()) > u.maxSize {
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return "", ErrUploadTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))
	if !isAllowedPhotoType(detected) {
		span.RecordError(ErrUploadTypeNotAllowed)
		span.SetStatus(codes.Error, "type not allowed")
		return "", ErrUploadTypeNotAllowed
	}

	name := photoFileName(idNumber, detected.Extension())
	url, err := u.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return "", fmt.Errorf("store photo: %w", err)
	}

	u.logger.Info().Str("id_number", idNumber).Int("size_bytes", buf.Len()).Msg("student photo stored")
	span.SetStatus(codes.Ok, "stored")
	return url, nil
}

func isAllowedPhotoType(detected *mimetype.MIME) bool {
	for _, allowed := range []string{"image/jpeg", "image/png", "image/webp"} {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func photoFileName(idNumber, ext string) string {
	base := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, strings.TrimSpace(idNumber))
	base = strings.Trim(base, "-")
	if base == "" {
		base = "student"
	}
	if ext == "" {
		ext = ".img"
	}
	return "student-" + strings.ToLower(base) + ext
}
