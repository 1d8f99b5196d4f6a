package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	opUploadImage = "media.upload_image"
	opUploadBatch = "media.upload_batch"

	keyPrefix             = "media/"
	defaultMaxConcurrency = 4
	defaultMaxBytes       = 10 << 20
)

var (
	errMissingStore      = errors.New("media: blob store is required")
	errMissingIDProvider = errors.New("media: id provider is required")
	// ErrNotImage indicates that the upload is not an image.
	ErrNotImage = errors.New("media: file is not an image")
	// ErrTooLarge indicates that the upload exceeds the configured size limit.
	ErrTooLarge = errors.New("media: file exceeds size limit")
)

// File is one selected upload. Open is called once per upload attempt.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadFailure identifies a file of a batch that produced no URL.
type UploadFailure struct {
	Index int
	Name  string
	Err   error
}

// BatchResult holds the URLs of the successful uploads in selection order
// and one entry per failed file.
type BatchResult struct {
	URLs     []string
	Failures []UploadFailure
}

func (r BatchResult) FailedCount() int {
	return len(r.Failures)
}

type UploaderConfig struct {
	Store          BlobStore
	IDProvider     content.IDProvider
	Logger         *zap.Logger
	MaxConcurrency int
	MaxBytes       int64
}

// Uploader stores images under collision-resistant keys.
type Uploader struct {
	store          BlobStore
	idProvider     content.IDProvider
	logger         *zap.Logger
	maxConcurrency int
	maxBytes       int64
}

func NewUploader(cfg UploaderConfig) (*Uploader, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Uploader{
		store:          cfg.Store,
		idProvider:     cfg.IDProvider,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		maxBytes:       maxBytes,
	}, nil
}

// UploadImage stores file and returns its public URL. ok is false when the
// upload failed; the failure is logged.
func (u *Uploader) UploadImage(ctx context.Context, file File) (string, bool) {
	url, err := u.upload(ctx, file)
	if err != nil {
		u.logError(opUploadImage, err, zap.String("file_name", file.Name))
		return "", false
	}
	return url, true
}

// UploadBatch uploads files concurrently. A failed file never affects its
// siblings.
func (u *Uploader) UploadBatch(ctx context.Context, files []File) BatchResult {
	urls := make([]string, len(files))
	errs := make([]error, len(files))

	var group errgroup.Group
	group.SetLimit(u.maxConcurrency)
	for index, file := range files {
		group.Go(func() error {
			urls[index], errs[index] = u.upload(ctx, file)
			return nil
		})
	}
	_ = group.Wait()

	result := BatchResult{URLs: make([]string, 0, len(files))}
	for index, err := range errs {
		if err != nil {
			u.logError(opUploadBatch, err,
				zap.Int("index", index),
				zap.String("file_name", files[index].Name))
			result.Failures = append(result.Failures, UploadFailure{Index: index, Name: files[index].Name, Err: err})
			continue
		}
		result.URLs = append(result.URLs, urls[index])
	}
	return result
}

func (u *Uploader) upload(ctx context.Context, file File) (string, error) {
	if file.Open == nil {
		return "", fmt.Errorf("media: %s has no content", file.Name)
	}
	if file.Size > u.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, file.Size)
	}
	extension := strings.ToLower(filepath.Ext(file.Name))
	contentType := file.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(extension)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}

	token, err := u.idProvider.NewID()
	if err != nil {
		return "", fmt.Errorf("media: generate key: %w", err)
	}
	key := keyPrefix + token + extension

	body, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("media: open %s: %w", file.Name, err)
	}
	defer body.Close()

	capped := &cappedReader{reader: body, remaining: u.maxBytes}
	if err := u.store.Put(ctx, key, capped, contentType); err != nil {
		return "", fmt.Errorf("media: store %s: %w", key, err)
	}
	return u.store.PublicURL(key), nil
}

// cappedReader fails once more than remaining bytes have been read.
type cappedReader struct {
	reader    io.Reader
	remaining int64
}

func (r *cappedReader) Read(p []byte) (int, error) {
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.reader.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		return 0, ErrTooLarge
	}
	return n, err
}

func (u *Uploader) logError(operation string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", "upload_failed"),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	u.logger.Error("media upload error", attrs...)
}
