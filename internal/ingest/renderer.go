// Package ingest turns uploaded invoice documents into rendered images that
// the extraction service can read.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImageRef is an opaque reference to a rendered document image
type ImageRef string

// Supported upload content types
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimePDF  = "application/pdf"
)

// IngestionError reports an upload that could not be rendered
type IngestionError struct {
	MimeType string
	Reason   string
	Err      error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion failed (%s): %s: %v", e.MimeType, e.Reason, e.Err)
	}
	return fmt.Sprintf("ingestion failed (%s): %s", e.MimeType, e.Reason)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// Renderer stores uploads as images under a directory it owns.
// PDFs are rasterised to PNG using the first page only.
type Renderer struct {
	dir          string
	pdftoppmPath string
	maxBytes     int64
	logger       *zap.Logger
}

// NewRenderer creates a renderer writing into dir. If pdftoppmPath is empty, "pdftoppm" is used.
func NewRenderer(dir, pdftoppmPath string, maxBytes int64, logger *zap.Logger) (*Renderer, error) {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Renderer{
		dir:          dir,
		pdftoppmPath: pdftoppmPath,
		maxBytes:     maxBytes,
		logger:       logger,
	}, nil
}

// Render validates and stores an upload, returning a reference to the image
func (r *Renderer) Render(ctx context.Context, data []byte, mimeType string) (ImageRef, error) {
	mimeType = normalizeMime(mimeType)

	if len(data) == 0 {
		return "", &IngestionError{MimeType: mimeType, Reason: "empty upload"}
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return "", &IngestionError{MimeType: mimeType, Reason: fmt.Sprintf("upload exceeds %d bytes", r.maxBytes)}
	}

	switch mimeType {
	case MimePNG:
		return r.storeImage(data, mimeType, "png")
	case MimeJPEG:
		return r.storeImage(data, mimeType, "jpg")
	case MimePDF:
		return r.renderPDF(ctx, data)
	default:
		return "", &IngestionError{MimeType: mimeType, Reason: "unsupported content type"}
	}
}

// Open opens a previously rendered image
func (r *Renderer) Open(ref ImageRef) (io.ReadCloser, error) {
	path, err := r.path(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Discard removes a rendered image. A missing file is not an error.
func (r *Renderer) Discard(ref ImageRef) error {
	path, err := r.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	r.logger.Debug("discarded rendered image", zap.String("image_ref", string(ref)))
	return nil
}

func (r *Renderer) path(ref ImageRef) (string, error) {
	name := filepath.Base(string(ref))
	if name != string(ref) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid image reference %q", ref)
	}
	return filepath.Join(r.dir, name), nil
}

func (r *Renderer) storeImage(data []byte, mimeType, ext string) (ImageRef, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", &IngestionError{MimeType: mimeType, Reason: "undecodable image", Err: err}
	}
	if (ext == "png" && format != "png") || (ext == "jpg" && format != "jpeg") {
		return "", &IngestionError{MimeType: mimeType, Reason: fmt.Sprintf("content is %s", format)}
	}

	ref := ImageRef(uuid.New().String() + "." + ext)
	if err := os.WriteFile(filepath.Join(r.dir, string(ref)), data, 0o644); err != nil {
		return "", &IngestionError{MimeType: mimeType, Reason: "cannot store image", Err: err}
	}

	r.logger.Debug("stored uploaded image", zap.String("image_ref", string(ref)), zap.String("format", format))
	return ref, nil
}

// renderPDF runs pdftoppm -png -f 1 -l 1 -singlefile on the upload
func (r *Renderer) renderPDF(ctx context.Context, data []byte) (ImageRef, error) {
	tmp, err := os.MkdirTemp("", "invoice-pdf-*")
	if err != nil {
		return "", &IngestionError{MimeType: MimePDF, Reason: "cannot create work directory", Err: err}
	}
	defer os.RemoveAll(tmp)

	src := filepath.Join(tmp, "upload.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return "", &IngestionError{MimeType: MimePDF, Reason: "cannot write upload", Err: err}
	}

	id := uuid.New().String()
	outPrefix := filepath.Join(r.dir, id)

	cmd := exec.CommandContext(ctx, r.pdftoppmPath, "-png", "-f", "1", "-l", "1", "-singlefile", src, outPrefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &IngestionError{
			MimeType: MimePDF,
			Reason:   fmt.Sprintf("pdftoppm failed: %s", strings.TrimSpace(stderr.String())),
			Err:      err,
		}
	}

	ref := ImageRef(id + ".png")
	r.logger.Debug("rasterised pdf first page", zap.String("image_ref", string(ref)))
	return ref, nil
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "image/jpg" {
		return MimeJPEG
	}
	return mimeType
}
