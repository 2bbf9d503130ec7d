package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(t.TempDir(), "", 1<<20, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestRender_PNGRoundTrip(t *testing.T) {
	r := newTestRenderer(t)
	data := pngBytes(t)

	ref, err := r.Render(context.Background(), data, "image/png")
	require.NoError(t, err)
	assert.Contains(t, string(ref), ".png")

	rc, err := r.Open(ref)
	require.NoError(t, err)
	defer rc.Close()

	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestRender_UnsupportedType(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(context.Background(), []byte("hello"), "text/plain")

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, "text/plain", ingestErr.MimeType)
}

func TestRender_CorruptImage(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(context.Background(), []byte("not really a png"), "image/png")

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, "undecodable image", ingestErr.Reason)
}

func TestRender_MismatchedFormat(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(context.Background(), pngBytes(t), "image/jpg; charset=binary")

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, MimeJPEG, ingestErr.MimeType)
}

func TestRender_TooLarge(t *testing.T) {
	r, err := NewRenderer(t.TempDir(), "", 8, zap.NewNop())
	require.NoError(t, err)

	_, err = r.Render(context.Background(), pngBytes(t), "image/png")

	var ingestErr *IngestionError
	assert.True(t, errors.As(err, &ingestErr))
}

func TestRender_Empty(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(context.Background(), nil, "image/png")

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, "empty upload", ingestErr.Reason)
}

func TestRender_BrokenPDF(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}
	r := newTestRenderer(t)

	_, err := r.Render(context.Background(), []byte("%PDF-1.4 garbage"), "application/pdf")

	var ingestErr *IngestionError
	assert.True(t, errors.As(err, &ingestErr))
}

func TestOpen_RejectsTraversal(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Open("../etc/passwd")
	assert.Error(t, err)
}

func TestDiscard_RemovesImage(t *testing.T) {
	r := newTestRenderer(t)

	ref, err := r.Render(context.Background(), pngBytes(t), MimePNG)
	require.NoError(t, err)

	require.NoError(t, r.Discard(ref))
	_, err = r.Open(ref)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	// Already gone
	assert.NoError(t, r.Discard(ref))
}

func TestDiscard_RejectsTraversal(t *testing.T) {
	r := newTestRenderer(t)

	assert.Error(t, r.Discard("../etc/passwd"))
	assert.Error(t, r.Discard(".."))
}
