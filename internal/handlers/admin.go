package handlers

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

const (
	maxUploadSize   = 10 << 20 // 10MB
	maxImageWidth   = 800
	maxSourceSide   = 6000 // px, checked before decoding
	uploadURLPrefix = "/static/uploads/"
)

var (
	errUnsupportedImage = errors.New("unsupported image format")
	errImageTooLarge    = errors.New("image dimensions too large")
)

type AdminHandler struct {
	*Base
	Store     *store.Store
	UploadDir string
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.AdminDashboard(r.Context())
	if err != nil {
		h.serverError(w, "Error fetching stats", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin.html", map[string]any{
		"Stats": stats,
	})
}

// saveImage decodes an uploaded PNG or JPEG, scales it down to at most
// 800px wide and stores it as JPEG under a random name. It returns the
// public URL of the stored file.
func (h *AdminHandler) saveImage(file multipart.File, header *multipart.FileHeader) (string, error) {
	var (
		decodeConfig func(io.Reader) (image.Config, error)
		decode       func(io.Reader) (image.Image, error)
	)
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".png":
		decodeConfig, decode = png.DecodeConfig, png.Decode
	case ".jpg", ".jpeg":
		decodeConfig, decode = jpeg.DecodeConfig, jpeg.Decode
	default:
		return "", errUnsupportedImage
	}

	// The header alone can claim dimensions that would exhaust memory.
	cfg, err := decodeConfig(file)
	if err != nil {
		return "", fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxSourceSide || cfg.Height > maxSourceSide {
		return "", fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	img, err := decode(file)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Dx() > maxImageWidth {
		img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	filename := fmt.Sprintf("%s.jpg", uuid.New().String())
	path := filepath.Join(h.UploadDir, filename)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}

	err = jpeg.Encode(out, img, &jpeg.Options{Quality: 80})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("Failed to remove partial image", "file", filename, "error", rmErr)
		}
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return uploadURLPrefix + filename, nil
}

// removeImage deletes a previously uploaded file; seeded or external images
// are left alone.
func (h *AdminHandler) removeImage(url string) {
	if !strings.HasPrefix(url, uploadURLPrefix) {
		return
	}
	name := filepath.Base(url)
	if err := os.Remove(filepath.Join(h.UploadDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove old image", "file", name, "error", err)
	}
}
