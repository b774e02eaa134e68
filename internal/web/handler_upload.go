package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/filestore"
	"github.com/vbonduro/homeinv/internal/validate"
)

const maxPhotoSize = 50 * 1024 * 1024 // 50 MB

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniffing standard (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// readImage pulls the "image" field out of a multipart form and checks its
// format.
func (s *Server) readImage(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		return nil, "", validate.FieldError("image", "failed to parse form")
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, "", validate.FieldError("image", "image file required")
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	mimeType, ok := allowedImageMIME(data)
	if !ok {
		return nil, "", validate.FieldError("image", "unsupported image format")
	}
	return data, mimeType, nil
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := s.readImage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.service.UploadPhoto(r.Context(), pathID(r), data, mimeType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshSession(r, domain.EntityItem)
	writeJSON(w, http.StatusOK, item)
}

// handleCapture lists the items the vision backend sees in a photo. Nothing
// is stored; the drafts are for the caller to confirm and create.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := s.readImage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	drafts, err := s.service.Capture(r.Context(), data, mimeType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if s.files == nil || key == "" {
		http.NotFound(w, r)
		return
	}
	reader, mimeType, err := s.files.Open(r.Context(), key)
	if err != nil {
		if !errors.Is(err, filestore.ErrNotFound) {
			s.logger.Warn("open file failed", "key", key, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(reader, "file reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write file failed", "key", key, "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
