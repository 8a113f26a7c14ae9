package handlers_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stockmeta/handlers"
	"github.com/yourusername/stockmeta/middleware"
	"github.com/yourusername/stockmeta/models"
	"github.com/yourusername/stockmeta/services"
)

const testSecret = "handler-test-secret"

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

type MockExportRepository struct {
	mock.Mock
}

var _ models.ExportRepositoryInterface = (*MockExportRepository)(nil)

func (m *MockExportRepository) Create(record *models.ExportRecord) error {
	args := m.Called(record)
	return args.Error(0)
}

func (m *MockExportRepository) ListByClient(clientID string, page, limit int) ([]models.ExportRecord, int, error) {
	args := m.Called(clientID, page, limit)
	return args.Get(0).([]models.ExportRecord), args.Int(1), args.Error(2)
}

func newTestApp(repo models.ExportRepositoryInterface, storage services.Storage) *fiber.App {
	h := handlers.NewExportHandler(repo, storage, services.EmbedConfig{JPEGQuality: 85, MaxUploadMB: 5, MaxBatch: 3}, nil).
		WithClock(func() time.Time { return fixedNow })
	app := fiber.New()
	api := app.Group("/api", middleware.Protected(testSecret))
	api.Post("/embed", h.Embed)
	api.Post("/sidecar", h.Sidecar)
	api.Post("/convert", h.Convert)
	api.Post("/batch", h.Batch)
	api.Post("/inspect", h.Inspect)
	api.Get("/exports", h.ListExports)
	return app
}

type formFile struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func authedRequest(t *testing.T, method, target string, body io.Reader, contentType string) *http.Request {
	t.Helper()
	token, err := middleware.GenerateToken(testSecret, "lightroom", "Lightroom plugin", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 90, B: 160, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(12, 8), nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(12, 8)))
	return buf.Bytes()
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b
}
