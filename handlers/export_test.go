package handlers_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stockmeta/handlers"
	"github.com/yourusername/stockmeta/models"
	"github.com/yourusername/stockmeta/services"
)

var sunsetFields = map[string]string{
	"title":       "Sunset",
	"description": "A scenic sunset",
	"keywords":    `["sunset","sky","nature"]`,
}

func TestEmbedJPEG(t *testing.T) {
	repo := new(MockExportRepository)
	repo.On("Create", mock.MatchedBy(func(r *models.ExportRecord) bool {
		return r.ClientID == "lightroom" && r.Policy == "embed" && r.KeywordCount == 3 &&
			r.Title != nil && *r.Title == "Sunset" && r.StoredURL == nil
	})).Return(nil).Once()

	src := jpegBytes(t)
	body, ct := multipartBody(t, sunsetFields, formFile{"image", "My Shot.JPG", src})
	resp, err := newTestApp(repo, nil).Test(authedRequest(t, "POST", "/api/embed", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := readBody(t, resp)
	assert.Equal(t, "embed", resp.Header.Get("X-Output-Policy"))
	assert.Empty(t, resp.Header.Get("X-Sidecar-Filename"))
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "My_Shot.jpg")
	assert.Equal(t, services.EmbedMetadataIntoJPEG(src, models.ImageMetadata{
		Title: "Sunset", Description: "A scenic sunset", Keywords: []string{"sunset", "sky", "nature"},
	}, fixedNow), out)
	repo.AssertExpectations(t)
}

func TestEmbedPNGUsesSidecarPolicy(t *testing.T) {
	src := pngBytes(t)
	body, ct := multipartBody(t, sunsetFields, formFile{"image", "logo.png", src})
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/embed", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "sidecar", resp.Header.Get("X-Output-Policy"))
	assert.Equal(t, "logo.xmp", resp.Header.Get("X-Sidecar-Filename"))
	assert.Equal(t, src, readBody(t, resp))
}

func TestEmbedPNGWithoutMetadataNamesNoSidecar(t *testing.T) {
	src := pngBytes(t)
	body, ct := multipartBody(t, map[string]string{"author": "Only Author"}, formFile{"image", "logo.png", src})
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/embed", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "sidecar", resp.Header.Get("X-Output-Policy"))
	assert.Empty(t, resp.Header.Get("X-Sidecar-Filename"))
	assert.Equal(t, src, readBody(t, resp))
}

func TestEmbedStoresOutputs(t *testing.T) {
	dir := t.TempDir()
	body, ct := multipartBody(t, map[string]string{"title": "Stored", "store": "true"}, formFile{"image", "logo.png", pngBytes(t)})
	resp, err := newTestApp(nil, services.NewLocalStorage(dir)).Test(authedRequest(t, "POST", "/api/embed", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	url := resp.Header.Get("X-Stored-URL")
	assert.True(t, strings.HasPrefix(url, "/exports/lightroom/"), url)
	assert.True(t, strings.HasSuffix(url, "/logo.png"), url)
}

func TestEmbedStoreWithoutStorage(t *testing.T) {
	body, ct := multipartBody(t, map[string]string{"title": "x", "store": "1"}, formFile{"image", "a.jpg", jpegBytes(t)})
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/embed", body, ct), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestEmbedRejections(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  []formFile
		auth   bool
		status int
	}{
		{"no token", sunsetFields, []formFile{{"image", "a.jpg", jpegBytes(t)}}, false, http.StatusUnauthorized},
		{"no file", sunsetFields, nil, true, http.StatusBadRequest},
		{"extension mismatch", sunsetFields, []formFile{{"image", "a.png", jpegBytes(t)}}, true, http.StatusBadRequest},
		{"not an image", sunsetFields, []formFile{{"image", "a.jpg", []byte("hello")}}, true, http.StatusBadRequest},
		{"title too long", map[string]string{"title": strings.Repeat("t", 201)}, []formFile{{"image", "a.jpg", jpegBytes(t)}}, true, http.StatusBadRequest},
		{"keyword too long", map[string]string{"keywords": strings.Repeat("k", 101)}, []formFile{{"image", "a.jpg", jpegBytes(t)}}, true, http.StatusBadRequest},
		{"bad keyword json", map[string]string{"keywords": `["a",`}, []formFile{{"image", "a.jpg", jpegBytes(t)}}, true, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, tt.files...)
			req := authedRequest(t, "POST", "/api/embed", body, ct)
			if !tt.auth {
				req.Header.Del("Authorization")
			}
			resp, err := newTestApp(nil, nil).Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var payload map[string]string
			require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestSidecar(t *testing.T) {
	body, ct := multipartBody(t, map[string]string{
		"filename":    "scan.tiff",
		"title":       "Scan",
		"keywords":    "paper; texture, grain",
		"description": "",
	})
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/sidecar", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "application/rdf+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "scan.xmp")
	want := services.GenerateXMPContent(models.ImageMetadata{Title: "Scan", Keywords: []string{"paper", "texture", "grain"}}, fixedNow)
	assert.Equal(t, want, string(readBody(t, resp)))
}

func TestSidecarRequiresContentAndName(t *testing.T) {
	body, ct := multipartBody(t, map[string]string{"filename": "a.png", "author": "Only"})
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/sidecar", body, ct), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body, ct = multipartBody(t, map[string]string{"title": "x"})
	resp, err = newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/sidecar", body, ct), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConvert(t *testing.T) {
	body, ct := multipartBody(t, sunsetFields, formFile{"image", "logo.png", pngBytes(t)})
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/convert", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := readBody(t, resp)
	assert.True(t, services.IsJPEG(out))
	assert.Equal(t, "embed", resp.Header.Get("X-Output-Policy"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "logo.jpg")
	assert.Contains(t, string(services.ExtractXMPXML(out)), "Sunset")
}

func TestBatch(t *testing.T) {
	manifest := `{"a.jpg": {"title": "First"}, "*": {"title": "Default", "keywords": ["x"]}}`
	body, ct := multipartBody(t, map[string]string{"manifest": manifest},
		formFile{"images", "a.jpg", jpegBytes(t)},
		formFile{"images", "b.png", pngBytes(t)},
	)
	repo := new(MockExportRepository)
	repo.On("Create", mock.Anything).Return(errors.New("db down")).Twice()

	resp, err := newTestApp(repo, nil).Test(authedRequest(t, "POST", "/api/batch", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "stockmeta-20240501-123000.zip")

	data := readBody(t, resp)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.jpg", "b.png", "b.xmp"}, names)
	repo.AssertExpectations(t)
}

func TestBatchRecordsArchiveNames(t *testing.T) {
	body, ct := multipartBody(t, map[string]string{"manifest": `{"*": {"title": "Beach"}}`},
		formFile{"images", "beach.jpg", jpegBytes(t)},
		formFile{"images", "beach.jpg", jpegBytes(t)},
	)
	repo := new(MockExportRepository)
	for _, name := range []string{"beach.jpg", "beach (2).jpg"} {
		name := name
		repo.On("Create", mock.MatchedBy(func(r *models.ExportRecord) bool {
			return r.SourceFilename == "beach.jpg" && r.OutputFilename == name && r.Policy == "embed"
		})).Return(nil).Once()
	}

	resp, err := newTestApp(repo, nil).Test(authedRequest(t, "POST", "/api/batch", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	repo.AssertExpectations(t)
}

func TestBatchLimits(t *testing.T) {
	files := make([]formFile, 4)
	for i := range files {
		files[i] = formFile{"images", "a.jpg", jpegBytes(t)}
	}
	body, ct := multipartBody(t, nil, files...)
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/batch", body, ct), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct = multipartBody(t, map[string]string{"manifest": `{"a.jpg": {"title": 5}}`}, formFile{"images", "a.jpg", jpegBytes(t)})
	resp, err = newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/batch", body, ct), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInspect(t *testing.T) {
	md := models.ImageMetadata{Title: "Inspect me", Description: "desc", Copyright: "CC0"}
	src := services.EmbedMetadataIntoJPEG(jpegBytes(t), md, fixedNow)
	body, ct := multipartBody(t, nil, formFile{"image", "shot.jpg", src})
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "POST", "/api/inspect", body, ct), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got handlers.InspectResponse
	require.NoError(t, json.Unmarshal(readBody(t, resp), &got))
	assert.Equal(t, "shot.jpg", got.Filename)
	assert.Equal(t, "embed", got.Policy)
	require.NotNil(t, got.Image)
	assert.Equal(t, 12, got.Image.Width)
	assert.Contains(t, got.XMP, "Inspect me")

	var kinds []string
	for _, s := range got.Segments {
		if s.Kind != "" {
			kinds = append(kinds, s.Kind)
		}
	}
	assert.Equal(t, []string{"exif", "xmp"}, kinds)

	var copyright string
	for _, tag := range got.Exif {
		if tag.TagID == services.TagCopyright {
			copyright = tag.Formatted
		}
	}
	assert.Equal(t, "CC0", copyright)
	assert.Contains(t, string(got.ExifValues), `"Copyright":"CC0"`)
}

func TestListExports(t *testing.T) {
	resp, err := newTestApp(nil, nil).Test(authedRequest(t, "GET", "/api/exports", nil, ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	repo := new(MockExportRepository)
	repo.On("ListByClient", "lightroom", 2, 20).Return([]models.ExportRecord{{ClientID: "lightroom", Policy: "embed"}}, 21, nil).Once()
	resp, err = newTestApp(repo, nil).Test(authedRequest(t, "GET", "/api/exports?page=2&limit=500", nil, ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list models.ExportListResponse
	require.NoError(t, json.Unmarshal(readBody(t, resp), &list))
	assert.Equal(t, 2, list.Page)
	assert.Equal(t, 21, list.Total)
	require.Len(t, list.Exports, 1)
	repo.AssertExpectations(t)

	failing := new(MockExportRepository)
	failing.On("ListByClient", "lightroom", 1, 20).Return([]models.ExportRecord(nil), 0, errors.New("boom"))
	resp, err = newTestApp(failing, nil).Test(authedRequest(t, "GET", "/api/exports", nil, ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"a, b ,c", []string{"a", "b", "c"}},
		{"a;b;;c", []string{"a", "b", "c"}},
		{`["x y", " z ", ""]`, []string{"x y", "z"}},
		{`[]`, []string{}},
	}
	for _, tt := range tests {
		got, err := handlers.ParseKeywords(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := handlers.ParseKeywords(`[1, 2]`)
	assert.ErrorIs(t, err, handlers.ErrInvalidMetadata)
}
