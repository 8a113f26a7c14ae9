package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/yourusername/stockmeta/middleware"
	"github.com/yourusername/stockmeta/models"
	"github.com/yourusername/stockmeta/services"
	"go.uber.org/zap"
)

// ExportHandler serves the embedding endpoints. exportRepo and storage are
// optional; without them history and store=true are unavailable.
type ExportHandler struct {
	exportRepo    models.ExportRepositoryInterface
	storage       services.Storage
	cfg           services.EmbedConfig
	validator     *validator.Validate
	fileValidator *services.FileValidator
	log           *zap.Logger
	now           func() time.Time
}

func NewExportHandler(exportRepo models.ExportRepositoryInterface, storage services.Storage, cfg services.EmbedConfig, log *zap.Logger) *ExportHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 50
	}
	return &ExportHandler{
		exportRepo:    exportRepo,
		storage:       storage,
		cfg:           cfg,
		validator:     validator.New(),
		fileValidator: services.NewFileValidator(int64(cfg.MaxUploadMB) * 1024 * 1024),
		log:           log,
		now:           time.Now,
	}
}

// WithClock overrides the time stamped into XMP packets. For tests.
func (h *ExportHandler) WithClock(now func() time.Time) *ExportHandler {
	h.now = now
	return h
}

type upload struct {
	name string
	data []byte
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// readFile loads and validates one uploaded file. A non-empty message is the
// client-facing reason it was rejected.
func (h *ExportHandler) readFile(fh *multipart.FileHeader) (upload, string) {
	if fh.Size > h.fileValidator.MaxFileSize {
		return upload{}, fmt.Sprintf("File size %d exceeds maximum allowed size %d", fh.Size, h.fileValidator.MaxFileSize)
	}
	src, err := fh.Open()
	if err != nil {
		return upload{}, "Failed to open uploaded file"
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, h.fileValidator.MaxFileSize+1))
	if err != nil {
		return upload{}, "Failed to read uploaded file"
	}
	name := services.SafeFileName(fh.Filename)
	res, err := h.fileValidator.ValidateBytes(name, data)
	if err != nil {
		h.log.Error("file validation failed", zap.String("file", name), zap.Error(err))
		return upload{}, "Failed to validate uploaded file"
	}
	if !res.IsValid {
		return upload{}, res.ErrorMessage
	}
	return upload{name: name, data: data}, ""
}

// readRequest pulls the "image" file and the metadata fields out of a
// multipart request. On failure the error response has already been written.
func (h *ExportHandler) readRequest(c *fiber.Ctx) (upload, models.ImageMetadata, bool, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return upload{}, models.ImageMetadata{}, false, errorJSON(c, fiber.StatusBadRequest, "No image file provided")
	}
	up, msg := h.readFile(fh)
	if msg != "" {
		return upload{}, models.ImageMetadata{}, false, errorJSON(c, fiber.StatusBadRequest, msg)
	}
	md, err := metadataFromForm(c, h.validator)
	if err != nil {
		return upload{}, models.ImageMetadata{}, false, errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return up, md, true, nil
}

func wantsStore(c *fiber.Ctx) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(c.FormValue("store")))
	return v
}

// store saves each file under one export prefix and returns the URL of the first.
func (h *ExportHandler) store(c *fiber.Ctx, clientID string, files ...upload) (string, error) {
	if h.storage == nil {
		return "", errors.New("storage is not configured")
	}
	prefix := path.Join(clientID, uuid.New().String())
	var first string
	for i, f := range files {
		url, err := h.storage.Save(c.UserContext(), path.Join(prefix, f.name), bytes.NewReader(f.data), services.ContentTypeFor(f.name))
		if err != nil {
			return "", fmt.Errorf("failed to store %s: %w", f.name, err)
		}
		if i == 0 {
			first = url
		}
	}
	return first, nil
}

func (h *ExportHandler) record(clientID, source, output string, policy services.OutputPolicy, size int, storedURL string, md models.ImageMetadata) {
	if h.exportRepo == nil {
		return
	}
	rec := &models.ExportRecord{
		ClientID:       clientID,
		SourceFilename: source,
		OutputFilename: output,
		Policy:         policy.String(),
		OutputSize:     size,
		KeywordCount:   len(md.UsableKeywords()),
	}
	if storedURL != "" {
		rec.StoredURL = &storedURL
	}
	if md.Title != "" {
		title := md.Title
		rec.Title = &title
	}
	if err := h.exportRepo.Create(rec); err != nil {
		h.log.Warn("failed to record export", zap.String("client_id", clientID), zap.Error(err))
	}
}

func sendFile(c *fiber.Ctx, name string, data []byte) error {
	c.Attachment(name)
	c.Set(fiber.HeaderContentType, services.ContentTypeFor(name))
	return c.Send(data)
}

// Embed returns the uploaded image with metadata embedded when it is a JPEG,
// or untouched with X-Sidecar-Filename naming the .xmp to pair it with when
// there is metadata to write.
func (h *ExportHandler) Embed(c *fiber.Ctx) error {
	clientID := middleware.GetClientID(c)
	if clientID == "" {
		return errorJSON(c, fiber.StatusUnauthorized, "Authentication required")
	}
	up, md, ok, err := h.readRequest(c)
	if !ok {
		return err
	}

	exp := services.PrepareExport(up.data, md, up.name, h.now())
	c.Set("X-Output-Policy", exp.Policy.String())
	if len(exp.Sidecar) > 0 {
		c.Set("X-Sidecar-Filename", exp.SidecarName)
	}

	var storedURL string
	if wantsStore(c) {
		files := []upload{{name: exp.ImageName, data: exp.Image}}
		if len(exp.Sidecar) > 0 {
			files = append(files, upload{name: exp.SidecarName, data: exp.Sidecar})
		}
		if storedURL, err = h.store(c, clientID, files...); err != nil {
			h.log.Error("store failed", zap.String("client_id", clientID), zap.Error(err))
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to store export")
		}
		c.Set("X-Stored-URL", storedURL)
	}

	h.record(clientID, up.name, exp.ImageName, exp.Policy, len(exp.Image), storedURL, md)
	h.log.Debug("embedded metadata",
		zap.String("client_id", clientID),
		zap.String("file", up.name),
		zap.Stringer("policy", exp.Policy),
		zap.Int("in", len(up.data)),
		zap.Int("out", len(exp.Image)))
	return sendFile(c, exp.ImageName, exp.Image)
}

// Sidecar renders the .xmp document for an image. The image itself is
// optional; a "filename" field is enough to name the sidecar.
func (h *ExportHandler) Sidecar(c *fiber.Ctx) error {
	clientID := middleware.GetClientID(c)
	if clientID == "" {
		return errorJSON(c, fiber.StatusUnauthorized, "Authentication required")
	}
	name := services.SafeFileName(c.FormValue("filename"))
	if fh, err := c.FormFile("image"); err == nil {
		name = services.SafeFileName(fh.Filename)
	} else if strings.TrimSpace(c.FormValue("filename")) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Provide an image or a filename")
	}
	md, err := metadataFromForm(c, h.validator)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if !md.HasContent() {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "No title, description or keywords to write")
	}

	doc := []byte(services.GenerateXMPContent(md, h.now()))
	xmpName := services.GetXMPFilename(name)
	h.record(clientID, name, xmpName, services.PolicySidecarXMP, len(doc), "", md)
	return sendFile(c, xmpName, doc)
}

// Convert re-encodes any supported raster as a JPEG carrying the metadata.
func (h *ExportHandler) Convert(c *fiber.Ctx) error {
	clientID := middleware.GetClientID(c)
	if clientID == "" {
		return errorJSON(c, fiber.StatusUnauthorized, "Authentication required")
	}
	up, md, ok, err := h.readRequest(c)
	if !ok {
		return err
	}

	out, err := services.ConvertToJPEG(up.data, services.ConvertOptions{
		Quality:      h.cfg.JPEGQuality,
		MaxDimension: h.cfg.MaxDimension,
	}, md, h.now())
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedImage) {
			return errorJSON(c, fiber.StatusBadRequest, "Failed to decode image")
		}
		h.log.Error("convert failed", zap.String("file", up.name), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to convert image")
	}
	name := strings.TrimSuffix(up.name, path.Ext(up.name)) + ".jpg"
	c.Set("X-Output-Policy", services.PolicyEmbedJPEG.String())

	var storedURL string
	if wantsStore(c) {
		if storedURL, err = h.store(c, clientID, upload{name: name, data: out}); err != nil {
			h.log.Error("store failed", zap.String("client_id", clientID), zap.Error(err))
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to store export")
		}
		c.Set("X-Stored-URL", storedURL)
	}
	h.record(clientID, up.name, name, services.PolicyEmbedJPEG, len(out), storedURL, md)
	return sendFile(c, name, out)
}

// Batch processes every "images" file with its manifest entry and returns a zip.
func (h *ExportHandler) Batch(c *fiber.Ctx) error {
	clientID := middleware.GetClientID(c)
	if clientID == "" {
		return errorJSON(c, fiber.StatusUnauthorized, "Authentication required")
	}
	form, err := c.MultipartForm()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid multipart form")
	}
	files := form.File["images"]
	if len(files) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "No image files provided")
	}
	if len(files) > h.cfg.MaxBatch {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("Too many files: %d (max %d)", len(files), h.cfg.MaxBatch))
	}
	var manifestRaw string
	if v := form.Value["manifest"]; len(v) > 0 {
		manifestRaw = v[0]
	}
	manifest, err := parseManifest(manifestRaw, h.validator)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	items := make([]services.BatchItem, 0, len(files))
	for _, fh := range files {
		up, msg := h.readFile(fh)
		if msg != "" {
			return errorJSON(c, fiber.StatusBadRequest, fh.Filename+": "+msg)
		}
		md, ok := manifest[fh.Filename]
		if !ok {
			md = manifest["*"]
		}
		items = append(items, services.BatchItem{Filename: up.name, Data: up.data, Metadata: md})
	}

	renderedAt := h.now()
	archive, err := services.BuildBatchArchive(items, renderedAt)
	if err != nil {
		h.log.Error("batch archive failed", zap.Int("files", len(items)), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to build archive")
	}
	name := "stockmeta-" + renderedAt.UTC().Format("20060102-150405") + ".zip"

	if wantsStore(c) {
		storedURL, err := h.store(c, clientID, upload{name: name, data: archive})
		if err != nil {
			h.log.Error("store failed", zap.String("client_id", clientID), zap.Error(err))
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to store export")
		}
		c.Set("X-Stored-URL", storedURL)
	}
	for i, name := range services.BatchNames(items) {
		it := items[i]
		h.record(clientID, it.Filename, name, services.PolicyFor(name), len(it.Data), "", it.Metadata)
	}
	return sendFile(c, name, archive)
}

// InspectResponse is what Inspect reports about an image.
type InspectResponse struct {
	Filename string                 `json:"filename"`
	Policy   string                 `json:"policy"`
	Image    *services.ImageMeta    `json:"image,omitempty"`
	Segments []services.SegmentInfo `json:"segments,omitempty"`
	Exif     []services.ExifTag     `json:"exif,omitempty"`
	// ExifValues maps tag names to formatted values.
	ExifValues json.RawMessage `json:"exif_values,omitempty"`
	XMP        string          `json:"xmp,omitempty"`
}

// Inspect reports dimensions, JPEG segments and any EXIF or XMP already present.
func (h *ExportHandler) Inspect(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "No image file provided")
	}
	up, msg := h.readFile(fh)
	if msg != "" {
		return errorJSON(c, fiber.StatusBadRequest, msg)
	}
	return c.JSON(BuildInspectResponse(up.name, up.data))
}

// BuildInspectResponse gathers everything Inspect reports. Parts that cannot
// be read are left empty.
func BuildInspectResponse(name string, data []byte) InspectResponse {
	resp := InspectResponse{Filename: name, Policy: services.PolicyFor(name).String()}
	if meta, err := services.Inspect(data); err == nil {
		resp.Image = &meta
	}
	if services.IsJPEG(data) {
		resp.Segments, _ = services.ListSegments(data)
		resp.Exif, _ = services.ReadExifTags(data)
		resp.ExifValues = services.ExtractExifJSON(data)
	}
	resp.XMP = string(services.ExtractXMPXML(data))
	return resp
}

// ListExports returns the calling client's export history, newest first.
func (h *ExportHandler) ListExports(c *fiber.Ctx) error {
	clientID := middleware.GetClientID(c)
	if clientID == "" {
		return errorJSON(c, fiber.StatusUnauthorized, "Authentication required")
	}
	if h.exportRepo == nil {
		return errorJSON(c, fiber.StatusNotFound, "Export history is not enabled")
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	records, total, err := h.exportRepo.ListByClient(clientID, page, limit)
	if err != nil {
		h.log.Error("list exports failed", zap.String("client_id", clientID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch exports")
	}
	return c.JSON(models.ExportListResponse{Exports: records, Page: page, Total: total})
}
