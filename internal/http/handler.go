package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agroclim/era5-extract/internal/domain"
	"github.com/agroclim/era5-extract/internal/usecase"
)

// Handler handles HTTP requests for climate extractions.
type Handler struct {
	pipeline *usecase.Pipeline
	outDir   string
}

// NewHandler creates a new HTTP handler. Artifacts land in per-request
// subdirectories of outDir.
func NewHandler(pipeline *usecase.Pipeline, outDir string) *Handler {
	return &Handler{
		pipeline: pipeline,
		outDir:   outDir,
	}
}

// ExtractionRequest is the request body shared by both extraction
// endpoints. Geometry is inline GeoJSON.
type ExtractionRequest struct {
	Geometry     json.RawMessage `json:"geometry" binding:"required"`
	Start        string          `json:"start" binding:"required"`
	End          string          `json:"end" binding:"required"`
	Hours        []string        `json:"hours" binding:"required"`
	Variables    []string        `json:"variables" binding:"required"`
	OutputFormat string          `json:"output_format"`
	Resolution   float64         `json:"resolution"`
}

// ExtractionResponse lists the completed artifacts and skipped variables.
type ExtractionResponse struct {
	Artifacts []usecase.Artifact `json:"artifacts"`
	Skipped   []string           `json:"skipped"`
	Count     int                `json:"count"`
}

func (r *ExtractionRequest) window() (domain.RequestWindow, error) {
	start, err := time.Parse("2006-01-02", r.Start)
	if err != nil {
		return domain.RequestWindow{}, fmt.Errorf("invalid start date (expected YYYY-MM-DD): %v", err)
	}
	end, err := time.Parse("2006-01-02", r.End)
	if err != nil {
		return domain.RequestWindow{}, fmt.Errorf("invalid end date (expected YYYY-MM-DD): %v", err)
	}
	hours, err := domain.ParseHours(strings.Join(r.Hours, ","))
	if err != nil {
		return domain.RequestWindow{}, err
	}
	return domain.RequestWindow{
		Start:     start.UTC(),
		End:       end.UTC(),
		Hours:     hours,
		Variables: r.Variables,
	}, nil
}

// writeGeometry stores the inline GeoJSON in a temp file for the
// pipeline, which reads geometries from disk.
func (h *Handler) writeGeometry(raw json.RawMessage) (string, func(), error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("region_%s.geojson", uuid.NewString()))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", nil, err
	}
	return path, func() { _ = os.Remove(path) }, nil
}

// ExtractPolygon handles POST /v1/extractions/polygon.
func (h *Handler) ExtractPolygon(c *gin.Context) {
	var req ExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window, err := req.window()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OutputFormat == "" {
		req.OutputFormat = usecase.FormatRaster
	}

	geomPath, cleanup, err := h.writeGeometry(req.Geometry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	result, err := h.pipeline.ExtractPolygons(c.Request.Context(), usecase.PolygonParams{
		GeometryPath: geomPath,
		Window:       window,
		OutDir:       filepath.Join(h.outDir, uuid.NewString()),
		Resolution:   req.Resolution,
		OutputFormat: req.OutputFormat,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, extractionResponse(result))
}

// ExtractPoint handles POST /v1/extractions/point.
func (h *Handler) ExtractPoint(c *gin.Context) {
	var req ExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window, err := req.window()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	geomPath, cleanup, err := h.writeGeometry(req.Geometry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	result, err := h.pipeline.ExtractPoints(c.Request.Context(), usecase.PointParams{
		GeometryPath: geomPath,
		Window:       window,
		OutDir:       filepath.Join(h.outDir, uuid.NewString()),
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, extractionResponse(result))
}

// GetVariables handles GET /v1/variables.
func (h *Handler) GetVariables(c *gin.Context) {
	variables := domain.KnownVariables()
	c.JSON(http.StatusOK, gin.H{
		"variables": variables,
		"count":     len(variables),
	})
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func extractionResponse(result *usecase.Result) ExtractionResponse {
	resp := ExtractionResponse{
		Artifacts: result.Artifacts,
		Skipped:   result.Skipped,
		Count:     len(result.Artifacts),
	}
	if resp.Artifacts == nil {
		resp.Artifacts = []usecase.Artifact{}
	}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	return resp
}

// statusFor maps the error taxonomy onto HTTP status codes: caller
// mistakes are 400, provider failures 502, everything else 500.
func statusFor(err error) int {
	var inputErr *domain.InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest
	}
	var geomErr *domain.GeometryError
	if errors.As(err, &geomErr) {
		return http.StatusBadRequest
	}
	var retrievalErr *domain.RetrievalError
	if errors.As(err, &retrievalErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
