package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/skinai/internal/config"
	"github.com/example/skinai/internal/decision"
	"github.com/example/skinai/internal/preprocess"
	"github.com/example/skinai/internal/usecase"
)

// APIVersion is reported to mobile clients.
const APIVersion = "mobile-1.2.0"

// MaxUploadSize is the default multipart memory budget and upload ceiling.
const MaxUploadSize = config.DefaultMaxUploadBytes

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 1 << 20

var buildTime = time.Now().UTC().Format("2006-01-02T15:04:05Z")

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.PredictionUseCase) {
	router.Use(CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ping", func(c *gin.Context) {
		p := uc.Pipeline()
		q := p.Advisor.Quality
		c.JSON(http.StatusOK, gin.H{
			"ok":             true,
			"api_version":    APIVersion,
			"build_time_utc": buildTime,
			"labels":         p.Labels.Labels(),
			"input_shape":    []int{1, preprocess.InputSize, preprocess.InputSize, preprocess.Channels},
			"output_shape":   []int{1, p.Labels.Len()},
			"preprocess":     "EXIF transpose + resize_then_center_crop + efficientnet.preprocess_input",
			"thresholds":     p.Policy.Thresholds,
			"normal_label":   p.Policy.NormalLabel,
			"image_quality_policy": gin.H{
				"min":   []int{q.MinWidth, q.MinHeight},
				"warn":  []int{q.WarnWidth, q.WarnHeight},
				"tiers": []preprocess.Tier{preprocess.TierGood, preprocess.TierLow, preprocess.TierBad},
			},
			"max_upload_bytes": uc.MaxUploadBytes(),
			"model":            uc.ModelStatus(),
		})
	})

	router.POST("/predict", func(c *gin.Context) {
		handlePredict(c, uc, false)
	})

	router.POST("/predict_debug", func(c *gin.Context) {
		handlePredict(c, uc, true)
	})

	router.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func handlePredict(c *gin.Context, uc *usecase.PredictionUseCase, debug bool) {
	limit := uc.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	file, err := formFile(c)
	if err != nil {
		if isTooLarge(err) {
			tooLarge(c, limit)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "image file is required (form field \"file\")"})
		return
	}
	if file.Size > limit {
		tooLarge(c, limit)
		return
	}

	data, err := readFile(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to read image"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": usecase.ErrEmptyPayload.Error()})
		return
	}
	if !acceptedContentType(file.Header.Get("Content-Type"), data) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"ok": false, "error": "unsupported file type, use jpg/png/webp"})
		return
	}

	pred, err := uc.Predict(c.Request.Context(), data)
	switch {
	case err == nil:
	case errors.Is(err, usecase.ErrEmptyPayload):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	case errors.Is(err, usecase.ErrPayloadTooLarge):
		tooLarge(c, limit)
		return
	case errors.Is(err, usecase.ErrModelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "model not ready yet", "model": uc.ModelStatus()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if pred.Status == decision.StatusBadImage {
		c.JSON(http.StatusOK, badImageBody(pred, uc.Pipeline().Advisor.Quality))
		return
	}
	if debug {
		c.JSON(http.StatusOK, debugBody(pred))
		return
	}
	c.JSON(http.StatusOK, predictionBody(pred))
}

// formFile accepts the "file" field used by the mobile app and falls back to "image".
func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	file, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return c.FormFile("image")
	}
	return file, err
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func tooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"ok":               false,
		"error":            usecase.ErrPayloadTooLarge.Error(),
		"max_upload_bytes": limit,
	})
}

// acceptedContentType accepts a declared image type, otherwise it sniffs the
// bytes so a mislabeled upload is judged by its content.
func acceptedContentType(declared string, data []byte) bool {
	if allowedContentTypes[mediaType(declared)] {
		return true
	}
	return allowedContentTypes[mediaType(http.DetectContentType(data))]
}

func mediaType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
}
