// Package face talks to an external face recognition service that locates
// faces in a JPEG and returns one encoding per face.
package face

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"occupancy/internal/logger"
	"occupancy/internal/models"
	"occupancy/internal/services/ai"
)

// DefaultTolerance is the maximum encoding distance still considered the same person.
const DefaultTolerance = 0.6

var ErrServiceUnavailable = errors.New("face: service unavailable")

// locatedFace mirrors the service payload. Location is [top, right, bottom, left].
type locatedFace struct {
	Location []int     `json:"location"`
	Encoding []float64 `json:"encoding"`
}

type locateResponse struct {
	Faces []locatedFace `json:"faces"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Client implements face location over HTTP and local encoding comparison.
type Client struct {
	endpoint string
	client   *http.Client
	quality  int
	encode   func(models.Frame, int) ([]byte, error)
	logger   *logger.Logger
}

func NewClient(endpoint string, log *logger.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		quality:  90,
		encode:   ai.EncodeFrame,
		logger:   log.WithField("component", "face"),
	}
}

// CheckHealth verifies the service is up with its model loaded.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if health.Status != "healthy" || !health.ModelLoaded {
		return fmt.Errorf("%w: status=%s, model_loaded=%v", ErrServiceUnavailable, health.Status, health.ModelLoaded)
	}
	return nil
}

// Locate returns every face found in frame with its encoding.
func (c *Client) Locate(ctx context.Context, frame models.Frame) ([]models.FaceRegion, error) {
	jpeg, err := c.encode(frame, c.quality)
	if err != nil {
		return nil, err
	}

	body, err := c.sendImage(ctx, c.endpoint+"/locate", jpeg)
	if err != nil {
		return nil, err
	}

	var result locateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode locate response: %w", err)
	}

	faces := make([]models.FaceRegion, 0, len(result.Faces))
	for _, f := range result.Faces {
		if len(f.Location) != 4 || len(f.Encoding) == 0 {
			c.logger.Warning("Skipping malformed face entry")
			continue
		}
		top, right, bottom, left := f.Location[0], f.Location[1], f.Location[2], f.Location[3]
		faces = append(faces, models.FaceRegion{
			Region:   models.BBox{X1: float64(left), Y1: float64(top), X2: float64(right), Y2: float64(bottom)},
			Encoding: f.Encoding,
		})
	}
	return faces, nil
}

// Matches reports whether two encodings are within tolerance (Euclidean distance).
func (c *Client) Matches(encoding, reference []float64, tolerance float64) bool {
	return Distance(encoding, reference) <= tolerance
}

// Distance returns the Euclidean distance, or +Inf for incomparable vectors.
func Distance(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (c *Client) sendImage(ctx context.Context, url string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
