package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"occupancy/internal/logger"
)

const mjpegBoundary = "frame"

// StreamHandler serves the latest annotated frame as an MJPEG stream, re-sending
// it at fps until the client goes away.
func StreamHandler(src FrameSource, fps int, logger *logger.Logger) http.HandlerFunc {
	if fps <= 0 {
		fps = 30
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		logger.Info("MJPEG viewer connected from %s", r.RemoteAddr)
		defer logger.Info("MJPEG viewer disconnected from %s", r.RemoteAddr)

		limiter := rate.NewLimiter(rate.Limit(fps), 1)
		ctx := r.Context()
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			frame := src.GetLatestFrame()
			if len(frame) == 0 {
				continue
			}

			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %s\r\n\r\n",
				mjpegBoundary, strconv.Itoa(len(frame))); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// SnapshotHandler returns the latest annotated frame as a single JPEG.
func SnapshotHandler(src FrameSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}

		frame := src.GetLatestFrame()
		if len(frame) == 0 {
			writeError(w, http.StatusNotFound, "no frame processed yet")
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
		w.Write(frame)
	}
}
