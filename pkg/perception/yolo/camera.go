package yolo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rover/pkg/decision"
)

// CameraConfig selects the capture device and detection cadence.
type CameraConfig struct {
	// Device is a camera index ("0") or a stream/file URL.
	Device string `yaml:"device" env:"DEVICE"`

	// Interval is the minimum time between detections.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// DefaultCameraConfig returns the first local camera at 4 detections/s.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Device:   "0",
		Interval: 250 * time.Millisecond,
	}
}

// Camera is a detection source reading frames from a capture device.
type Camera struct {
	cfg      CameraConfig
	detector *Detector
	logger   *slog.Logger
}

// NewCamera creates a camera source using detector.
func NewCamera(cfg CameraConfig, detector *Detector, logger *slog.Logger) *Camera {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCameraConfig().Interval
	}
	return &Camera{cfg: cfg, detector: detector, logger: logger.With("component", "camera")}
}

// Run captures frames and hands one batch per processed frame to handle
// until ctx ends. Frames arriving faster than Interval are dropped.
func (c *Camera) Run(ctx context.Context, handle func(ctx context.Context, batch []decision.Detection)) error {
	capture, err := gocv.OpenVideoCapture(c.cfg.Device)
	if err != nil {
		return fmt.Errorf("open capture %q: %w", c.cfg.Device, err)
	}
	defer capture.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	c.logger.Info("camera opened", "device", c.cfg.Device, "interval", c.cfg.Interval)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if ok := capture.Read(&frame); !ok || frame.Empty() {
			misses++
			if misses%20 == 1 {
				c.logger.Warn("camera returned no frame", "device", c.cfg.Device, "misses", misses)
			}
			continue
		}
		misses = 0

		objects, err := c.detector.Detect(frame)
		if err != nil {
			c.logger.Warn("detection failed", "error", err)
			continue
		}
		handle(ctx, Batch(objects))
	}
}
