// Package yolo runs a YOLOv8 ONNX model with OpenCV DNN and turns camera
// frames into labeled detection batches.
package yolo

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rover/pkg/decision"
)

// Object is one detected object in normalized image coordinates.
type Object struct {
	X, Y, W, H float64 // Top-left corner and size (0-1)
	Confidence float64
	ClassID    int
	ClassName  string
}

// Config holds detector configuration.
type Config struct {
	ModelPath        string  `yaml:"model_path" env:"MODEL_PATH"`
	ConfidenceThresh float32 `yaml:"confidence_thresh" env:"CONFIDENCE_THRESH"`
	NMSThresh        float32 `yaml:"nms_thresh" env:"NMS_THRESH"`
	InputWidth       int     `yaml:"input_width" env:"INPUT_WIDTH"`
	InputHeight      int     `yaml:"input_height" env:"INPUT_HEIGHT"`
}

// DefaultConfig returns production defaults for YOLOv8n.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// Detector runs YOLOv8 object detection. Safe for concurrent use.
type Detector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
}

// New loads the ONNX model at cfg.ModelPath.
func New(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// DetectJPEG decodes a JPEG and detects objects in it.
func (d *Detector) DetectJPEG(jpeg []byte) ([]Object, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	return d.Detect(img)
}

// Detect finds objects in a BGR frame.
func (d *Detector) Detect(img gocv.Mat) ([]Object, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape [1, 84, 8400]: 4 box values + 80 class scores per anchor.
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}

	cands := decodeCandidates(data, sizes[1], sizes[2], d.config.ConfidenceThresh)
	if len(cands) == 0 {
		return nil, nil
	}

	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)
	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = image.Rect(
			int((c.cx-c.w/2)*sx), int((c.cy-c.h/2)*sy),
			int((c.cx+c.w/2)*sx), int((c.cy+c.h/2)*sy),
		)
		scores[i] = c.score
	}

	indices := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	objects := make([]Object, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		objects = append(objects, Object{
			X:          float64(box.Min.X) / float64(imgW),
			Y:          float64(box.Min.Y) / float64(imgH),
			W:          float64(box.Dx()) / float64(imgW),
			H:          float64(box.Dy()) / float64(imgH),
			Confidence: float64(scores[idx]),
			ClassID:    cands[idx].classID,
			ClassName:  className(cands[idx].classID),
		})
	}
	return objects, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// candidate is a pre-NMS box in model input coordinates.
type candidate struct {
	cx, cy, w, h float32
	score        float32
	classID      int
}

// decodeCandidates reads a row-major [attrs, anchors] YOLOv8 tensor and keeps
// anchors whose best class score reaches thresh.
func decodeCandidates(data []float32, attrs, anchors int, thresh float32) []candidate {
	if attrs < 5 || len(data) < attrs*anchors {
		return nil
	}

	var out []candidate
	for i := 0; i < anchors; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				best = s
				bestID = c - 4
			}
		}
		if best < thresh {
			continue
		}
		out = append(out, candidate{
			cx:      data[0*anchors+i],
			cy:      data[1*anchors+i],
			w:       data[2*anchors+i],
			h:       data[3*anchors+i],
			score:   best,
			classID: bestID,
		})
	}
	return out
}

// Batch converts objects to an ordered detection batch.
// Objects with an unknown class are dropped.
func Batch(objects []Object) []decision.Detection {
	batch := make([]decision.Detection, 0, len(objects))
	for _, o := range objects {
		if o.ClassName == "" {
			continue
		}
		batch = append(batch, decision.Detection{Label: o.ClassName, Score: o.Confidence})
	}
	return batch
}
