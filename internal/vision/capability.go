package vision

import (
	"fmt"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

// Face is one detected-and-embedded face, the unit the opaque capability
// returns to its caller.
type Face struct {
	Box        [4]float32 // x1, y1, x2, y2 pixel coordinates
	Confidence float32
	Embedding  []float32
}

// Result is the Detect() outcome: faces plus the wall-clock cost of the
// call in milliseconds.
type Result struct {
	Faces        []Face
	ProcessingMs int64
}

// Capability is the native face detector/embedder treated as an opaque
// capability by the rest of the engine: bytes in, boxes+scores+embeddings
// out. It owns two ONNX Runtime sessions (RetinaFace-style detector,
// ArcFace-style embedder) and crops+embeds every surviving detection in
// one call so callers never see intermediate tensors.
type Capability struct {
	modelsDir string
	detector  *Detector
	embedder  *Embedder
}

// Config selects model paths and session threading; zero values pick the
// teacher's own defaults (thread caps left to ONNX Runtime).
type Config struct {
	ModelsDir          string
	DetectionThreshold float32
	IntraOpThreads     int
	InterOpThreads     int
}

// NewCapability loads both ONNX models. Config errors (missing model
// files, bad thread settings) are fatal at startup per the engine's error
// handling design; everything past this point is either a transient
// per-call failure or a dispose-and-reinit.
func NewCapability(cfg Config) (*Capability, error) {
	newOpts := func() (*ort.SessionOptions, error) {
		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if cfg.IntraOpThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set intra_op_threads: %w", err)
			}
		}
		if cfg.InterOpThreads > 0 {
			if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set inter_op_threads: %w", err)
			}
		}
		return opts, nil
	}

	threshold := cfg.DetectionThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	detOpts, err := newOpts()
	if err != nil {
		return nil, err
	}
	det, err := NewDetector(filepath.Join(cfg.ModelsDir, "det_10g.onnx"), threshold, detOpts)
	detOpts.Destroy()
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	embOpts, err := newOpts()
	if err != nil {
		det.Close()
		return nil, err
	}
	emb, err := NewEmbedder(filepath.Join(cfg.ModelsDir, "w600k_r50.onnx"), embOpts)
	embOpts.Destroy()
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Capability{modelsDir: cfg.ModelsDir, detector: det, embedder: emb}, nil
}

// SetConfidenceThreshold adjusts the detector's score cutoff at runtime.
func (c *Capability) SetConfidenceThreshold(t float32) {
	c.detector.threshold = t
}

// Detect runs detection followed by embedding extraction for every
// surviving box. A face whose crop is empty or whose embedding fails is
// left out of the result without being logged, rather than failing the
// whole call, matching the detector's treatment as an opaque,
// best-effort capability.
func (c *Capability) Detect(imageBytes []byte) (Result, error) {
	start := time.Now()

	img, err := DecodeImage(imageBytes)
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	detInput := preprocessForDetection(img, c.detector.inputW, c.detector.inputH)
	dets, err := c.detector.Detect(detInput, origW, origH)
	if err != nil {
		return Result{}, fmt.Errorf("detect: %w", err)
	}

	faces := make([]Face, 0, len(dets))
	for _, d := range dets {
		crop := cropFace(img, d.BBox)
		if crop == nil {
			continue
		}
		embInput := preprocessForEmbedding(crop, c.embedder.inputW, c.embedder.inputH)
		embedding, err := c.embedder.Extract(embInput)
		if err != nil {
			continue
		}
		faces = append(faces, Face{Box: d.BBox, Confidence: d.Confidence, Embedding: embedding})
	}

	return Result{Faces: faces, ProcessingMs: time.Since(start).Milliseconds()}, nil
}

// Crop exposes face cropping with the engine's padding convention so the
// recognition worker can persist the same crop it embedded.
func (c *Capability) Crop(imageBytes []byte, box [4]float32) ([]byte, error) {
	img, err := DecodeImage(imageBytes)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	crop := cropFace(img, box)
	if crop == nil {
		return nil, fmt.Errorf("empty crop for box %v", box)
	}
	return EncodeJPEG(crop, 90), nil
}

// Close releases both ONNX sessions.
func (c *Capability) Close() {
	if c.detector != nil {
		c.detector.Close()
	}
	if c.embedder != nil {
		c.embedder.Close()
	}
}
