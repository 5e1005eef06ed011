// Package recognition implements the per-frame face recognition pipeline
// (C3): detect, validate, post-filter, resolve the active event, query the
// ANN index, and persist.
package recognition

import (
	"math"
	"sort"
)

const (
	minFaceWidth  = 30
	minFaceHeight = 30
	minConfidence = 0.18
	minAspect     = 0.7
	maxAspect     = 1.5
	minAreaPx     = 1000

	nmsIoUThreshold = 0.3

	overlayCornerW  = 200.0 / 1920.0
	overlayCornerH  = 100.0 / 1080.0
	overlayEdgePx   = 50
	overlayMaxRatio = 3.0
	overlayMinRatio = 0.3

	densityRadiusFactor = 2.0
	densityMaxNeighbors = 2

	topKCap = 10
)

// Face is the C2 detection result shape the validate/filter pipeline
// operates on, prior to any recognition decision.
type Face struct {
	Box        [4]float32 // x1, y1, x2, y2
	Confidence float32
	Embedding  []float32
}

func (f Face) width() float32  { return f.Box[2] - f.Box[0] }
func (f Face) height() float32 { return f.Box[3] - f.Box[1] }
func (f Face) area() float32   { return f.width() * f.height() }
func (f Face) center() (float32, float32) {
	return (f.Box[0] + f.Box[2]) / 2, (f.Box[1] + f.Box[3]) / 2
}

// validate rejects faces failing the size/confidence/aspect/area gate.
// The confidence comparison is strict less-than: exactly minConfidence
// passes.
func validate(f Face) bool {
	w, h := f.width(), f.height()
	if w < minFaceWidth || h < minFaceHeight {
		return false
	}
	if f.Confidence < minConfidence {
		return false
	}
	ratio := w / h
	if ratio < minAspect || ratio > maxAspect {
		return false
	}
	if f.area() < minAreaPx {
		return false
	}
	return true
}

// nms runs non-max suppression, highest-confidence-first, dropping any
// face whose IoU with a kept, higher-confidence face strictly exceeds
// nmsIoUThreshold. IoU exactly equal to the threshold is NOT suppressed.
func nms(faces []Face) []Face {
	if len(faces) == 0 {
		return faces
	}
	ordered := make([]Face, len(faces))
	copy(ordered, faces)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Confidence > ordered[j].Confidence })

	keep := make([]bool, len(ordered))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(ordered); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(ordered); j++ {
			if !keep[j] {
				continue
			}
			if iou(ordered[i].Box, ordered[j].Box) > nmsIoUThreshold {
				keep[j] = false
			}
		}
	}

	out := make([]Face, 0, len(ordered))
	for i, f := range ordered {
		if keep[i] {
			out = append(out, f)
		}
	}
	return out
}

func iou(a, b [4]float32) float32 {
	x1 := maxF(a[0], b[0])
	y1 := maxF(a[1], b[1])
	x2 := minF(a[2], b[2])
	y2 := minF(a[3], b[3])

	inter := maxF(0, x2-x1) * maxF(0, y2-y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// frameSize describes the decoded frame a face was detected in, so the
// overlay heuristic scales to the actual canvas rather than assuming
// 1920x1080 literally.
type frameSize struct {
	W, H int
}

// excludeOverlays drops boxes that sit in the corner regions reserved for
// on-screen UI chrome (timestamps, camera labels), small boxes hugging the
// frame edge, or boxes whose aspect ratio is characteristic of a text
// overlay rather than a face. The corner rectangles scale with fs, keeping
// the proportions of 200x100 on the 1920x1080 reference canvas; the edge
// margin and the small-box size are a fixed overlayEdgePx pixels.
func excludeOverlays(faces []Face, fs frameSize) []Face {
	if fs.W <= 0 || fs.H <= 0 {
		return faces
	}
	cornerW := float32(fs.W) * overlayCornerW
	cornerH := float32(fs.H) * overlayCornerH

	out := make([]Face, 0, len(faces))
	for _, f := range faces {
		if inCorner(f.Box, float32(fs.W), float32(fs.H), cornerW, cornerH) {
			continue
		}
		if nearEdge(f.Box, float32(fs.W), float32(fs.H)) && (f.width() < overlayEdgePx || f.height() < overlayEdgePx) {
			continue
		}
		ratio := f.width() / f.height()
		if ratio > overlayMaxRatio || ratio < overlayMinRatio {
			continue
		}
		out = append(out, f)
	}
	return out
}

func inCorner(box [4]float32, frameW, frameH, cornerW, cornerH float32) bool {
	topLeft := box[0] < cornerW && box[1] < cornerH
	topRight := box[2] > frameW-cornerW && box[1] < cornerH
	bottomLeft := box[0] < cornerW && box[3] > frameH-cornerH
	bottomRight := box[2] > frameW-cornerW && box[3] > frameH-cornerH
	return topLeft || topRight || bottomLeft || bottomRight
}

func nearEdge(box [4]float32, frameW, frameH float32) bool {
	return box[0] < overlayEdgePx || box[1] < overlayEdgePx ||
		box[2] > frameW-overlayEdgePx || box[3] > frameH-overlayEdgePx
}

// densityCap drops a face whose center has more than densityMaxNeighbors
// other face centers within 2*max(w,h) of it, a heuristic against crowd
// scenes and reflective surfaces producing duplicate detections.
func densityCap(faces []Face) []Face {
	out := make([]Face, 0, len(faces))
	for i, f := range faces {
		cx, cy := f.center()
		radius := densityRadiusFactor * maxF(f.width(), f.height())
		neighbors := 0
		for j, g := range faces {
			if i == j {
				continue
			}
			gx, gy := g.center()
			d := distance(cx, cy, gx, gy)
			if d <= radius {
				neighbors++
			}
		}
		if neighbors <= densityMaxNeighbors {
			out = append(out, f)
		}
	}
	return out
}

// topK keeps the topKCap highest-confidence survivors.
func topK(faces []Face) []Face {
	if len(faces) <= topKCap {
		return faces
	}
	ordered := make([]Face, len(faces))
	copy(ordered, faces)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Confidence > ordered[j].Confidence })
	return ordered[:topKCap]
}

// postFilter runs the full ordered post-filter chain: NMS, overlay
// exclusion, density cap, top-K.
func postFilter(faces []Face, fs frameSize) []Face {
	faces = nms(faces)
	faces = excludeOverlays(faces, fs)
	faces = densityCap(faces)
	faces = topK(faces)
	return faces
}

func distance(x1, y1, x2, y2 float32) float32 {
	dx, dy := x1-x2, y1-y2
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
