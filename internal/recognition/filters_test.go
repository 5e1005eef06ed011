package recognition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2 float32) [4]float32 { return [4]float32{x1, y1, x2, y2} }

func TestValidateRejectsTooSmall(t *testing.T) {
	f := Face{Box: box(0, 0, 20, 20), Confidence: 0.9}
	require.False(t, validate(f))
}

func TestValidateAcceptsConfidenceExactlyAtThreshold(t *testing.T) {
	f := Face{Box: box(0, 0, 40, 40), Confidence: minConfidence}
	require.True(t, validate(f))
}

func TestValidateRejectsExtremeAspectRatio(t *testing.T) {
	f := Face{Box: box(0, 0, 100, 40), Confidence: 0.9}
	require.False(t, validate(f))
}

func TestNMSDropsOverlappingLowerConfidenceBox(t *testing.T) {
	faces := []Face{
		{Box: box(0, 0, 100, 100), Confidence: 0.9},
		{Box: box(5, 5, 105, 105), Confidence: 0.5},
	}
	out := nms(faces)
	require.Len(t, out, 1)
	require.Equal(t, float32(0.9), out[0].Confidence)
}

func TestNMSKeepsNonOverlappingBoxes(t *testing.T) {
	faces := []Face{
		{Box: box(0, 0, 50, 50), Confidence: 0.9},
		{Box: box(500, 500, 550, 550), Confidence: 0.5},
	}
	out := nms(faces)
	require.Len(t, out, 2)
}

func TestExcludeOverlaysDropsTopLeftCorner(t *testing.T) {
	fs := frameSize{W: 1920, H: 1080}
	faces := []Face{{Box: box(5, 5, 55, 55), Confidence: 0.9}}
	out := excludeOverlays(faces, fs)
	require.Empty(t, out)
}

func TestExcludeOverlaysKeepsCenterFace(t *testing.T) {
	fs := frameSize{W: 1920, H: 1080}
	faces := []Face{{Box: box(900, 500, 960, 560), Confidence: 0.9}}
	out := excludeOverlays(faces, fs)
	require.Len(t, out, 1)
}

func TestExcludeOverlaysNoOpWhenFrameSizeUnknown(t *testing.T) {
	faces := []Face{{Box: box(5, 5, 55, 55), Confidence: 0.9}}
	out := excludeOverlays(faces, frameSize{})
	require.Len(t, out, 1)
}

func TestDensityCapDropsCrowdedFaces(t *testing.T) {
	faces := []Face{
		{Box: box(0, 0, 40, 40), Confidence: 0.9},
		{Box: box(10, 0, 50, 40), Confidence: 0.9},
		{Box: box(20, 0, 60, 40), Confidence: 0.9},
		{Box: box(30, 0, 70, 40), Confidence: 0.9},
	}
	out := densityCap(faces)
	require.Less(t, len(out), len(faces))
}

func TestTopKCapsAtTen(t *testing.T) {
	faces := make([]Face, 15)
	for i := range faces {
		faces[i] = Face{Box: box(float32(i*100), 0, float32(i*100+40), 40), Confidence: float32(i) / 15}
	}
	out := topK(faces)
	require.Len(t, out, topKCap)
	require.Equal(t, faces[14].Confidence, out[0].Confidence)
}

func TestTopKNoOpUnderCap(t *testing.T) {
	faces := []Face{{Box: box(0, 0, 40, 40), Confidence: 0.5}}
	out := topK(faces)
	require.Len(t, out, 1)
}
