package gate

import "image"

// Descriptor is the fixed-size numeric texture representation of a detected
// face region: a lighting-normalized 200x200 grayscale patch, row-major.
type Descriptor []byte

// DescriptorSide is the edge length of the square descriptor patch.
const DescriptorSide = 200

// Detection is the result of finding the largest face in an image.
type Detection struct {
	Descriptor  Descriptor
	Box         image.Rectangle // face bounding box in frame coordinates
	FrameWidth  int
	FrameHeight int
	// BoxSharpness is the Laplacian variance inside the box, used by the
	// anti-spoof heuristics.
	BoxSharpness float64
}

// AreaRatio returns the face area as a fraction of the frame area.
func (d *Detection) AreaRatio() float64 {
	frame := d.FrameWidth * d.FrameHeight
	if frame <= 0 {
		return 0
	}
	return float64(d.Box.Dx()*d.Box.Dy()) / float64(frame)
}

// Prediction is a classifier answer for a probe descriptor. Distance is a
// non-negative dissimilarity score; lower means more similar.
type Prediction struct {
	Label    int
	Distance float64
}

// Sample is one descriptor/label pair for training.
type Sample struct {
	Descriptor Descriptor
	Label      int
}

// FeatureEngine is the face detection and classification capability the
// orchestrator is built on. Implementations must make Train durable before
// returning: a Predict issued after Train returns observes either the new
// model or the previous one, never a partial write.
type FeatureEngine interface {
	// Detect finds the largest face in the encoded image. Returns (nil, nil)
	// when the image decodes fine but contains no detectable face.
	Detect(img []byte) (*Detection, error)

	// Predict classifies a probe descriptor against the trained model.
	// Returns ErrModelNotTrained when no model exists yet.
	Predict(det *Detection) (*Prediction, error)

	// Train performs a full retrain from all given samples, replacing any
	// previous model. Never incremental.
	Train(samples []Sample) error

	// Trained reports whether a model is available for Predict.
	Trained() bool

	// ReadSample loads a stored face crop as a descriptor.
	ReadSample(path string) (Descriptor, error)

	// WriteSample persists a descriptor as a face crop file.
	WriteSample(path string, d Descriptor) error
}
