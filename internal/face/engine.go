package face

import (
	"fmt"
	"image"
	"os"
	"sync"

	"facegate/config"
	"facegate/internal/gate"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// Engine implements the feature engine on OpenCV: Haar cascade detection
// with CLAHE lighting normalization and an LBPH classifier. It also scores
// liveness frame bursts (signals.go).
type Engine struct {
	cfg     *config.RecognitionConfig
	cascade gocv.CascadeClassifier

	// mu guards the recognizer swap on retrain. Predicts take the read
	// lock, so they observe either the previous or the new model, never a
	// half-written one.
	mu      sync.RWMutex
	rec     *contrib.LBPHFaceRecognizer
	trained bool
}

// NewEngine loads the cascade and, when a model artifact already exists,
// the trained LBPH model.
func NewEngine(cfg *config.RecognitionConfig) (*Engine, error) {
	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.CascadeFile) {
		cascade.Close()
		return nil, fmt.Errorf("failed to load cascade file %s", cfg.CascadeFile)
	}

	e := &Engine{
		cfg:     cfg,
		cascade: cascade,
		rec:     newRecognizer(cfg),
	}

	if _, err := os.Stat(cfg.ModelFile); err == nil {
		e.rec.LoadFile(cfg.ModelFile)
		e.trained = true
		log.Infof("Loaded existing LBPH model from %s", cfg.ModelFile)
	}

	return e, nil
}

func newRecognizer(cfg *config.RecognitionConfig) *contrib.LBPHFaceRecognizer {
	rec := contrib.NewLBPHFaceRecognizer()
	if cfg.LBPHRadius > 0 {
		rec.SetRadius(cfg.LBPHRadius)
	}
	if cfg.LBPHNeighbors > 0 {
		rec.SetNeighbors(cfg.LBPHNeighbors)
	}
	return rec
}

// Close releases the OpenCV resources.
func (e *Engine) Close() error {
	return e.cascade.Close()
}

// Detect finds the largest face in the encoded image and extracts its
// descriptor patch. Returns (nil, nil) when no face is found.
func (e *Engine) Detect(img []byte) (*gate.Detection, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	// CLAHE helps detection under uneven lighting.
	norm := gocv.NewMat()
	defer norm.Close()
	applyCLAHE(gray, &norm)

	minSize := image.Pt(e.cfg.MinSize, e.cfg.MinSize)
	rects := e.cascade.DetectMultiScaleWithParams(norm, e.cfg.ScaleFactor, e.cfg.MinNeighbors,
		0, minSize, image.Pt(0, 0))
	if len(rects) == 0 {
		return nil, nil
	}

	// Largest face wins when several are present.
	best := rects[0]
	for _, r := range rects[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}

	roi := norm.Region(best)
	defer roi.Close()

	sharpness := laplacianVariance(roi)

	desc, err := descriptorFromROI(roi)
	if err != nil {
		return nil, err
	}

	return &gate.Detection{
		Descriptor:   desc,
		Box:          best,
		FrameWidth:   mat.Cols(),
		FrameHeight:  mat.Rows(),
		BoxSharpness: sharpness,
	}, nil
}

// Predict classifies a probe descriptor against the trained model.
func (e *Engine) Predict(det *gate.Detection) (*gate.Prediction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.trained {
		return nil, gate.ErrModelNotTrained
	}

	sample, err := matFromDescriptor(det.Descriptor)
	if err != nil {
		return nil, err
	}
	defer sample.Close()

	resp := e.rec.PredictExtendedResponse(sample)
	if resp.Label < 0 {
		return nil, gate.ErrModelNotTrained
	}

	return &gate.Prediction{
		Label:    int(resp.Label),
		Distance: float64(resp.Confidence),
	}, nil
}

// Trained reports whether a model is available.
func (e *Engine) Trained() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trained
}

// Train performs a full LBPH retrain and swaps the model in only after the
// artifact has been durably written (temp file, fsync, atomic rename). No
// settle sleep: when Train returns, a reload would observe the new model.
func (e *Engine) Train(samples []gate.Sample) error {
	if len(samples) == 0 {
		return gate.ErrNoTrainingData
	}

	images := make([]gocv.Mat, 0, len(samples))
	labels := make([]int, 0, len(samples))
	defer func() {
		for _, m := range images {
			m.Close()
		}
	}()

	for _, s := range samples {
		m, err := matFromDescriptor(s.Descriptor)
		if err != nil {
			return err
		}
		images = append(images, m)
		labels = append(labels, s.Label)
	}

	rec := newRecognizer(e.cfg)
	rec.Train(images, labels)

	tmp := e.cfg.ModelFile + ".tmp"
	rec.SaveFile(tmp)
	if err := syncFile(tmp); err != nil {
		return fmt.Errorf("failed to sync model artifact: %w", err)
	}
	if err := os.Rename(tmp, e.cfg.ModelFile); err != nil {
		return fmt.Errorf("failed to publish model artifact: %w", err)
	}

	e.mu.Lock()
	e.rec = rec
	e.trained = true
	e.mu.Unlock()

	log.Debugf("LBPH model written to %s (%d samples)", e.cfg.ModelFile, len(samples))
	return nil
}

// ReadSample loads a stored face crop and normalizes it into a descriptor.
func (e *Engine) ReadSample(path string) (gate.Descriptor, error) {
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("failed to read sample %s", path)
	}
	return descriptorFromROI(mat)
}

// WriteSample persists a descriptor as a PNG face crop.
func (e *Engine) WriteSample(path string, d gate.Descriptor) error {
	mat, err := matFromDescriptor(d)
	if err != nil {
		return err
	}
	defer mat.Close()

	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to write sample %s", path)
	}
	return nil
}

// descriptorFromROI resizes a grayscale face region to the descriptor patch
// size and applies the same normalization chain used at training time.
func descriptorFromROI(roi gocv.Mat) (gate.Descriptor, error) {
	side := gate.DescriptorSide

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, image.Pt(side, side), 0, 0, gocv.InterpolationLinear)

	equalized := gocv.NewMat()
	defer equalized.Close()
	applyCLAHE(resized, &equalized)

	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(equalized, &norm, 0, 255, gocv.NormMinMax)

	buf := norm.ToBytes()
	desc := make(gate.Descriptor, len(buf))
	copy(desc, buf)
	if len(desc) != side*side {
		return nil, fmt.Errorf("unexpected descriptor size %d", len(desc))
	}
	return desc, nil
}

// matFromDescriptor rebuilds the grayscale patch Mat from descriptor bytes.
func matFromDescriptor(d gate.Descriptor) (gocv.Mat, error) {
	side := gate.DescriptorSide
	if len(d) != side*side {
		return gocv.NewMat(), fmt.Errorf("invalid descriptor size %d", len(d))
	}
	return gocv.NewMatFromBytes(side, side, gocv.MatTypeCV8U, d)
}

// applyCLAHE runs adaptive histogram equalization on a grayscale Mat.
func applyCLAHE(src gocv.Mat, dst *gocv.Mat) {
	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()
	clahe.Apply(src, dst)
}

// laplacianVariance is the sharpness measure used both by the anti-spoof
// heuristics and the liveness blur check.
func laplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}

// syncFile flushes a freshly written file to stable storage.
func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
