package face

import (
	"sort"

	"facegate/internal/liveness"

	"gocv.io/x/gocv"
)

const glareBrightness = 245

// Score computes the liveness signals for a burst of encoded frames. Frames
// that fail to decode are discarded; when fewer than three frames survive,
// only DecodedFrames is populated.
func (e *Engine) Score(frames [][]byte) (*liveness.Signals, error) {
	grays := make([]gocv.Mat, 0, len(frames))
	defer func() {
		for _, m := range grays {
			m.Close()
		}
	}()

	for _, buf := range frames {
		mat, err := gocv.IMDecode(buf, gocv.IMReadColor)
		if err != nil || mat.Empty() {
			if err == nil {
				mat.Close()
			}
			continue
		}
		gray := gocv.NewMat()
		gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
		mat.Close()
		grays = append(grays, gray)
	}

	signals := &liveness.Signals{DecodedFrames: len(grays)}
	if len(grays) < 3 {
		return signals, nil
	}

	signals.Motion = meanFlowMagnitude(grays)

	middle := grays[len(grays)/2]
	signals.Glare = glareFraction(middle)
	signals.Sharpness = laplacianVariance(middle)

	return signals, nil
}

// meanFlowMagnitude runs dense optical flow over consecutive frame pairs and
// averages the per-pair median flow magnitude. The median keeps a single
// moving region from being drowned out by a static background mean.
func meanFlowMagnitude(grays []gocv.Mat) float64 {
	var total float64
	pairs := 0

	flow := gocv.NewMat()
	defer flow.Close()

	for i := 1; i < len(grays); i++ {
		gocv.CalcOpticalFlowFarneback(grays[i-1], grays[i], &flow,
			0.5, 3, 15, 3, 5, 1.2, 0)

		med, ok := medianMagnitude(flow)
		if !ok {
			continue
		}
		total += med
		pairs++
	}

	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

// medianMagnitude reduces a two-channel flow field to the median of its
// per-pixel magnitudes.
func medianMagnitude(flow gocv.Mat) (float64, bool) {
	channels := gocv.Split(flow)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	if len(channels) != 2 {
		return 0, false
	}

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	angle := gocv.NewMat()
	defer angle.Close()
	gocv.CartToPolar(channels[0], channels[1], &magnitude, &angle, false)

	data, err := magnitude.DataPtrFloat32()
	if err != nil || len(data) == 0 {
		return 0, false
	}

	sorted := make([]float32, len(data))
	copy(sorted, data)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return float64(sorted[len(sorted)/2]), true
}

// glareFraction is the share of pixels above the saturation brightness.
func glareFraction(gray gocv.Mat) float64 {
	total := gray.Rows() * gray.Cols()
	if total == 0 {
		return 0
	}

	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(gray, &bright, glareBrightness, 255, gocv.ThresholdBinary)

	return float64(gocv.CountNonZero(bright)) / float64(total)
}
