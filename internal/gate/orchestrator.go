package gate

import (
	"crypto/subtle"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"facegate/config"
	"facegate/internal/audit"
	"facegate/internal/db/repository"
	"facegate/internal/session"

	log "github.com/sirupsen/logrus"
)

// defaultLevel is assumed when a recognized name is missing from the registry.
const defaultLevel = 1

// LoginResult is the outcome of AuthenticateForLogin. A processing failure
// is reported as an error by the operation, never folded into Match=false.
type LoginResult struct {
	Match    bool
	Name     string
	Level    int
	Distance float64
	Reason   string // set when Match is false
	Box      *image.Rectangle
}

// GateResult is the outcome of VerifyEnrollGate.
type GateResult struct {
	Match        bool
	IsLevel3     bool
	RequireAdmin bool
	Name         string
	Level        int
	Distance     float64
	Reason       string
	Box          *image.Rectangle
}

// EnrollResult is the outcome of EnrollOrUpdate.
type EnrollResult struct {
	Created    bool
	Updated    bool
	Name       string
	Level      int
	SamplePath string
}

// ModelStatus is a diagnostic snapshot of the recognition state.
type ModelStatus struct {
	Identities int64   `json:"identities"`
	Trained    bool    `json:"trained"`
	Labels     int     `json:"labels"`
	Epoch      uint64  `json:"epoch"`
	Threshold  float64 `json:"threshold"`
}

// Orchestrator is the recognition/enrollment decision engine. It combines
// the feature engine, the identity registry and the per-session state into
// pass/fail decisions and keeps the registry consistent with the derived
// classifier model.
type Orchestrator struct {
	cfg    *config.Config
	engine FeatureEngine
	repo   repository.Repository
	audit  *audit.Recorder

	// trainMu serializes the full mutation sequence
	// {read registry -> mutate -> persist -> retrain -> swap label map}
	// so at most one retrain-and-write is in flight at a time.
	trainMu sync.Mutex

	// labelMu guards the current label map; predicts read it concurrently.
	labelMu sync.RWMutex
	labels  *LabelMap
	epoch   uint64
}

// NewOrchestrator creates the orchestrator and, when the registry already
// holds identities but no model artifact exists, performs an initial retrain
// so predictions work right after startup.
func NewOrchestrator(cfg *config.Config, engine FeatureEngine, repo repository.Repository, rec *audit.Recorder) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		engine: engine,
		repo:   repo,
		audit:  rec,
		labels: newLabelMap(0),
	}

	count, err := repo.CountIdentities()
	if err != nil {
		log.WithError(err).Warn("Could not count identities at startup")
		return o
	}
	if count > 0 {
		if err := o.Retrain(); err != nil {
			log.WithError(err).Warn("Initial retrain failed")
		}
	}
	return o
}

// Retrain rebuilds the classifier model and the label map from the current
// registry contents. Safe to call concurrently; calls are serialized.
func (o *Orchestrator) Retrain() error {
	o.trainMu.Lock()
	defer o.trainMu.Unlock()
	return o.retrainLocked()
}

// retrainLocked performs the full retrain. Caller must hold trainMu.
// Labels are assigned in enrollment order; identities without a single
// readable sample do not get a label this epoch.
func (o *Orchestrator) retrainLocked() error {
	identities, err := o.repo.ListAll()
	if err != nil {
		return &ProcessingError{Op: "list identities for retrain", Err: err}
	}

	epoch := o.epoch + 1
	next := newLabelMap(epoch)
	var samples []Sample
	nextLabel := 0

	for _, identity := range identities {
		rows, err := o.repo.SamplesByIdentity(identity.ID)
		if err != nil {
			return &ProcessingError{Op: "list samples for retrain", Err: err}
		}

		label := -1
		for _, row := range rows {
			desc, err := o.engine.ReadSample(o.samplePath(row.Path))
			if err != nil {
				log.WithError(err).Warnf("Skipping unreadable sample %s", row.Path)
				continue
			}
			if label < 0 {
				label = nextLabel
				nextLabel++
				next.add(label, identity.Name)
			}
			samples = append(samples, Sample{Descriptor: desc, Label: label})
		}
	}

	if len(samples) == 0 {
		return ErrNoTrainingData
	}

	// Train returns only after the new model is durably written, so the
	// swapped label map can never outrun the artifact it describes.
	if err := o.engine.Train(samples); err != nil {
		return &ProcessingError{Op: "train model", Err: err}
	}

	o.labelMu.Lock()
	o.labels = next
	o.epoch = epoch
	o.labelMu.Unlock()

	log.Infof("Model retrained: %d samples, %d labels, epoch %d", len(samples), next.Len(), epoch)
	return nil
}

// currentLabels returns the label map of the current epoch.
func (o *Orchestrator) currentLabels() *LabelMap {
	o.labelMu.RLock()
	defer o.labelMu.RUnlock()
	return o.labels
}

// resolveLevel looks up the registry level for a name, defaulting to 1 when
// the name is unknown.
func (o *Orchestrator) resolveLevel(name string) int {
	identity, err := o.repo.FindByName(name)
	if err != nil {
		log.WithError(err).Warnf("Level lookup failed for %s", name)
		return defaultLevel
	}
	if identity == nil {
		return defaultLevel
	}
	return identity.Level
}

// recoverPredict retrains once from the current registry and predicts again.
// Used when the first prediction fails or lands above the threshold right
// after an enrollment. Returns nil when recovery did not help.
func (o *Orchestrator) recoverPredict(det *Detection) *Prediction {
	o.trainMu.Lock()
	err := o.retrainLocked()
	o.trainMu.Unlock()
	if err != nil {
		if err != ErrNoTrainingData {
			o.audit.Record(audit.StatusAPIError, "", nil, fmt.Sprintf("recovery retrain: %v", err))
		}
		return nil
	}

	pred, err := o.engine.Predict(det)
	if err != nil {
		return nil
	}
	return pred
}

// AuthenticateForLogin decides who the probe image shows and at which level.
// Requires a fresh liveness pass, applies anti-spoof heuristics and the
// inclusive acceptance threshold, and consumes the liveness pass only on
// success. On no-match the liveness flag is untouched so the caller may
// retry within the same window.
func (o *Orchestrator) AuthenticateForLogin(sess *session.Session, img []byte) (*LoginResult, error) {
	now := time.Now()

	if o.cfg.Liveness.Required && !sess.LivenessFresh(now) {
		o.audit.Record(audit.StatusAuthBlocked, sess.UserName, nil, "login without fresh liveness pass")
		return nil, ErrLivenessRequired
	}

	det, err := o.engine.Detect(img)
	if err != nil {
		o.audit.Record(audit.StatusAPIError, "", nil, fmt.Sprintf("login detect: %v", err))
		return nil, &ProcessingError{Op: "detect face", Err: err}
	}

	if det == nil {
		// One recovery retrain, then a single retry. A fresh model does not
		// conjure a face, but it covers the empty-model case right after
		// the first enrollment.
		o.audit.Record(audit.StatusAuthWarn, "", nil, "no detection on first pass, retraining once")
		o.trainMu.Lock()
		if rerr := o.retrainLocked(); rerr != nil && rerr != ErrNoTrainingData {
			log.WithError(rerr).Warn("Recovery retrain during login failed")
		}
		o.trainMu.Unlock()

		det, err = o.engine.Detect(img)
		if err != nil {
			o.audit.Record(audit.StatusAPIError, "", nil, fmt.Sprintf("login detect retry: %v", err))
			return nil, &ProcessingError{Op: "detect face", Err: err}
		}
		if det == nil {
			o.audit.Record(audit.StatusAuthFailed, "", nil, "face not detected")
			return &LoginResult{Match: false, Reason: "face not detected"}, nil
		}
	}

	pred, err := o.engine.Predict(det)
	if err != nil {
		pred = o.recoverPredict(det)
		if pred == nil {
			o.audit.Record(audit.StatusAuthFailed, "", nil, "no usable model for prediction")
			return &LoginResult{Match: false, Reason: "face not detected or model empty", Box: &det.Box}, nil
		}
	}

	// Anti-spoof heuristics on the detection against the full frame.
	ratio := det.AreaRatio()
	if ratio < o.cfg.Recognition.MinFaceAreaRatio || ratio > o.cfg.Recognition.MaxFaceAreaRatio {
		o.audit.RecordDetails(audit.StatusAuthFailed, "", nil, fmt.Sprintf("face area ratio out of bounds (%.3f)", ratio),
			audit.Details{"reason": "face outside expected framing", "area_ratio": ratio, "box": boxDetail(det.Box)})
		return &LoginResult{Match: false, Reason: "face outside expected framing", Box: &det.Box}, nil
	}
	if det.BoxSharpness < o.cfg.Recognition.MinBoxSharpness {
		o.audit.RecordDetails(audit.StatusAuthFailed, "", nil, fmt.Sprintf("low sharpness inside face box (%.1f)", det.BoxSharpness),
			audit.Details{"reason": "image too blurred or static", "box_sharpness": det.BoxSharpness, "box": boxDetail(det.Box)})
		return &LoginResult{Match: false, Reason: "image too blurred or static", Box: &det.Box}, nil
	}

	threshold := o.cfg.Recognition.Threshold
	if pred.Distance > threshold {
		o.audit.Record(audit.StatusAuthWarn, "", audit.Score(pred.Distance), "above threshold, attempting recovery retrain")
		if recovered := o.recoverPredict(det); recovered != nil {
			pred = recovered
		}
	}

	if pred.Distance > threshold {
		o.audit.RecordDetails(audit.StatusAuthFailed, "", audit.Score(pred.Distance), "distance above threshold after recovery",
			audit.Details{"reason": "no correspondence", "distance": pred.Distance, "threshold": threshold})
		return &LoginResult{Match: false, Reason: "no correspondence", Box: &det.Box}, nil
	}

	name, ok := o.currentLabels().Resolve(pred.Label)
	if !ok {
		// A label the current map does not know is a consistency anomaly,
		// not a confident stranger. Fail closed.
		o.audit.Record(audit.StatusAPIError, "", audit.Score(pred.Distance), fmt.Sprintf("label %d not in current map", pred.Label))
		return &LoginResult{Match: false, Reason: "no correspondence", Box: &det.Box}, nil
	}

	level := o.resolveLevel(name)
	sess.UserName = name
	sess.Level = level
	sess.ConsumeLiveness()

	o.audit.RecordDetails(audit.StatusAuthOK, name, audit.Score(pred.Distance), fmt.Sprintf("level %d", level),
		audit.Details{"level": level, "distance": pred.Distance, "box": boxDetail(det.Box)})
	return &LoginResult{
		Match:    true,
		Name:     name,
		Level:    level,
		Distance: pred.Distance,
		Box:      &det.Box,
	}, nil
}

// VerifyEnrollGate runs the recognition step without liveness and without
// anti-spoof checks. Only a recognized level-3 identity binds the session
// and passes the gate; every other outcome requires the fixed-credential
// admin check and leaves the session unbound.
func (o *Orchestrator) VerifyEnrollGate(sess *session.Session, img []byte) (*GateResult, error) {
	det, err := o.engine.Detect(img)
	if err != nil {
		o.audit.Record(audit.StatusAPIError, "", nil, fmt.Sprintf("enroll gate detect: %v", err))
		return nil, &ProcessingError{Op: "detect face", Err: err}
	}
	if det == nil {
		o.audit.Record(audit.StatusEnrollGateFailed, "", nil, "face not detected or model empty")
		return &GateResult{Match: false, RequireAdmin: true, Reason: "face not detected"}, nil
	}

	pred, err := o.engine.Predict(det)
	if err != nil {
		o.audit.Record(audit.StatusEnrollGateFailed, "", nil, "no trained model at enroll gate")
		return &GateResult{Match: false, RequireAdmin: true, Reason: "face not detected", Box: &det.Box}, nil
	}

	if pred.Distance > o.cfg.Recognition.Threshold {
		o.audit.Record(audit.StatusEnrollGateFailed, "", audit.Score(pred.Distance), "distance above threshold")
		return &GateResult{Match: false, RequireAdmin: true, Reason: "no correspondence", Box: &det.Box}, nil
	}

	name, ok := o.currentLabels().Resolve(pred.Label)
	if !ok {
		o.audit.Record(audit.StatusAPIError, "", audit.Score(pred.Distance), fmt.Sprintf("label %d not in current map", pred.Label))
		return &GateResult{Match: false, RequireAdmin: true, Reason: "no correspondence", Box: &det.Box}, nil
	}

	level := o.resolveLevel(name)
	o.audit.RecordDetails(audit.StatusEnrollGateFace, name, audit.Score(pred.Distance), fmt.Sprintf("level %d", level),
		audit.Details{"level": level, "distance": pred.Distance, "box": boxDetail(det.Box)})

	if level == 3 {
		sess.UserName = name
		sess.Level = level
		return &GateResult{Match: true, IsLevel3: true, Name: name, Level: level, Distance: pred.Distance, Box: &det.Box}, nil
	}

	return &GateResult{Match: true, RequireAdmin: true, Name: name, Level: level, Distance: pred.Distance, Box: &det.Box}, nil
}

// EnrollOrUpdate enrolls a new identity or updates a recognized one. Only a
// level-3 session or an admin override may call it; no liveness is required.
// Every mutation persists a fresh sample file, updates the registry and
// synchronously retrains before returning, all under the mutation lock.
func (o *Orchestrator) EnrollOrUpdate(sess *session.Session, name string, level int, img []byte) (*EnrollResult, error) {
	if !(sess.Level == 3 || sess.AdminOverride) {
		o.audit.Record(audit.StatusAccessDenied, sess.UserName, nil, "enroll without level 3 or admin")
		return nil, &AuthorizationError{Msg: "only level 3 or admin may enroll or update"}
	}
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Msg: "name is required"}
	}
	if level < 1 || level > 3 {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid level %d", level)}
	}

	o.trainMu.Lock()
	defer o.trainMu.Unlock()

	// Best-effort recognition against the current model. Failures here are
	// tolerated as "no match" and route to the create path, never fatal.
	det, err := o.engine.Detect(img)
	if err != nil {
		o.audit.Record(audit.StatusAPIError, "", nil, fmt.Sprintf("enroll detect: %v", err))
		det = nil
	}

	var pred *Prediction
	if det != nil {
		if pred, err = o.engine.Predict(det); err != nil {
			pred = nil
		}
	}

	if pred != nil && pred.Distance <= o.cfg.Recognition.Threshold {
		if resolved, ok := o.currentLabels().Resolve(pred.Label); ok {
			existing, err := o.repo.FindByName(resolved)
			if err != nil {
				return nil, &ProcessingError{Op: "registry lookup", Err: err}
			}
			if existing != nil {
				return o.updateExisting(existing.ID, resolved, level, det)
			}
		}
	}

	return o.createNew(name, level, det)
}

// updateExisting handles the UPDATE path: new level, fresh sample under a
// new timestamped name, registry update, synchronous retrain.
// Caller holds trainMu.
func (o *Orchestrator) updateExisting(identityID uint, name string, level int, det *Detection) (*EnrollResult, error) {
	levelChanged, err := o.repo.UpdateLevel(name, level)
	if err != nil {
		return nil, &ProcessingError{Op: "update level", Err: err}
	}

	rel := sampleFilename(name, level)
	if err := o.engine.WriteSample(o.samplePath(rel), det.Descriptor); err != nil {
		return nil, &ProcessingError{Op: "persist sample", Err: err}
	}
	if err := o.repo.AddSample(identityID, rel); err != nil {
		return nil, &ProcessingError{Op: "record sample", Err: err}
	}
	if _, err := o.repo.UpdateReferencePath(name, rel); err != nil {
		return nil, &ProcessingError{Op: "update reference path", Err: err}
	}

	if err := o.retrainLocked(); err != nil {
		return nil, &ProcessingError{Op: "retrain after update", Err: err}
	}

	o.audit.RecordDetails(audit.StatusEnrollUpdate, name, nil,
		fmt.Sprintf("level -> %d, level_changed=%v, new sample %s", level, levelChanged, rel),
		audit.Details{"level": level, "level_changed": levelChanged, "sample": rel})
	return &EnrollResult{Updated: true, Name: name, Level: level, SamplePath: rel}, nil
}

// createNew handles the CREATE path. Detection must have succeeded: an
// enrollment image without a detectable face is rejected.
// Caller holds trainMu.
func (o *Orchestrator) createNew(name string, level int, det *Detection) (*EnrollResult, error) {
	if det == nil {
		o.audit.Record(audit.StatusEnrollFailed, name, nil, "face not detected")
		return nil, &ProcessingError{Op: "face not detected"}
	}

	rel := sampleFilename(name, level)
	if err := o.engine.WriteSample(o.samplePath(rel), det.Descriptor); err != nil {
		return nil, &ProcessingError{Op: "persist sample", Err: err}
	}

	if _, err := o.repo.UpsertByName(name, level, rel); err != nil {
		o.audit.Record(audit.StatusEnrollFailed, name, nil, fmt.Sprintf("registry upsert: %v", err))
		return nil, &ProcessingError{Op: "registry upsert", Err: err}
	}

	identity, err := o.repo.FindByName(name)
	if err != nil || identity == nil {
		return nil, &ProcessingError{Op: "registry lookup after upsert", Err: err}
	}
	if err := o.repo.AddSample(identity.ID, rel); err != nil {
		return nil, &ProcessingError{Op: "record sample", Err: err}
	}

	if err := o.retrainLocked(); err != nil {
		return nil, &ProcessingError{Op: "retrain after enroll", Err: err}
	}

	o.audit.RecordDetails(audit.StatusEnrollOK, identity.Name, nil, fmt.Sprintf("new identity at level %d", level),
		audit.Details{"level": level, "sample": rel})
	return &EnrollResult{Created: true, Name: identity.Name, Level: level, SamplePath: rel}, nil
}

// AdminLogin checks the fixed credential pair and, on success, sets the
// admin override on the session.
func (o *Orchestrator) AdminLogin(sess *session.Session, user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(o.cfg.Admin.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(o.cfg.Admin.Password)) == 1
	if userOK && passOK {
		sess.AdminOverride = true
		o.audit.Record(audit.StatusAdminLoginOK, o.cfg.Admin.User, nil, "")
		return true
	}
	o.audit.Record(audit.StatusAdminLoginFailed, "", nil, "invalid credentials")
	return false
}

// Logout clears the session state and records the event.
func (o *Orchestrator) Logout(sess *session.Session) {
	name := sess.UserName
	sess.Reset()
	o.audit.Record(audit.StatusLogout, name, nil, "session cleared")
}

// Status returns a diagnostic snapshot of the recognition state.
func (o *Orchestrator) Status() ModelStatus {
	count, err := o.repo.CountIdentities()
	if err != nil {
		log.WithError(err).Warn("Could not count identities for status")
	}
	labels := o.currentLabels()
	return ModelStatus{
		Identities: count,
		Trained:    o.engine.Trained(),
		Labels:     labels.Len(),
		Epoch:      labels.Epoch(),
		Threshold:  o.cfg.Recognition.Threshold,
	}
}

// boxDetail flattens a detection box for the audit details column.
func boxDetail(r image.Rectangle) map[string]int {
	return map[string]int{"x": r.Min.X, "y": r.Min.Y, "w": r.Dx(), "h": r.Dy()}
}

// samplePath resolves a sample path relative to the faces directory.
func (o *Orchestrator) samplePath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(o.cfg.Server.FacesDir, rel)
}

// sampleSeq disambiguates sample files written within the same timestamp.
var sampleSeq atomic.Uint64

// sampleFilename builds a fresh file name for a face crop. The timestamp
// plus the process-wide sequence guarantees two enrollments can never land
// on the same name, so prior samples are never overwritten.
func sampleFilename(name string, level int) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, name)
	if safe == "" {
		safe = "user"
	}
	return fmt.Sprintf("%s_L%d_%d_%d.png", safe, level, time.Now().UnixNano(), sampleSeq.Add(1))
}
