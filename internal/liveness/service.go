package liveness

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	mrand "math/rand"
	"time"

	"facegate/config"
	"facegate/internal/session"

	log "github.com/sirupsen/logrus"
)

// Failure reasons, in validation order. Each check fails fast with its own
// reason; later signals are never computed once an earlier check fails.
var (
	ErrNonceInvalid       = errors.New("nonce invalid")
	ErrChallengeExpired   = errors.New("challenge expired")
	ErrTooManyFrames      = errors.New("too many frames")
	ErrInsufficientFrames = errors.New("insufficient frames")
	ErrInsufficientMotion = errors.New("insufficient temporal variation")
	ErrExcessGlare        = errors.New("excess glare/saturation")
	ErrBlurred            = errors.New("artificial/blurred image")
)

// actionPool is the fixed pool of prompts a challenge draws from.
//
// TODO: score the prompted actions against the submitted frames. Today only
// the generic motion/glare/sharpness signals are validated, so the prompts
// are advisory.
var actionPool = []string{
	"blink your eyes",
	"turn your head to the left",
	"turn your head to the right",
	"open your mouth",
	"smile",
}

// Signals are the anti-spoof measurements over a frame burst.
type Signals struct {
	DecodedFrames int
	// Motion is the mean, over consecutive frame pairs, of the median
	// magnitude of the dense optical flow between grayscale frames.
	Motion float64
	// Glare is the fraction of pixels above brightness 245 in the middle frame.
	Glare float64
	// Sharpness is the Laplacian variance of the middle grayscale frame.
	Sharpness float64
}

// Scorer computes the liveness signals for a burst of encoded frames.
// Implementations discard frames that fail to decode and report the
// decodable count; when fewer than three frames decode, the remaining
// signals are left at zero and not computed.
type Scorer interface {
	Score(frames [][]byte) (*Signals, error)
}

// Service issues and validates challenge-response liveness checks.
type Service struct {
	cfg    config.LivenessConfig
	scorer Scorer
}

// NewService creates a liveness service on top of the given signal scorer.
func NewService(cfg config.LivenessConfig, scorer Scorer) *Service {
	return &Service{cfg: cfg, scorer: scorer}
}

// Window returns the configured challenge window.
func (s *Service) Window() time.Duration {
	return time.Duration(s.cfg.WindowSeconds) * time.Second
}

// IssueChallenge creates a new challenge for the session, discarding any
// prior unconsumed one and resetting the liveness pass.
func (s *Service) IssueChallenge(sess *session.Session) (*session.Challenge, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	challenge := &session.Challenge{
		Nonce:    nonce,
		IssuedAt: time.Now(),
		Actions: [2]string{
			actionPool[mrand.Intn(len(actionPool))],
			actionPool[mrand.Intn(len(actionPool))],
		},
	}

	sess.Challenge = challenge
	sess.LivenessOK = false

	log.Debugf("Issued liveness challenge for session %s", sess.ID)
	return challenge, nil
}

// CompleteChallenge validates a frame burst against the session's current
// challenge. On success the session gets a liveness pass valid for one
// window. The nonce stays valid for retries until the window expires or a
// new challenge is issued.
func (s *Service) CompleteChallenge(sess *session.Session, nonce string, frames [][]byte) error {
	now := time.Now()

	challenge := sess.Challenge
	if challenge == nil || nonce != challenge.Nonce {
		return ErrNonceInvalid
	}
	if now.Sub(challenge.IssuedAt) > s.Window() {
		return ErrChallengeExpired
	}
	if len(frames) > s.cfg.MaxFrames {
		// Scoring is CPU-bound; oversized bursts are rejected instead of
		// scaling the cost.
		return ErrTooManyFrames
	}

	signals, err := s.scorer.Score(frames)
	if err != nil {
		return fmt.Errorf("frame scoring failed: %w", err)
	}
	if signals.DecodedFrames < 3 {
		return ErrInsufficientFrames
	}

	if signals.Motion < s.cfg.MinMotion {
		return ErrInsufficientMotion
	}
	if signals.Glare > s.cfg.MaxGlare {
		return ErrExcessGlare
	}
	if signals.Sharpness < s.cfg.MinSharpness {
		return ErrBlurred
	}

	sess.LivenessOK = true
	sess.LivenessValidUntil = now.Add(s.Window())

	log.Debugf("Liveness challenge completed for session %s (motion=%.2f glare=%.3f sharpness=%.1f)",
		sess.ID, signals.Motion, signals.Glare, signals.Sharpness)
	return nil
}

// newNonce returns a URL-safe random nonce.
func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
