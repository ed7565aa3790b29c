package liveness_test

import (
	"errors"
	"testing"
	"time"

	"facegate/config"
	"facegate/internal/liveness"
	"facegate/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubScorer returns fixed signals regardless of the frames.
type stubScorer struct {
	signals liveness.Signals
	err     error
	calls   int
}

func (s *stubScorer) Score(frames [][]byte) (*liveness.Signals, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	sig := s.signals
	return &sig, nil
}

func passingSignals() liveness.Signals {
	return liveness.Signals{DecodedFrames: 8, Motion: 1.2, Glare: 0.05, Sharpness: 120}
}

func testService(scorer liveness.Scorer) *liveness.Service {
	return liveness.NewService(config.LivenessConfig{
		Required:      true,
		WindowSeconds: 20,
		MaxFrames:     12,
		MinMotion:     0.50,
		MaxGlare:      0.25,
		MinSharpness:  30.0,
	}, scorer)
}

func frames(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out
}

func TestIssueChallengeResetsPriorPass(t *testing.T) {
	svc := testService(&stubScorer{signals: passingSignals()})
	sess := &session.Session{ID: "s", LivenessOK: true}

	challenge, err := svc.IssueChallenge(sess)
	require.NoError(t, err)
	assert.NotEmpty(t, challenge.Nonce)
	assert.NotEmpty(t, challenge.Actions[0])
	assert.NotEmpty(t, challenge.Actions[1])
	assert.False(t, sess.LivenessOK, "issuing a challenge must reset the pass")
	assert.Same(t, challenge, sess.Challenge)

	// A new challenge replaces the previous nonce.
	second, err := svc.IssueChallenge(sess)
	require.NoError(t, err)
	assert.NotEqual(t, challenge.Nonce, second.Nonce)
}

func TestCompleteChallengeSuccess(t *testing.T) {
	svc := testService(&stubScorer{signals: passingSignals()})
	sess := &session.Session{ID: "s"}

	challenge, err := svc.IssueChallenge(sess)
	require.NoError(t, err)

	require.NoError(t, svc.CompleteChallenge(sess, challenge.Nonce, frames(8)))
	assert.True(t, sess.LivenessOK)
	assert.WithinDuration(t, time.Now().Add(svc.Window()), sess.LivenessValidUntil, time.Second)
}

func TestCompleteChallengeNonceMismatch(t *testing.T) {
	scorer := &stubScorer{signals: passingSignals()}
	svc := testService(scorer)
	sess := &session.Session{ID: "s"}

	_, err := svc.IssueChallenge(sess)
	require.NoError(t, err)

	err = svc.CompleteChallenge(sess, "wrong", frames(8))
	assert.ErrorIs(t, err, liveness.ErrNonceInvalid)
	assert.False(t, sess.LivenessOK)
	assert.Zero(t, scorer.calls, "signals must not be computed for a bad nonce")
}

func TestCompleteChallengeWithoutChallenge(t *testing.T) {
	svc := testService(&stubScorer{signals: passingSignals()})
	sess := &session.Session{ID: "s"}

	err := svc.CompleteChallenge(sess, "anything", frames(8))
	assert.ErrorIs(t, err, liveness.ErrNonceInvalid)
}

func TestCompleteChallengeExpired(t *testing.T) {
	scorer := &stubScorer{signals: passingSignals()}
	svc := testService(scorer)
	sess := &session.Session{ID: "s"}

	challenge, err := svc.IssueChallenge(sess)
	require.NoError(t, err)
	challenge.IssuedAt = time.Now().Add(-21 * time.Second)

	err = svc.CompleteChallenge(sess, challenge.Nonce, frames(8))
	assert.ErrorIs(t, err, liveness.ErrChallengeExpired)
	assert.Zero(t, scorer.calls)
}

func TestCompleteChallengeTooManyFrames(t *testing.T) {
	scorer := &stubScorer{signals: passingSignals()}
	svc := testService(scorer)
	sess := &session.Session{ID: "s"}

	challenge, err := svc.IssueChallenge(sess)
	require.NoError(t, err)

	err = svc.CompleteChallenge(sess, challenge.Nonce, frames(13))
	assert.ErrorIs(t, err, liveness.ErrTooManyFrames)
	assert.Zero(t, scorer.calls, "oversized bursts are rejected before scoring")
}

func TestCompleteChallengeSignalFailures(t *testing.T) {
	cases := []struct {
		name    string
		signals liveness.Signals
		want    error
	}{
		{"too few decodable frames", liveness.Signals{DecodedFrames: 2}, liveness.ErrInsufficientFrames},
		{"insufficient motion", liveness.Signals{DecodedFrames: 8, Motion: 0.49, Glare: 0.05, Sharpness: 120}, liveness.ErrInsufficientMotion},
		{"excess glare", liveness.Signals{DecodedFrames: 8, Motion: 1.2, Glare: 0.26, Sharpness: 120}, liveness.ErrExcessGlare},
		{"blurred", liveness.Signals{DecodedFrames: 8, Motion: 1.2, Glare: 0.05, Sharpness: 29.9}, liveness.ErrBlurred},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := testService(&stubScorer{signals: tc.signals})
			sess := &session.Session{ID: "s"}

			challenge, err := svc.IssueChallenge(sess)
			require.NoError(t, err)

			err = svc.CompleteChallenge(sess, challenge.Nonce, frames(8))
			assert.ErrorIs(t, err, tc.want)
			assert.False(t, sess.LivenessOK)
		})
	}
}

func TestCompleteChallengeBoundarySignalsPass(t *testing.T) {
	// Exactly-at-threshold signals pass: motion and sharpness are inclusive
	// minimums, glare an inclusive maximum.
	svc := testService(&stubScorer{signals: liveness.Signals{
		DecodedFrames: 3, Motion: 0.50, Glare: 0.25, Sharpness: 30.0,
	}})
	sess := &session.Session{ID: "s"}

	challenge, err := svc.IssueChallenge(sess)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteChallenge(sess, challenge.Nonce, frames(3)))
	assert.True(t, sess.LivenessOK)
}

func TestCompleteChallengeRetryWithinWindow(t *testing.T) {
	scorer := &stubScorer{signals: liveness.Signals{DecodedFrames: 8, Motion: 0.1}}
	svc := testService(scorer)
	sess := &session.Session{ID: "s"}

	challenge, err := svc.IssueChallenge(sess)
	require.NoError(t, err)

	err = svc.CompleteChallenge(sess, challenge.Nonce, frames(8))
	require.ErrorIs(t, err, liveness.ErrInsufficientMotion)

	// The nonce stays valid for a retry inside the window.
	scorer.signals = passingSignals()
	require.NoError(t, svc.CompleteChallenge(sess, challenge.Nonce, frames(8)))
	assert.True(t, sess.LivenessOK)
}

func TestCompleteChallengeScorerError(t *testing.T) {
	svc := testService(&stubScorer{err: errors.New("boom")})
	sess := &session.Session{ID: "s"}

	challenge, err := svc.IssueChallenge(sess)
	require.NoError(t, err)

	err = svc.CompleteChallenge(sess, challenge.Nonce, frames(8))
	require.Error(t, err)
	assert.False(t, errors.Is(err, liveness.ErrInsufficientFrames))
	assert.False(t, sess.LivenessOK)
}
