package session

import "time"

// Challenge is the ephemeral liveness challenge issued to a session. Each
// new issuance overwrites the previous one; the nonce is only valid until
// the window elapses.
type Challenge struct {
	Nonce    string
	IssuedAt time.Time
	Actions  [2]string
}

// Session is the per-user authorization state. It is created empty on first
// contact and cleared on logout. LivenessOK is set by a successful liveness
// completion and consumed exactly once, by a successful login.
type Session struct {
	ID                 string
	UserName           string
	Level              int
	AdminOverride      bool
	LivenessOK         bool
	LivenessValidUntil time.Time
	Challenge          *Challenge
}

// Authenticated reports whether the session is bound to an identity.
func (s *Session) Authenticated() bool {
	return s.UserName != ""
}

// LivenessFresh reports whether a liveness pass is present and unexpired.
func (s *Session) LivenessFresh(now time.Time) bool {
	return s.LivenessOK && !now.After(s.LivenessValidUntil)
}

// ConsumeLiveness clears the liveness pass after a successful login.
func (s *Session) ConsumeLiveness() {
	s.LivenessOK = false
}

// Reset clears all authorization state, keeping the session id.
func (s *Session) Reset() {
	s.UserName = ""
	s.Level = 0
	s.AdminOverride = false
	s.LivenessOK = false
	s.LivenessValidUntil = time.Time{}
	s.Challenge = nil
}
