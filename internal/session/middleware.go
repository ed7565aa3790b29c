package session

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	sidKey     = "sid"
	contextKey = "facegate_session"
)

// CookieMiddleware returns the cookie-backed gin session middleware that
// transports the session id. Authorization state never goes into the cookie.
func CookieMiddleware(secret string) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions("facegate", store)
}

// Bind resolves the server-side session for the request, creating one and
// persisting its id in the cookie when absent.
func Bind(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		cs := sessions.Default(c)
		id, _ := cs.Get(sidKey).(string)

		sess := store.Get(id)
		if sess == nil {
			sess = store.New()
			cs.Set(sidKey, sess.ID)
			if err := cs.Save(); err != nil {
				log.WithError(err).Warn("Failed to save session cookie")
			}
		}

		Attach(c, sess)
		c.Next()
	}
}

// Attach binds a session to the request context.
func Attach(c *gin.Context, sess *Session) {
	c.Set(contextKey, sess)
}

// FromContext returns the session bound to the request.
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return nil
}
