package identityware

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	guardian "github.com/goliatone/go-guardian"
)

// GinConfig tunes the gin adapter
type GinConfig struct {
	ErrorHandler func(c *gin.Context, err error)
	// ContextKey is the gin context key for the *guardian.RequestIdentity
	ContextKey string
	Logger     guardian.Logger
}

func defaultGinConfig(config ...GinConfig) GinConfig {
	var cfg GinConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.Logger == nil {
		cfg.Logger = guardian.NewSlogLogger(nil)
	}
	if cfg.ErrorHandler == nil {
		logger := cfg.Logger
		cfg.ErrorHandler = func(c *gin.Context, err error) {
			logError(logger, err, c.Request.URL.Path)
			status, body := RenderError(err)
			c.AbortWithStatusJSON(status, body)
		}
	}
	return cfg
}

// Gin runs the rest of the chain through the authorizer. Handlers report
// failures with c.Error; the last one becomes the pipeline error.
func Gin(a *guardian.Authorizer, config ...GinConfig) gin.HandlerFunc {
	cfg := defaultGinConfig(config...)

	return func(c *gin.Context) {
		original := c.Writer
		buf := &ginBufferedWriter{ResponseWriter: original}
		c.Writer = buf

		err := a.Handle(c.Request.Context(), ginTransport{c: c}, func(ctx context.Context) error {
			c.Request = c.Request.WithContext(ctx)
			if identity, ok := guardian.RequestIdentityFromContext(ctx); ok {
				c.Set(cfg.ContextKey, identity)
			}
			c.Next()
			if last := c.Errors.Last(); last != nil {
				return last.Err
			}
			return nil
		})

		c.Writer = original
		if err != nil {
			cfg.ErrorHandler(c, err)
			return
		}
		buf.flush()
	}
}

// RequireGin rejects requests without an authenticated identity. Mount it
// after Gin, which renders the recorded error.
func RequireGin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := guardian.RequireClaims(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

type ginTransport struct {
	c *gin.Context
}

func (t ginTransport) Cookie(name string) string {
	v, err := t.c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}

func (t ginTransport) Header(name string) string {
	return t.c.GetHeader(name)
}

func (t ginTransport) SetCookie(cookie *http.Cookie) {
	http.SetCookie(t.c.Writer, cookie)
}

func (t ginTransport) SetHeader(name, value string) {
	t.c.Header(name, value)
}

// ginBufferedWriter keeps the status and body out of the connection until
// the identity has been reconciled. Headers go straight to the wrapped
// writer's header map.
type ginBufferedWriter struct {
	gin.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *ginBufferedWriter) WriteHeader(code int) {
	if code > 0 && w.status == 0 {
		w.status = code
	}
}

func (w *ginBufferedWriter) WriteHeaderNow() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
}

func (w *ginBufferedWriter) Write(data []byte) (int, error) {
	w.WriteHeaderNow()
	return w.body.Write(data)
}

func (w *ginBufferedWriter) WriteString(s string) (int, error) {
	w.WriteHeaderNow()
	return w.body.WriteString(s)
}

func (w *ginBufferedWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *ginBufferedWriter) Size() int {
	if w.status == 0 {
		return -1
	}
	return w.body.Len()
}

func (w *ginBufferedWriter) Written() bool {
	return w.status != 0
}

func (w *ginBufferedWriter) Flush() {}

func (w *ginBufferedWriter) flush() {
	if w.status == 0 {
		return
	}
	w.ResponseWriter.WriteHeader(w.status)
	_, _ = w.ResponseWriter.Write(w.body.Bytes())
}
