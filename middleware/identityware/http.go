package identityware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	guardian "github.com/goliatone/go-guardian"
)

// HTTPErrorHandler renders pipeline errors for net/http
type HTTPErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// HTTPConfig tunes the net/http adapter
type HTTPConfig struct {
	ErrorHandler HTTPErrorHandler
	Logger       guardian.Logger
}

func defaultHTTPConfig(config ...HTTPConfig) HTTPConfig {
	var cfg HTTPConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = guardian.NewSlogLogger(nil)
	}
	if cfg.ErrorHandler == nil {
		logger := cfg.Logger
		cfg.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logError(logger, err, r.URL.Path)
			WriteJSONError(w, err)
		}
	}
	return cfg
}

// WriteJSONError writes err with the shared envelope
func WriteJSONError(w http.ResponseWriter, err error) {
	status, body := RenderError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// HandlerFunc is a net/http handler that can fail
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// HTTPHandler runs h through the authorizer. The response is buffered until
// the identity is reconciled so a credential write failure can still turn
// into an error response.
func HTTPHandler(a *guardian.Authorizer, h HandlerFunc, config ...HTTPConfig) http.Handler {
	cfg := defaultHTTPConfig(config...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := newBufferedWriter()
		t := httpTransport{r: r, w: buf}

		err := a.Handle(r.Context(), t, func(ctx context.Context) error {
			return h(buf, r.WithContext(ctx))
		})
		if err != nil {
			cfg.ErrorHandler(w, r, err)
			return
		}
		buf.flushTo(w)
	})
}

// HTTP wraps a plain handler, which cannot fail on its own
func HTTP(a *guardian.Authorizer, next http.Handler, config ...HTTPConfig) http.Handler {
	return HTTPHandler(a, func(w http.ResponseWriter, r *http.Request) error {
		next.ServeHTTP(w, r)
		return nil
	}, config...)
}

// RequireHTTP rejects requests without an authenticated identity
func RequireHTTP(next http.Handler, config ...HTTPConfig) http.Handler {
	cfg := defaultHTTPConfig(config...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := guardian.RequireClaims(r.Context()); err != nil {
			cfg.ErrorHandler(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type httpTransport struct {
	r *http.Request
	w http.ResponseWriter
}

func (t httpTransport) Cookie(name string) string {
	c, err := t.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (t httpTransport) Header(name string) string {
	return t.r.Header.Get(name)
}

func (t httpTransport) SetCookie(cookie *http.Cookie) {
	http.SetCookie(t.w, cookie)
}

func (t httpTransport) SetHeader(name, value string) {
	t.w.Header().Set(name, value)
}

// bufferedWriter holds the handler response until the pipeline is done
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}
