package reload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	sferrors "github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500

	// portSearch is how many ports after the page server port are tried.
	portSearch = 100
)

// Options configures a Broadcaster.
type Options struct {
	// Host the broadcaster listens on.
	Host string
	// Port to listen on. 0 picks the first free port after Target's port.
	Port int
	// Target is the page server being proxied.
	Target *url.URL
	// OutputRoot is stripped from event paths to form URL paths.
	OutputRoot string
	// Collector supplies the outstanding errors shown in the overlay.
	Collector *sferrors.ErrorCollector
}

// Broadcaster proxies the page server, injects the reload client into
// HTML pages and pushes reload, inject and notify messages to browsers.
type Broadcaster struct {
	opts   Options
	hub    *Hub
	engine *gin.Engine
	logger logging.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// NewBroadcaster creates a broadcaster. Nothing listens until Start.
func NewBroadcaster(opts Options, logger logging.Logger) (*Broadcaster, error) {
	if opts.Target == nil {
		return nil, fmt.Errorf("reload: target URL is required")
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("reload")

	b := &Broadcaster{
		opts:   opts,
		hub:    NewHub(logger, opts.Host+":*", "localhost:*", "127.0.0.1:*"),
		logger: logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	engine.GET(wsRoute, gin.WrapH(b.hub))
	engine.GET(clientRoute, func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(clientJS))
	})
	proxy := b.newProxy()
	engine.NoRoute(gin.WrapH(proxy))
	b.engine = engine
	return b, nil
}

// Handler returns the HTTP handler of the broadcaster.
func (b *Broadcaster) Handler() http.Handler { return b.engine }

// Hub returns the websocket hub.
func (b *Broadcaster) Hub() *Hub { return b.hub }

// Start listens and serves in the background. It fails with
// errors.ErrServerBind when no port can be bound.
func (b *Broadcaster) Start(ctx context.Context) error {
	ln, err := b.listen()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           b.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	b.mu.Lock()
	b.srv, b.ln = srv, ln
	b.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.logger.Error(ctx, err, "reload server stopped")
		}
	}()
	b.logger.Info(ctx, "Proxying "+b.opts.Target.String()+" at "+b.URL())
	return nil
}

func (b *Broadcaster) listen() (net.Listener, error) {
	if b.opts.Port != 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(b.opts.Host, strconv.Itoa(b.opts.Port)))
		if err != nil {
			return nil, fmt.Errorf("%w: reload port %d: %v", sferrors.ErrServerBind, b.opts.Port, err)
		}
		return ln, nil
	}

	base, _ := strconv.Atoi(b.opts.Target.Port())
	var lastErr error
	for port := base + 1; port <= base+portSearch && port <= 65535; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(b.opts.Host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no free port after %d: %v", sferrors.ErrServerBind, base, lastErr)
}

// URL returns the address browsers should open. It is empty before Start.
func (b *Broadcaster) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return ""
	}
	_, port, _ := net.SplitHostPort(b.ln.Addr().String())
	return "http://" + net.JoinHostPort(b.opts.Host, port)
}

// Shutdown stops the HTTP server and disconnects every client.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.hub.Shutdown()
	b.mu.Lock()
	srv := b.srv
	b.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Reload asks every client to reload the page.
func (b *Broadcaster) Reload(ctx context.Context) error {
	b.logger.Debug(ctx, "reloading browsers", "clients", b.hub.Clients())
	return b.hub.Broadcast(Message{Type: KindReload})
}

// Inject swaps the stylesheet at file without a page reload. Anything that
// is not a stylesheet reloads the page.
func (b *Broadcaster) Inject(ctx context.Context, file string) error {
	if !strings.EqualFold(path.Ext(file), ".css") {
		return b.Reload(ctx)
	}
	return b.hub.Broadcast(Message{Type: KindInject, Path: b.urlPath(file)})
}

// Notify shows the outstanding errors in every client, or clears the
// overlay when there are none.
func (b *Broadcaster) Notify(ctx context.Context, ev Event) error {
	var errs []*sferrors.TransformError
	if b.opts.Collector != nil {
		errs = b.opts.Collector.Errors()
	} else if ev.Message != "" {
		errs = []*sferrors.TransformError{{Task: ev.Task, File: ev.Path, Message: ev.Message}}
	}
	html, err := sferrors.RenderOverlay(ctx, errs)
	if err != nil {
		return err
	}
	return b.hub.Broadcast(Message{
		Type:    KindNotify,
		Task:    ev.Task,
		Path:    ev.Path,
		Message: ev.Message,
		HTML:    html,
	})
}

// Publish routes a task event to Reload, Inject or Notify.
func (b *Broadcaster) Publish(ctx context.Context, ev Event) {
	var err error
	switch ev.Kind {
	case KindInject:
		err = b.Inject(ctx, ev.Path)
	case KindNotify:
		err = b.Notify(ctx, ev)
	default:
		err = b.Reload(ctx)
	}
	if err != nil {
		b.logger.Warn(ctx, err, "failed to broadcast", "type", string(ev.Kind))
	}
}

func (b *Broadcaster) urlPath(file string) string {
	p := path.Clean("/" + file)
	if root := strings.Trim(b.opts.OutputRoot, "/"); root != "" && root != "." {
		p = strings.TrimPrefix(p, "/"+root)
	}
	if p == "" {
		return "/"
	}
	return p
}

func (b *Broadcaster) newProxy() *httputil.ReverseProxy {
	target := b.opts.Target
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			// Injection needs the plain body.
			r.Out.Header.Del("Accept-Encoding")
		},
		ModifyResponse: injectClient,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			b.logger.Warn(r.Context(), err, "proxy request failed", "path", r.URL.Path)
			http.Error(w, "page server unavailable", http.StatusBadGateway)
		},
	}
}

// injectClient adds the reload client to HTML responses.
func injectClient(resp *http.Response) error {
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := resp.Body.Close(); err != nil {
		return err
	}

	body = InjectSnippet(body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}

// InjectSnippet inserts the client script before the last </body>, or
// appends it when the page has none.
func InjectSnippet(page []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if idx < 0 {
		return append(page[:len(page):len(page)], snippet...)
	}
	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:idx]...)
	out = append(out, snippet...)
	return append(out, page[idx:]...)
}

// requestLogger logs every request through the project logger.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		p := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			p = p + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"method", c.Request.Method,
			"path", p,
			"latency", time.Since(start).String(),
			"bytes", c.Writer.Size(),
		}
		ctx := c.Request.Context()
		switch {
		case status >= statusErrorThreshold:
			logger.Error(ctx, nil, "http request completed", fields...)
		case status >= statusWarnThreshold:
			logger.Warn(ctx, nil, "http request completed", fields...)
		default:
			logger.Debug(ctx, "http request completed", fields...)
		}
	}
}
