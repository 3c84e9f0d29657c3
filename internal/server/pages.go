// Package server runs the development page server that serves the output
// root, either through PHP's built-in server or an in-process static file
// server.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/siteforge/internal/config"
	sferrors "github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
)

const (
	readyTimeout = 10 * time.Second
	readyPoll    = 50 * time.Millisecond
)

// Options configures a PageServer.
type Options struct {
	// Engine is config.EnginePHP or config.EngineStatic.
	Engine string
	Host   string
	// Port 0 picks a free port.
	Port int
	// Root is the project directory on disk.
	Root string
	// DocRoot is the served directory, relative to Root.
	DocRoot   string
	PHPBinary string
}

// OptionsFrom builds the page server options of cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Engine:    cfg.Server.Engine,
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Root:      cfg.Root,
		DocRoot:   cfg.OutputRoot,
		PHPBinary: cfg.Server.PHPBinary,
	}
}

// PageServer serves the output root.
type PageServer struct {
	opts   Options
	fs     afero.Fs
	logger logging.Logger

	mu      sync.Mutex
	port    int
	cancel  context.CancelFunc
	httpSrv *http.Server
	running bool
	done    chan struct{}
	err     error
}

// New creates a page server. fsys is rooted at the project root and is
// used by the static engine.
func New(opts Options, fsys afero.Fs, logger logging.Logger) (*PageServer, error) {
	switch opts.Engine {
	case config.EnginePHP, config.EngineStatic:
	default:
		return nil, fmt.Errorf("unknown server engine %q", opts.Engine)
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.PHPBinary == "" {
		opts.PHPBinary = "php"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &PageServer{
		opts:   opts,
		fs:     fsys,
		logger: logger.WithComponent("serve"),
	}, nil
}

// Start launches the server and returns once it accepts connections. A
// port that cannot be bound, or a server process that exits before it is
// ready, fails with errors.ErrServerBind.
func (s *PageServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("page server already started")
	}
	s.done = make(chan struct{})
	s.mu.Unlock()

	var err error
	if s.opts.Engine == config.EngineStatic {
		err = s.startStatic(ctx)
	} else {
		err = s.startPHP(ctx)
	}
	if err != nil {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			s.finish(err)
		}
		return err
	}
	s.logger.Info(ctx, "Serving "+s.opts.DocRoot+" at "+s.URL().String(), "engine", s.opts.Engine)
	return nil
}

// Run starts the server, calls ready once it is listening and blocks until
// ctx is cancelled or the server exits. ready may be nil.
func (s *PageServer) Run(ctx context.Context, ready func(ctx context.Context, u *url.URL) error) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	if ready != nil {
		if err := ready(ctx, s.URL()); err != nil {
			_ = s.Shutdown(context.Background())
			return err
		}
	}

	exited := make(chan error, 1)
	go func() { exited <- s.Wait() }()

	select {
	case err := <-exited:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *PageServer) listen() (net.Listener, error) {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sferrors.ErrServerBind, addr, err)
	}
	return ln, nil
}

func (s *PageServer) startStatic(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           StaticHandler(afero.NewBasePathFs(s.fs, s.opts.DocRoot)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.httpSrv = srv
	s.running = true
	s.mu.Unlock()

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.finish(err)
	}()
	return nil
}

func (s *PageServer) startPHP(ctx context.Context) error {
	bin, err := exec.LookPath(s.opts.PHPBinary)
	if err != nil {
		return fmt.Errorf("php engine: %w", err)
	}

	// Probe the port ourselves: php -S only reports bind failures on stderr.
	ln, err := s.listen()
	if err != nil {
		return err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return err
	}

	procCtx, cancel := context.WithCancel(ctx)
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(port))
	docRoot, err := filepath.Abs(filepath.Join(s.opts.Root, filepath.FromSlash(s.opts.DocRoot)))
	if err != nil {
		cancel()
		return err
	}
	cmd := exec.CommandContext(procCtx, bin, "-S", addr, "-t", docRoot)
	cmd.Dir = s.opts.Root

	pr, pw := io.Pipe()
	cmd.Stderr = pw
	cmd.Stdout = pw
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %v", sferrors.ErrServerBind, err)
	}

	s.mu.Lock()
	s.port = port
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.pipeLog(ctx, pr)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		if procCtx.Err() != nil {
			err = nil
		}
		s.finish(err)
	}()

	return s.waitReady(ctx, addr)
}

// waitReady polls addr until it accepts a connection.
func (s *PageServer) waitReady(ctx context.Context, addr string) error {
	deadline := time.NewTimer(readyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(readyPoll)
	defer tick.Stop()

	for {
		conn, err := net.DialTimeout("tcp", addr, readyPoll)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-s.done:
			return fmt.Errorf("%w: page server exited before listening on %s: %v", sferrors.ErrServerBind, addr, s.Wait())
		case <-deadline.C:
			s.stop()
			return fmt.Errorf("%w: page server not listening on %s after %s", sferrors.ErrServerBind, addr, readyTimeout)
		case <-ctx.Done():
			s.stop()
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (s *PageServer) pipeLog(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.logger.Debug(ctx, strings.TrimSpace(sc.Text()))
	}
}

func (s *PageServer) finish(err error) {
	s.mu.Lock()
	s.err = err
	done := s.done
	s.mu.Unlock()
	close(done)
}

// URL returns the address of the running server.
func (s *PageServer) URL() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(s.opts.Host, strconv.Itoa(s.port))}
}

// Wait blocks until the server exits and returns why. A server stopped by
// Shutdown or context cancellation returns nil.
func (s *PageServer) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PageServer) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Shutdown stops the server and waits for it to exit.
func (s *PageServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpSrv, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StaticHandler serves fsys like the PHP built-in server would serve plain
// files: index.php and index.html are directory indexes and .php files are
// sent as HTML.
func StaticHandler(fsys afero.Fs) http.Handler {
	files := http.FileServer(afero.NewHttpFs(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") {
			if f, err := fsys.Open(path.Join(p, "index.php")); err == nil {
				defer f.Close()
				var modtime time.Time
				if fi, err := f.Stat(); err == nil {
					modtime = fi.ModTime()
				}
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				http.ServeContent(w, r, "index.php", modtime, f)
				return
			}
		}
		if path.Ext(p) == ".php" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		files.ServeHTTP(w, r)
	})
}
