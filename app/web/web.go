// Package web implements the HTTP server: public intake API, password-gated admin API
// and optional static site
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reevolve/reevolve/app/service/request"
	"github.com/reevolve/reevolve/app/web/persistence"
)

// Records defines the record service operations used by the server
type Records interface {
	Submit(ctx context.Context, req request.Submit) (persistence.Record, error)
	List(ctx context.Context) ([]persistence.Record, error)
	Get(ctx context.Context, id int64) (persistence.Record, error)
	Remove(ctx context.Context, id int64) error
	RemoveAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (persistence.Stats, error)
}

// Server represents the web server
type Server struct {
	records        Records
	version        string
	passwordHash   string // bcrypt hash for admin auth, empty disables auth
	loginTTL       time.Duration
	staticDir      string
	csrfProtection *http.CrossOriginProtection
	submitLimiter  *limiter.Limiter
	loginLimiter   *limiter.Limiter
	metrics        *metrics
	now            func() time.Time
}

// Config holds server configuration
type Config struct {
	Records      Records
	Version      string
	PasswordHash string        // bcrypt hash for admin auth (empty to disable)
	LoginTTL     time.Duration // auth cookie lifetime, defaults to 7 days
	StaticDir    string        // directory with the built site, empty disables static serving
	SubmitRate   float64       // max submissions per second per IP, defaults to 1
	SubmitBurst  int           // submission burst per IP, defaults to 5
	LoginRate    float64       // max login attempts per second per IP, defaults to 0.2
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Records == nil {
		return nil, fmt.Errorf("web server initialization failed: records service is required")
	}

	if cfg.StaticDir != "" {
		info, err := os.Stat(cfg.StaticDir)
		if err != nil {
			return nil, fmt.Errorf("web server initialization failed: static dir %q: %w", cfg.StaticDir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("web server initialization failed: static location %q is not a directory", cfg.StaticDir)
		}
	}

	loginTTL := cfg.LoginTTL
	if loginTTL == 0 {
		loginTTL = 7 * 24 * time.Hour
	}
	submitRate, submitBurst, loginRate := cfg.SubmitRate, cfg.SubmitBurst, cfg.LoginRate
	if submitRate <= 0 {
		submitRate = 1
	}
	if submitBurst <= 0 {
		submitBurst = 5
	}
	if loginRate <= 0 {
		loginRate = 0.2
	}

	return &Server{
		records:        cfg.Records,
		version:        cfg.Version,
		passwordHash:   cfg.PasswordHash,
		loginTTL:       loginTTL,
		staticDir:      cfg.StaticDir,
		csrfProtection: http.NewCrossOriginProtection(),
		submitLimiter:  newLimiter(submitRate, submitBurst),
		loginLimiter:   newLimiter(loginRate, 3),
		metrics:        newMetrics(),
		now:            time.Now,
	}, nil
}

// newLimiter makes per-IP limiter responding with JSON error
func newLimiter(rate float64, burst int) *limiter.Limiter {
	lmt := tollbooth.NewLimiter(rate, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetBurst(burst)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	lmt.SetMessage(`{"error":"Too many requests"}`)
	lmt.SetMessageContentType("application/json")
	return lmt
}

// Run starts the web server
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("reevolve", "reevolve", s.version),
		rest.Ping,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)

		// public endpoints
		api.HandleFunc("GET /health", s.handleHealth)
		api.HandleFunc("GET /schema", s.handleSchema)
		api.With(tollbooth.HTTPMiddleware(s.submitLimiter)).HandleFunc("POST /applications", s.handleSubmit)

		if s.passwordHash != "" {
			log.Printf("[INFO] authentication enabled for admin API")
			api.With(s.csrfProtection.Handler, tollbooth.HTTPMiddleware(s.loginLimiter)).HandleFunc("POST /login", s.handleLogin)
			api.HandleFunc("POST /logout", s.handleLogout)
		}

		// admin endpoints
		api.Group().Route(func(admin *routegroup.Bundle) {
			admin.Use(s.csrfProtection.Handler, s.adminOnly)
			admin.HandleFunc("GET /applications", s.handleList)
			admin.HandleFunc("GET /applications/{id}", s.handleGet)
			admin.HandleFunc("DELETE /applications/{id}", s.handleDelete)
			admin.HandleFunc("DELETE /applications", s.handleDeleteAll)
			admin.HandleFunc("GET /stats", s.handleStats)
		})
	})

	router.With(s.adminOnly).Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	if s.staticDir != "" {
		s.staticRoutes(router)
	}

	return router
}

// staticRoutes serves the built site with SPA fallback. /apply/* and /admin/* fall back to their own
// index.html if present, everything else to the root index.html.
func (s *Server) staticRoutes(router *routegroup.Bundle) {
	fs, err := rest.NewFileServer("/", s.staticDir, rest.FsOptSPA)
	if err != nil {
		log.Printf("[ERROR] failed to create static file server for %s: %v", s.staticDir, err)
		return
	}

	for _, section := range []string{"apply", "admin"} {
		sectionIndex := filepath.Join(s.staticDir, section, "index.html")
		router.HandleFunc("GET /"+section+"/", func(w http.ResponseWriter, r *http.Request) {
			if fileExists(filepath.Join(s.staticDir, filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/")))) {
				fs.ServeHTTP(w, r)
				return
			}
			if fileExists(sectionIndex) {
				http.ServeFile(w, r, sectionIndex)
				return
			}
			fs.ServeHTTP(w, r)
		})
	}
	router.Handle("GET /", fs)
	log.Printf("[INFO] serving static site from %s", s.staticDir)
}

// fileExists reports whether path is an existing regular file
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
