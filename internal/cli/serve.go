package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/depstack/depstack/pkg/cache"
	deperrors "github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/lockstore"
	"github.com/depstack/depstack/pkg/npm"
	"github.com/depstack/depstack/pkg/npm/graph"
	"github.com/depstack/depstack/pkg/npm/registry"
)

// resolutionCacheTTL bounds how long a cached resolution may serve stale
// registry data.
const resolutionCacheTTL = 15 * time.Minute

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr        string
		registryURL string
		noCache     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP resolution and lockfile server",
		Long: `Run the depstack HTTP server.

The server resolves package requirements on demand and stores named
lockfiles so CI jobs and developers share one pinned resolution. Backends
come from the config file: MongoDB for lockfile storage and Redis for the
resolution cache, falling back to an in-memory store and a file-backed
cache for development.

Endpoints:
  POST   /api/resolve      resolve requirements, returns a lockfile
  GET    /api/locks        list stored lockfile names
  GET    /api/locks/{name} fetch a stored lockfile
  PUT    /api/locks/{name} store a lockfile
  DELETE /api/locks/{name} remove a stored lockfile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.Config.Serve.Addr
			}
			return c.runServe(cmd.Context(), addr, registryURL, noCache)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&registryURL, "registry", "", "npm registry URL")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the registry response and resolution result caches")

	return cmd
}

// server holds the wiring shared by all HTTP handlers.
type server struct {
	cli      *CLI
	api      registry.API
	store    lockstore.Store
	results  cache.Cache
	keyer    cache.Keyer
	registry string
}

func (c *CLI) runServe(ctx context.Context, addr, registryURL string, noCache bool) error {
	client, err := c.newRegistryClient(registryURL, noCache)
	if err != nil {
		return fmt.Errorf("initialize registry client: %w", err)
	}

	store, err := c.newLockStore(ctx)
	if err != nil {
		return fmt.Errorf("initialize lock store: %w", err)
	}
	defer store.Close(context.Background())

	results, err := c.newResultCache(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize result cache: %w", err)
	}
	defer results.Close()

	s := &server{
		cli:   c,
		api:   client,
		store: store,
		// Resolution results can share a backend with the registry
		// response cache; the scope keeps their keys apart.
		results:  results,
		keyer:    cache.NewScopedKeyer(cache.NewDefaultKeyer(), "results:"),
		registry: registryURL,
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newLockStore picks MongoDB when configured, else in-memory.
func (c *CLI) newLockStore(ctx context.Context) (lockstore.Store, error) {
	if uri := c.Config.Serve.MongoURI; uri != "" {
		c.Logger.Info("using mongo lock store", "uri", uri)
		return lockstore.NewMongoStore(ctx, uri, c.Config.Serve.MongoDatabase)
	}
	c.Logger.Warn("no mongo_uri configured, lockfiles are stored in memory")
	return lockstore.NewMemoryStore(), nil
}

// newResultCache picks Redis when configured, falling back to a file
// cache in the user cache directory. With --no-cache every resolution
// is computed fresh.
func (c *CLI) newResultCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if addr := c.Config.Serve.RedisAddr; addr != "" {
		c.Logger.Info("using redis result cache", "addr", addr)
		return cache.NewRedisCache(ctx, addr)
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(filepath.Join(dir, "results"))
}

func (s *server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Post("/resolve", s.handleResolve)
		r.Get("/locks", s.handleListLocks)
		r.Get("/locks/{name}", s.handleGetLock)
		r.Put("/locks/{name}", s.handlePutLock)
		r.Delete("/locks/{name}", s.handleDeleteLock)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// logRequests logs one line per request through the CLI logger.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.cli.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

// resolveRequest is the body of POST /api/resolve.
type resolveRequest struct {
	Requirements []string `json:"requirements"`
	Dedup        bool     `json:"dedup"`
}

// resolveResponse is the body of a successful resolution.
type resolveResponse struct {
	Lockfile    json.RawMessage  `json:"lockfile"`
	Diagnostics []unmetPeerEntry `json:"diagnostics,omitempty"`
}

type unmetPeerEntry struct {
	Ancestors  []string `json:"ancestors"`
	Dependency string   `json:"dependency"`
	Resolved   string   `json:"resolved"`
}

func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if len(req.Requirements) == 0 {
		s.writeError(w, http.StatusBadRequest, "requirements must not be empty")
		return
	}

	reqs := make([]npm.PackageReq, len(req.Requirements))
	for i, raw := range req.Requirements {
		parsed, err := npm.ParsePackageReq(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid requirement %q: %v", raw, err)
			return
		}
		reqs[i] = parsed
	}

	key := s.keyer.ResolutionKey(req.Requirements, cache.ResolutionKeyOpts{
		RegistryURL: s.registry,
		Dedup:       req.Dedup,
	})
	if cached, hit, err := s.results.Get(r.Context(), key); err == nil && hit {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(cached)
		return
	}

	var opts []graph.ResolverOption
	if req.Dedup {
		opts = append(opts, graph.WithDedup())
	}
	snap, diagnostics, err := graph.Resolve(r.Context(), s.api, reqs, opts...)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	lockfile, err := snap.MarshalLockfile()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "marshal lockfile: %v", err)
		return
	}

	resp := resolveResponse{Lockfile: lockfile}
	for _, diag := range diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, unmetPeerEntry{
			Ancestors:  diag.Ancestors,
			Dependency: diag.Dependency,
			Resolved:   diag.Resolved.String(),
		})
	}
	body, err := json.Marshal(resp)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "marshal response: %v", err)
		return
	}
	_ = s.results.Set(r.Context(), key, body, resolutionCacheTTL)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// writeResolveError maps resolution errors onto HTTP statuses: unknown
// packages and versions are client errors, everything else is a 502
// toward the registry or a 500.
func (s *server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case deperrors.Is(err, deperrors.ErrCodePackageNotFound),
		deperrors.Is(err, deperrors.ErrCodeVersionNotFound),
		deperrors.Is(err, deperrors.ErrCodeTagNotFound):
		s.writeError(w, http.StatusUnprocessableEntity, "%v", err)
	case deperrors.Is(err, deperrors.ErrCodeNetwork):
		s.writeError(w, http.StatusBadGateway, "%v", err)
	default:
		s.writeError(w, http.StatusInternalServerError, "%v", err)
	}
}

func (s *server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list locks: %v", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"names": names})
}

func (s *server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "get lock: %v", err)
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "no lockfile named %q", name)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(rec.Lockfile)
}

func (s *server) handlePutLock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: %v", err)
		return
	}
	rec, err := s.store.Put(r.Context(), name, body)
	if err != nil {
		if deperrors.Is(err, deperrors.ErrCodeInvalidLockfile) {
			s.writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "store lock: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":         rec.ID,
		"name":       rec.Name,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	})
}

func (s *server) handleDeleteLock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.Delete(r.Context(), name); err != nil {
		s.writeError(w, http.StatusInternalServerError, "delete lock: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
