// Package server exposes the case, evidence, job, and custody surface
// over HTTP for collaborating tools.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"eviforge/internal/cases"
	"eviforge/internal/custody"
	"eviforge/internal/dispatch"
	"eviforge/internal/modules"
	"eviforge/internal/store"
	"eviforge/internal/vault"
)

const (
	apiTokenEnvKey    = "EVIFORGE_API_TOKEN"
	allowRemoteEnvKey = "EVIFORGE_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second

	// Evidence uploads and artifact downloads move whole disk images;
	// keep their concurrency bounded independently of job execution.
	ingestConcurrencyLimit   = 2
	artifactConcurrencyLimit = 4
)

// Server wraps the HTTP handlers of the API.
type Server struct {
	addr            string
	store           *store.Store
	vault           *vault.Vault
	ledger          *custody.Ledger
	registry        *modules.Registry
	service         *cases.Service
	dispatcher      *dispatch.Dispatcher
	logger          *slog.Logger
	apiToken        string
	actor           string
	ingestLimiter   chan struct{}
	artifactLimiter chan struct{}
}

// Options wires a server instance.
type Options struct {
	Addr       string
	Store      *store.Store
	Vault      *vault.Vault
	Ledger     *custody.Ledger
	Registry   *modules.Registry
	Service    *cases.Service
	Dispatcher *dispatch.Dispatcher
	Actor      string
	Logger     *slog.Logger
}

// New creates a server instance. The actor identifies this deployment
// in custody entries appended by API-triggered operations.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	actor := strings.TrimSpace(opts.Actor)
	if actor == "" {
		actor = "api"
	}
	return &Server{
		addr:            opts.Addr,
		store:           opts.Store,
		vault:           opts.Vault,
		ledger:          opts.Ledger,
		registry:        opts.Registry,
		service:         opts.Service,
		dispatcher:      opts.Dispatcher,
		logger:          logger,
		apiToken:        strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		actor:           actor,
		ingestLimiter:   make(chan struct{}, ingestConcurrencyLimit),
		artifactLimiter: make(chan struct{}, artifactConcurrencyLimit),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
