package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/giantswarm/mcpref/internal/authmw"
	"github.com/giantswarm/mcpref/internal/capability"
	"github.com/giantswarm/mcpref/internal/config"
	"github.com/giantswarm/mcpref/internal/dispatch"
	"github.com/giantswarm/mcpref/internal/lifecycle"
	"github.com/giantswarm/mcpref/internal/logging"
	"github.com/giantswarm/mcpref/internal/metrics"
	"github.com/giantswarm/mcpref/internal/oauthserver"
	"github.com/giantswarm/mcpref/internal/session"
	"github.com/giantswarm/mcpref/internal/sse"
	"github.com/giantswarm/mcpref/internal/transport"
)

var (
	serveAddr             string
	serveConfigPath       string
	serveStateless        bool
	serveDebug            bool
	serveSocketActivation bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mcprefd streaming-HTTP server",
		Long: `Starts the /mcp streamable-HTTP endpoint, with JSON-RPC lifecycle and
capability negotiation, session management, Server-Sent Events, and an
optional built-in OAuth 2.1 authorization server.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP bind address, overrides config")
	cmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.yaml")
	cmd.Flags().BoolVar(&serveStateless, "stateless", false, "Run without server-side session state, overrides config")
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug-level logging")
	cmd.Flags().BoolVar(&serveSocketActivation, "socket-activation", false, "Serve on a systemd-activated listener instead of binding addr")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("serve: loading config: %w", err)
	}
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	if serveStateless {
		cfg.HTTP.Stateless = true
	}
	if cfg.HTTP.ProtocolVersion == "" {
		cfg.HTTP.ProtocolVersion = lifecycle.SupportedProtocolVersion
	}

	watcher := config.NewWatcher(serveConfigPath, cfg)
	if serveConfigPath != "" {
		if err := watcher.Start(); err != nil {
			logging.Warn("Serve", "config hot-reload disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	serverInfo := lifecycle.ServerInfo{Name: "mcprefd", Version: GetVersion()}
	serverCapabilities, _ := json.Marshal(map[string]interface{}{
		"tools":   map[string]interface{}{},
		"logging": map[string]interface{}{},
	})

	capMgr, err := capability.NewManager(serverCapabilities)
	if err != nil {
		return fmt.Errorf("serve: building capability manager: %w", err)
	}

	sessions := session.NewManager(serverInfo, serverCapabilities,
		session.WithIdleTTL(cfg.Session.IdleTTL),
		session.WithSweepInterval(cfg.Session.SweepInterval),
	)
	defer sessions.Stop()

	streams := sse.NewManager(cfg.SSE.BufferSize, cfg.SSE.KeepAliveInterval)

	dispatcher := dispatch.NewServer(capMgr, watcher.Policy())

	mcpServer := transport.NewServer(transport.Config{
		ProtocolVersion:    cfg.HTTP.ProtocolVersion,
		AllowedOrigins:     cfg.HTTP.AllowedOrigins,
		Stateless:          cfg.HTTP.Stateless,
		ServerInfo:         serverInfo,
		ServerCapabilities: serverCapabilities,
		Sessions:           sessions,
		Streams:            streams,
		Dispatcher:         dispatcher,
	})

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpServer.Handler())

	if cfg.HTTP.MetricsEnabled {
		promReg := prometheus.NewRegistry()
		dispatcher.Metrics = metrics.NewRegistry(promReg)
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	}

	var oauthSrv *oauthserver.Server
	if cfg.OAuth.Enabled {
		oauthSrv, err = buildOAuthServer(cfg)
		if err != nil {
			return fmt.Errorf("serve: building OAuth server: %w", err)
		}
		defer oauthSrv.Store.Stop()
		mux.HandleFunc("/authorize", oauthSrv.HandleAuthorize)
		mux.HandleFunc("/token", oauthSrv.HandleToken)
	}

	var handler http.Handler = mux
	if cfg.OAuth.Enabled {
		handler = authmw.Middleware(authmw.Config{
			SkipPaths: []string{"/authorize", "/token", "/.well-known/oauth-authorization-server"},
		}, handler)
	}

	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	listener, err := serveListener(cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("serve: acquiring listener: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErrCh := make(chan error, 1)
	go func() {
		logging.Info("Serve", "listening on %s (stateless=%v oauth=%v)", cfg.HTTP.Addr, cfg.HTTP.Stateless, cfg.OAuth.Enabled)
		serveErrCh <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Serve", "shutdown signal received")
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// serveListener reuses a systemd-activated socket when --socket-activation
// is set, otherwise binds addr directly.
func serveListener(addr string) (net.Listener, error) {
	if serveSocketActivation {
		listeners, err := activation.Listeners()
		if err != nil {
			return nil, fmt.Errorf("retrieving systemd listeners: %w", err)
		}
		if len(listeners) == 0 {
			return nil, fmt.Errorf("--socket-activation set but no systemd sockets were passed")
		}
		return listeners[0], nil
	}
	return net.Listen("tcp", addr)
}

func buildOAuthServer(cfg config.Config) (*oauthserver.Server, error) {
	clients := oauthserver.NewClientRegistry()
	for _, c := range cfg.OAuth.Clients {
		if err := clients.Register(c.ClientID, c.Secret, c.RedirectURIs, c.GrantTypes, c.TokenEndpointAuthMethod); err != nil {
			return nil, fmt.Errorf("registering client %s: %w", c.ClientID, err)
		}
	}

	store := oauthserver.NewStore(time.Minute)
	issuer := oauthserver.NewIssuer(cfg.OAuth.Issuer, []byte(cfg.OAuth.SigningKey))

	return &oauthserver.Server{
		Issuer:   cfg.OAuth.Issuer,
		Store:    store,
		Clients:  clients,
		Tokens:   issuer,
		Subjects: cookieSubjectAuthenticator{},
	}, nil
}

// cookieSubjectAuthenticator trusts a "subject" cookie as the resource
// owner's identity. A reference implementation only; deployments that
// need real end-user login should supply their own SubjectAuthenticator.
type cookieSubjectAuthenticator struct{}

func (cookieSubjectAuthenticator) Authenticate(r *http.Request) (string, bool) {
	c, err := r.Cookie("subject")
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
