// Package server serves the current content snapshot over HTTP and pushes
// reload notifications to browsers over a websocket.
//
// Every request performs one atomic load of the published snapshot and
// renders from it, so a response never mixes two generations.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/quire/internal/config"
	"github.com/conneroisu/quire/internal/feed"
	"github.com/conneroisu/quire/internal/logging"
	"github.com/conneroisu/quire/internal/markdown"
	"github.com/conneroisu/quire/internal/reload"
	"github.com/conneroisu/quire/internal/snapshot"
)

// Source is the read side of the reload coordinator.
type Source interface {
	Current() *snapshot.Snapshot
	Status() reload.Status
	Subscribe() (<-chan reload.Event, func())
}

// Server is the site's HTTP front end.
type Server struct {
	config  *config.Config
	source  Source
	fs      afero.Fs
	logger  logging.Logger
	hub     *Hub
	channel feed.Channel
	css     string

	httpServer   *http.Server
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New creates a server reading from source. Static files are served from
// cfg.Server.StaticPath on fs.
func New(cfg *config.Config, source Source, fs afero.Fs, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	logger = logger.WithComponent("server")

	css, err := markdown.HighlightCSS(cfg.Render.HighlightStyle)
	if err != nil {
		return nil, fmt.Errorf("building highlight stylesheet: %w", err)
	}

	return &Server{
		config: cfg,
		source: source,
		fs:     fs,
		logger: logger,
		hub:    NewHub(source, allowedOriginHosts(cfg), logger),
		channel: feed.Channel{
			Title:       cfg.Feed.Title,
			Description: cfg.Feed.Description,
			BaseURL:     cfg.Server.BaseURL,
			Author:      cfg.Feed.Author,
		},
		css: css,
	}, nil
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /posts", s.handlePosts)
	mux.HandleFunc("GET /posts/{slug...}", s.handlePost)
	mux.HandleFunc("GET /chrono", s.handleChrono)
	mux.HandleFunc("GET /tags", s.handleTags)
	mux.HandleFunc("GET /tagged/{tag}", s.handleTagged)
	mux.HandleFunc("GET /rss.xml", s.handleFeed)
	mux.HandleFunc("GET /atom.xml", s.handleAtom)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /highlight.css", s.handleHighlightCSS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /ws", s.hub)
	mux.Handle("GET /static/", s.staticHandler())
	mux.HandleFunc("GET /{page...}", s.handlePage)

	return s.addMiddleware(mux)
}

// Start runs the websocket hub and serves HTTP until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Serving site", "addr", addr, "base_url", s.config.Server.BaseURL)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown closes websocket clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")
		s.hub.Close()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *Server) staticHandler() http.Handler {
	if s.config.Server.StaticPath == "" || s.fs == nil {
		return http.HandlerFunc(s.notFound)
	}
	root := afero.NewBasePathFs(s.fs, s.config.Server.StaticPath)

	return http.StripPrefix("/static/", http.FileServer(afero.NewHttpFs(root)))
}
