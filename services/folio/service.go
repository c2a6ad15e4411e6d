// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package folio hosts the query resolution engine behind a session-aware
// service and its HTTP API.
package folio

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/engine"
	"github.com/AleutianAI/folio/services/folio/index"
	"github.com/AleutianAI/folio/services/folio/kb"
)

// sessionLockStripes bounds the per-session lock table.
const sessionLockStripes = 64

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Source is the knowledge base: a path, file:// or http(s):// URL, or
	// gs://bucket/object.
	Source string

	// RulesDir overrides embedded rule files with same-named files found
	// there. Empty uses the embedded defaults.
	RulesDir string

	// SessionTTL is the idle expiry of a session. Zero selects
	// DefaultSessionTTL.
	SessionTTL time.Duration
}

// DefaultServiceConfig returns a config with the default session TTL and no
// knowledge base source.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{SessionTTL: DefaultSessionTTL}
}

// Service ties the engine to per-session conversation state.
//
// # Description
//
//	One Service owns the rules, the engine, the knowledge-base loader and
//	the session store. Turns within one session are serialized; turns in
//	different sessions run concurrently against the shared, immutable index.
//
// # Thread Safety
//
//	Safe for concurrent use.
type Service struct {
	cfg      ServiceConfig
	rules    *config.Rules
	engine   *engine.Engine
	loader   *kb.Loader
	sessions *SessionStore
	logger   *slog.Logger

	locks [sessionLockStripes]sync.Mutex

	mu          sync.RWMutex
	lastLoadErr error
	loadedAt    time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger *slog.Logger
	loader *kb.Loader
}

// WithServiceLogger sets the logger for the service and the components it
// creates.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithLoader replaces the default knowledge-base loader.
func WithLoader(l *kb.Loader) ServiceOption {
	return func(o *serviceOptions) { o.loader = l }
}

// NewService loads rules and the knowledge base and builds the first index.
//
// # Description
//
//	Rules and the knowledge base are loaded concurrently. A rules directory
//	with broken files falls back to the embedded defaults with a warning. A
//	knowledge base that cannot be loaded is logged and leaves the service
//	not ready; a later Reload can recover. Only failures to construct the
//	engine or the session store are returned.
//
// # Inputs
//
//   - ctx: Bounds the initial load. Must not be nil.
//   - cfg: Service configuration.
//
// # Outputs
//
//   - *Service: The service, ready or not.
//   - error: Non-nil if the engine or session store could not be created.
func NewService(ctx context.Context, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	o := serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.loader == nil {
		o.loader = kb.NewLoader(kb.WithLogger(o.logger))
	}

	var (
		rules  *config.Rules
		source *kb.KnowledgeBase
		g      errgroup.Group
	)
	g.Go(func() error {
		rules = config.MustLoadRules(ctx, cfg.RulesDir)
		return nil
	})
	if cfg.Source != "" {
		g.Go(func() error {
			var err error
			source, err = o.loader.Load(ctx, cfg.Source)
			return err
		})
	}
	loadErr := g.Wait()

	eng, err := engine.New(rules, engine.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	sessions, err := OpenSessionStore(cfg.SessionTTL, o.logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		rules:    rules,
		engine:   eng,
		loader:   o.loader,
		sessions: sessions,
		logger:   o.logger,
	}

	switch {
	case cfg.Source == "":
		s.logger.Warn("no knowledge base configured, service stays not ready")
	case loadErr != nil:
		reloadsTotal.WithLabelValues("error").Inc()
		s.setLoadResult(loadErr)
		s.logger.Error("knowledge base load failed, service not ready",
			slog.String("source", cfg.Source),
			slog.String("error", loadErr.Error()),
		)
	default:
		s.install(ctx, source)
	}
	return s, nil
}

// Reload fetches the knowledge base again and swaps in a freshly built
// index. On failure the previous index stays active.
func (s *Service) Reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "folio.Service.Reload")
	defer span.End()
	span.SetAttributes(attribute.String("source", s.cfg.Source))

	if s.cfg.Source == "" {
		return errors.New("reload: no knowledge base source configured")
	}
	source, err := s.loader.Load(ctx, s.cfg.Source)
	if err != nil {
		reloadsTotal.WithLabelValues("error").Inc()
		s.setLoadResult(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return fmt.Errorf("reload: %w", err)
	}
	s.install(ctx, source)
	return nil
}

func (s *Service) install(ctx context.Context, source *kb.KnowledgeBase) {
	idx := index.Build(ctx, source, s.rules.Engine.Matcher)
	s.engine.SetIndex(idx)
	reloadsTotal.WithLabelValues("ok").Inc()
	s.setLoadResult(nil)
}

func (s *Service) setLoadResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLoadErr = err
	if err == nil {
		s.loadedAt = time.Now()
	}
}

// Watch reloads the knowledge base whenever its file changes, until ctx is
// cancelled. Non-file sources are not watched and Watch returns nil at once.
func (s *Service) Watch(ctx context.Context) error {
	if s.cfg.Source == "" {
		return nil
	}
	kind, err := kb.ClassifySource(s.cfg.Source)
	if err != nil {
		return err
	}
	if kind != kb.SourceFile {
		return nil
	}
	path := kb.FilePath(s.cfg.Source)
	return kb.NewWatcher(path, s.Reload, s.logger).Run(ctx)
}

// Status summarizes readiness for the health endpoints.
type Status struct {
	Ready     bool
	Documents int
	LoadedAt  time.Time
	LastError error
}

// Status reports readiness and the last load result.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Ready:     s.engine.Ready(),
		LoadedAt:  s.loadedAt,
		LastError: s.lastLoadErr,
	}
	if idx := s.engine.Index(); idx != nil {
		st.Documents = len(idx.Documents())
	}
	return st
}

// Ready reports whether an index is installed.
func (s *Service) Ready() bool {
	return s.engine.Ready()
}

// Engine returns the underlying engine.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Rules returns the loaded rule set.
func (s *Service) Rules() *config.Rules {
	return s.rules
}

// CreateSession starts a new conversation.
func (s *Service) CreateSession(ctx context.Context) (string, error) {
	id, err := s.sessions.Create(ctx)
	if err != nil {
		return "", err
	}
	sessionsCreated.Inc()
	return id, nil
}

// EndSession forgets a conversation.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	unlock := s.lockSession(sessionID)
	defer unlock()
	return s.sessions.Delete(ctx, sessionID)
}

// Ask resolves one user turn in a session and stores the new state.
//
// # Outputs
//
//   - engine.Result: The resolution.
//   - error: ErrSessionNotFound, engine.ErrNotReady or a storage error. The stored conversation is unchanged on error.
func (s *Service) Ask(ctx context.Context, sessionID, query string) (engine.Result, error) {
	return s.turn(ctx, sessionID, func(conv engine.Conversation) (engine.Result, error) {
		return s.engine.Resolve(ctx, query, conv)
	})
}

// Select answers a document picked from the did-you-mean list, or any
// indexed document by ID.
func (s *Service) Select(ctx context.Context, sessionID, documentID string) (engine.Result, error) {
	return s.turn(ctx, sessionID, func(conv engine.Conversation) (engine.Result, error) {
		doc, err := s.engine.Document(documentID)
		if err != nil {
			return engine.Result{}, err
		}
		return s.engine.SelectDidYouMean(ctx, doc, conv)
	})
}

func (s *Service) turn(ctx context.Context, sessionID string, step func(engine.Conversation) (engine.Result, error)) (engine.Result, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	conv, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return engine.Result{}, err
	}
	res, err := step(conv)
	if err != nil {
		return engine.Result{}, err
	}
	if err := s.sessions.Put(ctx, sessionID, res.Conversation); err != nil {
		return engine.Result{}, err
	}
	return res, nil
}

// Documents lists indexed documents, optionally filtered by category.
func (s *Service) Documents(category string) ([]kb.Document, error) {
	idx := s.engine.Index()
	if idx == nil {
		return nil, engine.ErrNotReady
	}
	if category == "" {
		return idx.Documents(), nil
	}
	return idx.ByCategory(category), nil
}

// Close releases the session store.
func (s *Service) Close() error {
	return s.sessions.Close()
}

// lockSession serializes turns of one session. Sessions share stripes, so
// two sessions may occasionally wait on each other; a session never runs
// two turns at once.
func (s *Service) lockSession(id string) func() {
	h := fnv.New32a()
	h.Write([]byte(id))
	m := &s.locks[h.Sum32()%sessionLockStripes]
	m.Lock()
	return m.Unlock
}
