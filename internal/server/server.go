package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/qmdock/internal/config"
	"github.com/copyleftdev/qmdock/internal/discovery"
	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/logging"
	"github.com/copyleftdev/qmdock/internal/metrics"
	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/optimization/affinity"
	"github.com/copyleftdev/qmdock/internal/optimization/localsearch"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Analysis job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidParams    = errors.New("invalid params")
	errAnalysisNotFound = errors.New("analysis not found")
	errAnalysisFinished = errors.New("analysis already finished")
)

// AnalysisState represents the state of an asynchronous panel analysis.
// Fields are guarded by the server's analysis lock.
type AnalysisState struct {
	ID          string
	Panel       string
	Category    string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	Completed   int
	Total       int
	Report      *discovery.Report
	Err         string
	CancelFunc  context.CancelFunc
	LastUpdated time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the collectors the server records into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEngineLogger sets the logger handed to scoring and search components.
func WithEngineLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.engineLogger = l
		}
	}
}

// WithClock replaces time.Now for analysis bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server implements the HTTP and JSON-RPC surface of the scoring engine.
// Synchronous operations run on the request goroutine; panel analyses run
// in the background and are tracked by ID.
type Server struct {
	cfg          *config.Config
	logger       Logger
	engineLogger *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	evaluator  *scoring.Evaluator
	catalog    *discovery.Catalog
	comparator *discovery.Comparator

	analyses   map[string]*AnalysisState
	analysesMu sync.RWMutex
	jobs       sync.WaitGroup
}

// NewServer creates a new server instance with the given config and logger
func NewServer(cfg *config.Config, logger Logger, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		engineLogger: zap.NewNop(),
		now:          time.Now,
		catalog:      discovery.DefaultCatalog(),
		comparator:   discovery.NewComparator(discovery.DefaultReferences()),
		analyses:     make(map[string]*AnalysisState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	enc, err := scoring.NewEncoder(cfg.Engine.FeatureWidth)
	if err != nil {
		return nil, err
	}
	s.evaluator = scoring.NewEvaluator(enc,
		scoring.WithLogger(s.engineLogger),
		scoring.WithCounter(s.metrics.Evaluations),
	)
	return s, nil
}

// Metrics returns the collectors the server records into.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/energy", s.handleEnergy)
		r.Post("/affinity", s.handleAffinity)
		r.Post("/optimize", s.handleOptimize)
		r.Post("/multi-target", s.handleMultiTarget)
		r.Post("/breakthrough", s.handleBreakthrough)
		r.Post("/selectivity", s.handleSelectivity)
		r.Post("/mutation-impact", s.handleMutationImpact)
		r.Post("/analyses", s.handleStartAnalysis)
		r.Get("/analyses/{id}", s.handleAnalysisStatus)
		r.Delete("/analyses/{id}", s.handleCancelAnalysis)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// pairRequest scores or refines one candidate against one site.
type pairRequest struct {
	Site       molecule.Coordinates `json:"site"`
	Candidate  molecule.Coordinates `json:"candidate"`
	Iterations int                  `json:"iterations,omitempty"`
	Seed       int64                `json:"seed,omitempty"`
}

// panelRequest runs a candidate across a disease panel. Panel may be
// omitted when Category is set, and the other way around. Site and Mutated
// are only read by selectivity and mutation-impact calls.
type panelRequest struct {
	Panel      string               `json:"panel,omitempty"`
	Category   string               `json:"category,omitempty"`
	Targets    []string             `json:"targets,omitempty"`
	Candidate  molecule.Coordinates `json:"candidate,omitempty"`
	Iterations int                  `json:"iterations,omitempty"`
	Seed       int64                `json:"seed,omitempty"`
	Site       molecule.Coordinates `json:"site,omitempty"`
	Mutated    molecule.Coordinates `json:"mutated,omitempty"`
}

type analysisRef struct {
	AnalysisID string `json:"analysis_id"`
}

// optimizerConfig applies per-request overrides to the engine defaults.
func (s *Server) optimizerConfig(iterations int, seed int64) (optimization.Config, error) {
	if iterations < 0 {
		return optimization.Config{}, errors.Wrapf(errors.ErrInvalidConfig, "iterations must not be negative, got %d", iterations).
			WithComponent("server")
	}
	cfg := s.cfg.Engine.OptimizerConfig()
	if seed != 0 {
		cfg.Seed = seed
	}
	return cfg, nil
}

func (s *Server) evaluate(_ context.Context, req pairRequest) (interface{}, error) {
	defer s.metrics.Observe("evaluate", s.now(), nil)
	res := s.evaluator.Evaluate(req.Site, req.Candidate)
	return res, nil
}

func (s *Server) predict(ctx context.Context, req pairRequest) (_ interface{}, err error) {
	defer func(start time.Time) { s.metrics.Observe("predict", start, err) }(s.now())

	cfg, err := s.optimizerConfig(req.Iterations, req.Seed)
	if err != nil {
		return nil, err
	}
	iterations := s.cfg.Engine.PredictIterations
	if req.Iterations > 0 {
		iterations = req.Iterations
	}

	search, err := localsearch.NewOptimizer(s.evaluator, cfg, s.engineLogger)
	if err != nil {
		return nil, err
	}
	return affinity.NewPredictor(s.evaluator, search, iterations, s.engineLogger).
		PredictWithSearch(ctx, req.Site, req.Candidate)
}

func (s *Server) optimize(ctx context.Context, req pairRequest) (_ interface{}, err error) {
	defer func(start time.Time) { s.metrics.Observe("optimize", start, err) }(s.now())

	cfg, err := s.optimizerConfig(req.Iterations, req.Seed)
	if err != nil {
		return nil, err
	}
	opt, err := localsearch.NewOptimizer(s.evaluator, cfg, s.engineLogger)
	if err != nil {
		return nil, err
	}
	return opt.Optimize(ctx, req.Site, req.Candidate, req.Iterations)
}

// resolvePanel finds the request's panel by name, falling back to category.
func (s *Server) resolvePanel(req panelRequest) (*discovery.Panel, error) {
	if req.Panel != "" {
		return s.catalog.Panel(req.Panel)
	}
	if req.Category != "" {
		return s.catalog.ForCategory(req.Category)
	}
	return nil, errors.Wrap(errInvalidParams, "panel or category is required")
}

func (s *Server) aggregator(panel *discovery.Panel, req panelRequest, opts ...discovery.AggregatorOption) (*discovery.Aggregator, error) {
	cfg, err := s.optimizerConfig(req.Iterations, req.Seed)
	if err != nil {
		return nil, err
	}
	opts = append([]discovery.AggregatorOption{
		discovery.WithWorkers(s.cfg.Analysis.Workers),
		discovery.WithAggregatorLogger(s.engineLogger),
	}, opts...)
	return discovery.NewAggregator(s.evaluator, panel, cfg, opts...)
}

func candidateOrScaffold(c molecule.Coordinates) molecule.Coordinates {
	if len(c) == 0 {
		return discovery.DefaultScaffold()
	}
	return c
}

func (s *Server) multiTarget(ctx context.Context, req panelRequest) (_ interface{}, err error) {
	defer func(start time.Time) { s.metrics.Observe("multi_target", start, err) }(s.now())

	panel, err := s.resolvePanel(req)
	if err != nil {
		return nil, err
	}
	agg, err := s.aggregator(panel, req)
	if err != nil {
		return nil, err
	}
	return agg.RunNamed(ctx, req.Targets, candidateOrScaffold(req.Candidate), req.Iterations)
}

// runBreakthrough aggregates over the panel and compares every candidate
// against the panel category's reference drugs.
func (s *Server) runBreakthrough(ctx context.Context, panel *discovery.Panel, req panelRequest, opts ...discovery.AggregatorOption) (*discovery.Report, error) {
	agg, err := s.aggregator(panel, req, opts...)
	if err != nil {
		return nil, err
	}
	return s.comparator.Analyze(ctx, agg, req.Targets, candidateOrScaffold(req.Candidate), req.Iterations)
}

func (s *Server) breakthrough(ctx context.Context, req panelRequest) (_ interface{}, err error) {
	defer func(start time.Time) { s.metrics.Observe("breakthrough", start, err) }(s.now())

	panel, err := s.resolvePanel(req)
	if err != nil {
		return nil, err
	}
	return s.runBreakthrough(ctx, panel, req)
}

// selectivity refines the candidate against a mutant site and compares it
// with the panel reference. The mutant site is req.Site, or the single panel
// target named in req.Targets.
func (s *Server) selectivity(ctx context.Context, req panelRequest) (_ interface{}, err error) {
	defer func(start time.Time) { s.metrics.Observe("selectivity", start, err) }(s.now())

	panel, err := s.resolvePanel(req)
	if err != nil {
		return nil, err
	}
	mutant := req.Site
	if len(mutant) == 0 {
		if len(req.Targets) != 1 {
			return nil, errors.Wrap(errInvalidParams, "site or exactly one target is required")
		}
		sites, err := panel.Select(req.Targets)
		if err != nil {
			return nil, err
		}
		mutant = sites[req.Targets[0]]
	}
	agg, err := s.aggregator(panel, req)
	if err != nil {
		return nil, err
	}
	return agg.Selectivity(ctx, mutant, candidateOrScaffold(req.Candidate), req.Iterations)
}

// mutationImpact compares the candidate's binding to the panel reference
// with its binding to req.Mutated.
func (s *Server) mutationImpact(_ context.Context, req panelRequest) (_ interface{}, err error) {
	defer func(start time.Time) { s.metrics.Observe("mutation_impact", start, err) }(s.now())

	panel, err := s.resolvePanel(req)
	if err != nil {
		return nil, err
	}
	if len(req.Mutated) == 0 {
		return nil, errors.Wrap(errInvalidParams, "mutated is required")
	}
	original := panel.Reference()
	if len(original) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "panel %q has no reference structure", panel.Name())
	}
	return discovery.MutationImpact(s.evaluator, original, req.Mutated, candidateOrScaffold(req.Candidate)), nil
}

// startAnalysis validates the request, registers a job and runs it in the
// background.
func (s *Server) startAnalysis(req panelRequest) (interface{}, error) {
	panel, err := s.resolvePanel(req)
	if err != nil {
		return nil, err
	}
	if _, err := panel.Select(req.Targets); err != nil {
		return nil, err
	}
	if _, err := s.optimizerConfig(req.Iterations, req.Seed); err != nil {
		return nil, err
	}

	s.prune()

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	now := s.now()
	total := len(req.Targets)
	if total == 0 {
		total = len(panel.TargetNames())
	}

	state := &AnalysisState{
		ID:          id,
		Panel:       panel.Name(),
		Category:    panel.Category(),
		Status:      StatusPending,
		StartTime:   now,
		Total:       total,
		CancelFunc:  cancel,
		LastUpdated: now,
	}

	s.analysesMu.Lock()
	s.analyses[id] = state
	s.analysesMu.Unlock()
	s.metrics.JobTransition("", StatusPending)

	s.jobs.Add(1)
	go s.runAnalysis(ctx, state, panel, req)

	s.logger.Info("Analysis started", map[string]interface{}{
		"analysis_id": id,
		"panel":       panel.Name(),
	})

	return map[string]interface{}{
		"analysis_id": id,
		"status":      StatusPending,
	}, nil
}

// runAnalysis executes the analysis in a goroutine
func (s *Server) runAnalysis(ctx context.Context, state *AnalysisState, panel *discovery.Panel, req panelRequest) {
	defer s.jobs.Done()
	defer state.CancelFunc()

	if !s.transition(state, StatusPending, StatusRunning) {
		return
	}

	progress := discovery.WithProgress(func(string) {
		s.analysesMu.Lock()
		state.Completed++
		state.LastUpdated = s.now()
		s.analysesMu.Unlock()
	})

	report, err := s.runBreakthrough(ctx, panel, req, progress)

	s.analysesMu.Lock()
	defer s.analysesMu.Unlock()

	if state.Status == StatusCancelled {
		return
	}

	from := state.Status
	switch {
	case errors.Is(err, context.Canceled):
		state.Status = StatusCancelled
	case err != nil:
		s.logger.Error("Analysis failed", map[string]interface{}{
			"analysis_id": state.ID,
			"error":       err.Error(),
		})
		state.Status = StatusFailed
		state.Err = err.Error()
	default:
		state.Status = StatusCompleted
		state.Report = report
	}
	s.metrics.JobTransition(from, state.Status)

	now := s.now()
	state.EndTime = &now
	state.LastUpdated = now
}

// transition moves state from one status to another, reporting whether it
// was still in from.
func (s *Server) transition(state *AnalysisState, from, to string) bool {
	s.analysesMu.Lock()
	defer s.analysesMu.Unlock()
	if state.Status != from {
		return false
	}
	state.Status = to
	state.LastUpdated = s.now()
	s.metrics.JobTransition(from, to)
	return true
}

func (s *Server) analysisStatus(id string) (interface{}, error) {
	s.prune()

	s.analysesMu.RLock()
	defer s.analysesMu.RUnlock()

	state, exists := s.analyses[id]
	if !exists {
		return nil, errors.Wrapf(errAnalysisNotFound, "id %q", id)
	}

	progress := 0.0
	if state.Total > 0 {
		progress = float64(state.Completed) / float64(state.Total)
	}

	response := map[string]interface{}{
		"analysis_id": state.ID,
		"panel":       state.Panel,
		"category":    state.Category,
		"status":      state.Status,
		"progress":    progress,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Report != nil {
		response["results"] = state.Report
	}
	if state.Err != "" {
		response["error"] = state.Err
	}
	return response, nil
}

func (s *Server) cancelAnalysis(id string) error {
	s.analysesMu.Lock()
	defer s.analysesMu.Unlock()

	state, exists := s.analyses[id]
	if !exists {
		return errors.Wrapf(errAnalysisNotFound, "id %q", id)
	}

	switch state.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return errors.Wrapf(errAnalysisFinished, "status %s", state.Status)
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	s.metrics.JobTransition(state.Status, StatusCancelled)
	state.Status = StatusCancelled
	now := s.now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Analysis cancelled", map[string]interface{}{
		"analysis_id": id,
	})
	return nil
}

// prune drops finished analyses older than the configured TTL.
func (s *Server) prune() {
	ttl := s.cfg.Analysis.JobTTL
	if ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-ttl)

	s.analysesMu.Lock()
	defer s.analysesMu.Unlock()
	for id, state := range s.analyses {
		if state.EndTime != nil && state.EndTime.Before(cutoff) {
			delete(s.analyses, id)
			s.metrics.JobTransition(state.Status, "")
		}
	}
}

// Close cancels running analyses and waits for them to stop.
func (s *Server) Close() error {
	s.analysesMu.Lock()
	for _, state := range s.analyses {
		if state.CancelFunc != nil {
			state.CancelFunc()
		}
	}
	s.analysesMu.Unlock()

	s.jobs.Wait()
	return nil
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, errAnalysisNotFound):
		return http.StatusNotFound
	case errors.Is(err, errAnalysisFinished):
		return http.StatusConflict
	default:
		return errors.StatusCode(err)
	}
}

// decodeParams accepts JSON-RPC params as an object or a one-element array.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errors.Wrap(errInvalidParams, "missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return errors.Wrap(errInvalidParams, "missing required parameters")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(errInvalidParams, "invalid parameter format: %v", err)
	}
	return nil
}
