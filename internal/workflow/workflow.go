/*
Package workflow runs a search request through a small stage machine:
the query is analysed, one retrieval strategy is invoked, the candidates
are reranked and the response is finalized.

Every run carries its own State. After each stage the state can be
snapshotted to a checkpoint store under the request's thread id, and each
finished run is recorded in the search history.
*/
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/khanglvm/tool-hub-search/internal/checkpoint"
	"github.com/khanglvm/tool-hub-search/internal/codec"
	"github.com/khanglvm/tool-hub-search/internal/indexing"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/search"
	"github.com/khanglvm/tool-hub-search/internal/storage"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one search run.
const DefaultTimeout = 10 * time.Second

// Searcher runs the retrieval strategies.
type Searcher interface {
	Semantic(ctx context.Context, q search.Query) (search.Result, error)
	Hybrid(ctx context.Context, q search.Query) (search.Result, error)
	ContextAware(ctx context.Context, q search.Query) (search.Result, error)
}

// ServerDirectory lists indexed servers for intent detection.
type ServerDirectory interface {
	ListServers(ctx context.Context) ([]indexing.ServerSummary, error)
}

// HistoryRecorder stores finished searches.
type HistoryRecorder interface {
	RecordSearch(search storage.SearchRecord) error
}

// Request is a search as submitted by a caller. Unset fields take defaults.
type Request struct {
	Query            string   `json:"query"`
	Mode             string   `json:"mode,omitempty"`
	Limit            int      `json:"limit,omitempty"`
	SemanticWeight   *float64 `json:"semantic_weight,omitempty"`
	IncludeReasoning *bool    `json:"include_reasoning,omitempty"`
	ThreadID         string   `json:"thread_id,omitempty"`
}

// StageResult describes one executed stage.
type StageResult struct {
	Stage      Stage         `json:"stage"`
	Duration   time.Duration `json:"duration_ns"`
	Candidates int           `json:"candidates"`
	Error      string        `json:"error,omitempty"`
}

// State is the per-run record passed between stages and checkpointed.
type State struct {
	SearchID       string             `json:"search_id"`
	ThreadID       string             `json:"thread_id"`
	Query          search.Query       `json:"query"`
	Stage          Stage              `json:"stage"`
	Candidates     []search.Candidate `json:"candidates"`
	Reasoning      string             `json:"reasoning"`
	Recommendation string             `json:"recommendation,omitempty"`
	Degraded       string             `json:"degraded,omitempty"`
	Error          string             `json:"error,omitempty"`
	Completed      bool               `json:"completed"`
	Stages         []StageResult      `json:"stages"`
}

// Response is the public result of a search.
type Response struct {
	Tools          []search.Candidate `json:"tools"`
	Total          int                `json:"total"`
	Reasoning      string             `json:"reasoning"`
	Mode           string             `json:"mode"`
	Recommendation string             `json:"recommendation,omitempty"`
	Degraded       string             `json:"degraded,omitempty"`
	Error          string             `json:"error,omitempty"`
	SearchID       string             `json:"search_id"`
	Stages         []StageResult      `json:"stages,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	Timeout     time.Duration
	ErrorPolicy ErrorPolicy
}

// Orchestrator executes search runs. It is safe for concurrent use; runs
// share nothing but the injected collaborators.
type Orchestrator struct {
	searcher    Searcher
	servers     ServerDirectory
	checkpoints checkpoint.Store
	history     HistoryRecorder
	table       map[edge]Stage
	opts        Options
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithServers enables "<server> or <server>" intent detection.
func WithServers(d ServerDirectory) Option {
	return func(o *Orchestrator) { o.servers = d }
}

// WithCheckpoints snapshots state after every stage.
func WithCheckpoints(s checkpoint.Store) Option {
	return func(o *Orchestrator) { o.checkpoints = s }
}

// WithHistory records every finished run.
func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithMetrics instruments stages and runs.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator.
func New(searcher Searcher, opts Options, logger *zap.Logger, options ...Option) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ErrorPolicy == "" {
		opts.ErrorPolicy = PolicyFinalize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		searcher: searcher,
		table:    transitionTable(opts.ErrorPolicy),
		opts:     opts,
		logger:   logger,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Run executes one search. A ValidationError is returned as an error with
// nothing retrieved; retrieval failures are reported in Response.Error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	state := &State{
		SearchID: uuid.NewString(),
		ThreadID: req.ThreadID,
		Stage:    StageAnalyzeQuery,
	}
	if state.ThreadID == "" {
		state.ThreadID = checkpoint.DefaultThread
	}

	runCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	var validationErr error
	for state.Stage != StageDone {
		stage := state.Stage
		stageStart := time.Now()

		var err error
		switch stage {
		case StageAnalyzeQuery:
			err = o.analyze(runCtx, state, req)
			if err != nil {
				validationErr = err
			}
		case StageSemantic, StageHybrid, StageContextAware:
			err = o.retrieve(runCtx, state, stage)
		case StageRerank:
			rerank(state)
		case StageFinalize, StageError:
			state.Completed = true
		}

		result := StageResult{
			Stage:      stage,
			Duration:   time.Since(stageStart),
			Candidates: len(state.Candidates),
		}
		if err != nil {
			result.Error = err.Error()
		}
		state.Stages = append(state.Stages, result)
		o.metrics.ObserveStage(string(stage), result.Duration)

		state.Stage = o.next(stage, err, state)
		o.snapshot(ctx, state)
	}

	failed := state.Error != ""
	o.metrics.ObserveSearch(string(state.Query.Mode), failed, time.Since(start))
	o.record(state, failed, time.Since(start))

	resp := Response{
		Tools:          state.Candidates,
		Total:          len(state.Candidates),
		Reasoning:      state.Reasoning,
		Mode:           string(state.Query.Mode),
		Recommendation: state.Recommendation,
		Degraded:       state.Degraded,
		Error:          state.Error,
		SearchID:       state.SearchID,
		Stages:         state.Stages,
	}
	if resp.Tools == nil {
		resp.Tools = []search.Candidate{}
	}
	return resp, validationErr
}

func (o *Orchestrator) next(stage Stage, err error, state *State) Stage {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	if stage == StageAnalyzeQuery && outcome == OutcomeOK {
		return retrievalStage[state.Query.Mode]
	}
	next, ok := o.table[edge{stage, outcome}]
	if !ok {
		o.logger.Error("no transition defined", zap.String("stage", string(stage)), zap.Int("outcome", int(outcome)))
		return StageDone
	}
	return next
}

func (o *Orchestrator) analyze(ctx context.Context, state *State, req Request) error {
	q, err := buildQuery(req)
	state.Query = q
	if err != nil {
		state.Error = err.Error()
		return err
	}

	if q.Mode != search.ModeContextAware && wantsContext(q.Text, o.serverNames(ctx)) {
		state.Query.Mode = search.ModeContextAware
	}
	return nil
}

func (o *Orchestrator) serverNames(ctx context.Context) []string {
	if o.servers == nil {
		return nil
	}
	summaries, err := o.servers.ListServers(ctx)
	if err != nil {
		o.logger.Debug("failed to list servers for intent detection", zap.Error(err))
		return nil
	}
	names := make([]string, len(summaries))
	for i, s := range summaries {
		names[i] = s.ServerName
	}
	return names
}

func (o *Orchestrator) retrieve(ctx context.Context, state *State, stage Stage) error {
	var (
		result search.Result
		err    error
	)
	switch stage {
	case StageSemantic:
		result, err = o.searcher.Semantic(ctx, state.Query)
	case StageHybrid:
		result, err = o.searcher.Hybrid(ctx, state.Query)
	case StageContextAware:
		result, err = o.searcher.ContextAware(ctx, state.Query)
	}

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if !errors.Is(err, search.ErrRetrieval) {
			err = fmt.Errorf("%w: %w", search.ErrRetrieval, err)
		}
		state.Candidates = []search.Candidate{}
		state.Error = fmt.Sprintf("%s failed: %v", stageLabel[stage], err)
		state.Reasoning = state.Error
		o.logger.Warn("retrieval failed",
			zap.String("search_id", state.SearchID),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return err
	}

	state.Candidates = result.Candidates
	state.Reasoning = result.Reasoning
	state.Recommendation = result.Recommendation
	state.Degraded = result.Degraded
	return nil
}

// rerank is the single sort point and enforces the limit.
func rerank(state *State) {
	search.SortCandidates(state.Candidates)
	if state.Query.Limit > 0 && len(state.Candidates) > state.Query.Limit {
		state.Candidates = state.Candidates[:state.Query.Limit]
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, state *State) {
	if o.checkpoints == nil {
		return
	}
	data, err := codec.Marshal(state)
	if err != nil {
		o.logger.Warn("failed to encode checkpoint", zap.Error(err))
		return
	}
	if err := o.checkpoints.Put(ctx, state.ThreadID, data); err != nil {
		o.logger.Warn("failed to write checkpoint", zap.String("thread_id", state.ThreadID), zap.Error(err))
	}
}

func (o *Orchestrator) record(state *State, failed bool, elapsed time.Duration) {
	if o.history == nil || state.Query.Text == "" {
		return
	}
	err := o.history.RecordSearch(storage.SearchRecord{
		SearchID:     state.SearchID,
		ThreadID:     state.ThreadID,
		QueryHash:    storage.HashQuery(state.Query.Text),
		Mode:         string(state.Query.Mode),
		Timestamp:    time.Now(),
		ResultsCount: len(state.Candidates),
		Duration:     elapsed,
		Failed:       failed,
	})
	if err != nil {
		o.logger.Warn("failed to record search", zap.Error(err))
	}
}

// History decodes every snapshot stored for a thread, oldest first.
func (o *Orchestrator) History(ctx context.Context, threadID string) ([]State, error) {
	if o.checkpoints == nil {
		return nil, nil
	}
	if threadID == "" {
		threadID = checkpoint.DefaultThread
	}

	cps, err := o.checkpoints.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	states := make([]State, 0, len(cps))
	for _, cp := range cps {
		var s State
		if err := codec.Unmarshal(cp.State, &s); err != nil {
			return nil, fmt.Errorf("decode checkpoint %d: %w", cp.Seq, err)
		}
		states = append(states, s)
	}
	return states, nil
}
