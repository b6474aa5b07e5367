// Package pipeline implements C12: the orchestrator that drives a Ren'Py
// project through spec.md §4.5's staged state machine, from path validation
// through archive extraction, stub generation, parsing, translation,
// saving, and runtime-hook installation.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/diagnostics"
	"github.com/renlocalizer/renlocalizer/internal/logging"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/rpy"
	"github.com/renlocalizer/renlocalizer/internal/xlate"
)

// Translator is the slice of xlate.Manager the orchestrator depends on,
// small enough to fake in tests without building a real Manager.
type Translator interface {
	TranslateBatch(ctx context.Context, reqs []model.TranslationRequest) []model.TranslationResult
}

// Orchestrator drives one pipeline run at a time. It is not safe to call Run
// concurrently from two goroutines on the same Orchestrator; Stop is.
type Orchestrator struct {
	cfg       *config.Config
	manager   Translator
	rules     *rpy.NeverTranslateRules
	history   *diagnostics.History

	stopRequested atomic.Bool

	mu         sync.Mutex
	events     chan Event
	lastLogged time.Time
}

// New builds an Orchestrator. rules and history may be nil (no
// never-translate rules, no run-history persistence, respectively).
func New(cfg *config.Config, manager Translator, rules *rpy.NeverTranslateRules, history *diagnostics.History) *Orchestrator {
	return &Orchestrator{cfg: cfg, manager: manager, rules: rules, history: history}
}

// Events returns the channel the current (or most recent) run writes to.
// It is only valid to call this after Run has started; the channel closes
// when the run finishes.
func (o *Orchestrator) Events() <-chan Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events
}

// Stop requests cancellation. Every long-running loop in Run checks this
// flag between work items; in-flight adapter calls are allowed to finish,
// but their results are discarded once the flag is observed.
func (o *Orchestrator) Stop() {
	o.stopRequested.Store(true)
}

func (o *Orchestrator) stopped() bool {
	return o.stopRequested.Load()
}

// Run drives inputPath through the full state machine and returns exactly
// once, with a PipelineResult describing the terminal outcome. It never
// panics or returns an error directly — spec.md §7 requires every failure
// to flow out as a PipelineResult plus a terminal log event.
func (o *Orchestrator) Run(ctx context.Context, inputPath string) *model.PipelineResult {
	return o.RunWithStartSignal(ctx, inputPath, nil)
}

// RunWithStartSignal behaves like Run but, once the event channel exists,
// sends it on started (if non-nil) before any stage work begins. Consumers
// that launch Run in a goroutine and immediately range over Events() would
// otherwise race the channel's creation; this closes that window without
// forcing every caller to plumb a signal channel through Run's simpler
// signature.
func (o *Orchestrator) RunWithStartSignal(ctx context.Context, inputPath string, started chan<- <-chan Event) *model.PipelineResult {
	o.stopRequested.Store(false)

	o.mu.Lock()
	o.events = make(chan Event, 256)
	events := o.events
	o.mu.Unlock()
	defer close(events)

	if started != nil {
		started <- events
	}

	run := &run{
		o:       o,
		ctx:     ctx,
		events:  events,
		lang:    o.cfg.Translation.TargetLang,
		stats:   &model.PipelineStats{},
		strings: make(map[string]string),
	}

	result := run.execute(inputPath)
	o.emit(events, Event{Kind: EventFinished, Result: result})
	return result
}

// run holds the mutable state of a single Orchestrator.Run invocation,
// separate from Orchestrator itself so Run is safe to call again later.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	events chan Event

	gameDir string
	tlDir   string
	lang    string

	hasRPY   bool
	hasRPYC  bool
	rpaPaths []string

	files []model.TranslationFile
	diag  []model.FileDiagnostic

	// strings accumulates the final original -> translated mapping for
	// strings.json; first write wins on a conflicting duplicate.
	strings map[string]string

	stats *model.PipelineStats
}

func (r *run) execute(inputPath string) *model.PipelineResult {
	if err := r.o.cfg.Validate(); err != nil {
		return r.fatal(model.StageValidating, err)
	}

	gameDir, err := r.validate(inputPath)
	if err != nil {
		return r.fatal(model.StageValidating, err)
	}
	r.gameDir = gameDir
	if r.cancelled() {
		return r.cancelledResult()
	}

	if err := r.unrpa(); err != nil {
		return r.fatal(model.StageUnrpa, err)
	}
	if r.cancelled() {
		return r.cancelledResult()
	}

	if err := r.generate(); err != nil {
		return r.fatal(model.StageGenerating, err)
	}
	if r.cancelled() {
		return r.cancelledResult()
	}

	if err := r.parse(); err != nil {
		return r.fatal(model.StageParsing, err)
	}
	if r.cancelled() {
		return r.cancelledResult()
	}

	if err := r.translate(); err != nil {
		return r.fatal(model.StageTranslating, err)
	}
	if r.cancelled() {
		return r.cancelledResult()
	}

	if err := r.save(); err != nil {
		return r.fatal(model.StageSaving, err)
	}

	r.stage(model.StageCompleted, fmt.Sprintf("translated %d/%d strings", r.stats.Translated, r.stats.Total))
	return &model.PipelineResult{
		Success:    true,
		Message:    "completed",
		Stage:      model.StageCompleted,
		Stats:      r.stats,
		OutputPath: r.tlDir,
	}
}

func (r *run) cancelled() bool {
	if r.o.stopped() {
		return true
	}
	select {
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

func (r *run) cancelledResult() *model.PipelineResult {
	r.stage(model.StageIdle, "stopped by user")
	return &model.PipelineResult{Success: false, Message: "stopped by user", Stage: model.StageIdle, Stats: r.stats}
}

func (r *run) fatal(stage model.Stage, err error) *model.PipelineResult {
	r.stage(model.StageError, err.Error())
	return &model.PipelineResult{Success: false, Message: err.Error(), Stage: model.StageError, Stats: r.stats, Error: err}
}

// stage emits a stage_changed event and logs it unconditionally — stage
// transitions are not subject to the log-message throttle.
func (r *run) stage(stage model.Stage, message string) {
	log.WithField("stage", stage).Info(message)
	r.o.emit(r.events, Event{Kind: EventStageChanged, Stage: stage, Message: message})
}

func (r *run) progress(current, total int, text string) {
	r.o.emit(r.events, Event{Kind: EventProgress, Current: current, Total: total, Text: text})
}

// logMessage emits a non-critical log_message event, throttled to the
// ~80ms minimum interval spec.md §4.5 requires so a tight loop over
// thousands of TL entries can't flood a slow UI consumer.
func (r *run) logMessage(level, message string) {
	log.Debug(message)
	if level == "warn" || level == "error" {
		r.o.emit(r.events, Event{Kind: EventLog, Level: level, Message: message})
		return
	}
	r.o.mu.Lock()
	now := time.Now()
	throttle := now.Sub(r.o.lastLogged) < logging.DefaultThrottleInterval
	if !throttle {
		r.o.lastLogged = now
	}
	r.o.mu.Unlock()
	if throttle {
		return
	}
	r.o.emit(r.events, Event{Kind: EventLog, Level: level, Message: message})
}

func (r *run) warn(title, message string) {
	log.WithField("title", title).Warn(message)
	r.o.emit(r.events, Event{Kind: EventWarning, Title: title, Message: message})
}

// emit is non-blocking: a full event channel (a consumer that stopped
// reading) must never stall the pipeline itself.
func (o *Orchestrator) emit(events chan Event, e Event) {
	select {
	case events <- e:
	default:
		log.Warn("pipeline: event channel full, dropping event")
	}
}
