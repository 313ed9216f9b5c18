package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intimehq/txlog-publisher/publisher"
	"github.com/intimehq/txlog-publisher/telemetry"
	"github.com/intimehq/txlog-publisher/tracker"
	"github.com/intimehq/txlog-publisher/txlog"
)

// State identifies the phase a cycle is in. A cycle walks the states in
// order and lands on StateDone or StateFailed.
type State int

const (
	StateFetching State = iota
	StateFormatting
	StatePublishing
	StateTracking
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StateFormatting:
		return "FORMATTING"
	case StatePublishing:
		return "PUBLISHING"
	case StateTracking:
		return "TRACKING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fetcher reads new transaction log records strictly after a watermark.
type Fetcher interface {
	FetchSince(ctx context.Context, since *time.Time, limit int) ([]txlog.Record, error)
}

// Publisher dispatches a formatted batch to the message bus.
type Publisher interface {
	Publish(ctx context.Context, events []txlog.Event) (publisher.Outcome, error)
}

// Orchestrator runs one extract-publish cycle at a time against a source,
// a bus publisher and a checkpoint store.
type Orchestrator struct {
	program    string
	maxRecords int

	source    Fetcher
	formatter *txlog.Formatter
	filter    *publisher.TypeFilter
	publisher Publisher
	tracker   tracker.Store

	now func() time.Time
}

func NewOrchestrator(
	program string,
	maxRecords int,
	source Fetcher,
	formatter *txlog.Formatter,
	filter *publisher.TypeFilter,
	pub Publisher,
	track tracker.Store,
) (*Orchestrator, error) {
	if program == "" {
		return nil, fmt.Errorf("program name is required")
	}
	if maxRecords <= 0 {
		return nil, fmt.Errorf("max records must be positive, got %d", maxRecords)
	}
	if source == nil || formatter == nil || pub == nil || track == nil {
		return nil, fmt.Errorf("source, formatter, publisher and tracker are required")
	}

	return &Orchestrator{
		program:    program,
		maxRecords: maxRecords,
		source:     source,
		formatter:  formatter,
		filter:     filter,
		publisher:  pub,
		tracker:    track,
		now:        time.Now,
	}, nil
}

// RunCycle executes a single cycle. The watermark only advances when at
// least one event was confirmed by the bus; every failure path records the
// error on the checkpoint before returning it.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := o.now()

	confirmed, err := o.runCycle(ctx, start)
	elapsed := o.now().Sub(start)
	telemetry.CycleDurationSeconds.Observe(elapsed.Seconds())

	if err != nil {
		telemetry.CyclesTotal.With("failed").Inc()
		log.Error().
			Err(err).
			Str("program", o.program).
			Dur("elapsed", elapsed).
			Msg("Cycle failed")
		o.recordFailure(ctx, err)
		return err
	}

	telemetry.CyclesTotal.With("success").Inc()
	if confirmed > 0 {
		log.Info().
			Str("program", o.program).
			Int("confirmed", confirmed).
			Dur("elapsed", elapsed).
			Msg("Cycle complete")
	}
	return nil
}

func (o *Orchestrator) runCycle(ctx context.Context, start time.Time) (int, error) {
	state := StateFetching

	since, err := o.tracker.Watermark(ctx, o.program)
	if err != nil {
		return 0, fmt.Errorf("%s: reading watermark: %w", state, err)
	}
	o.observeLag(since, start)

	fetchStart := o.now()
	records, err := o.source.FetchSince(ctx, since, o.maxRecords)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", state, err)
	}
	telemetry.FetchDurationSeconds.Observe(o.now().Sub(fetchStart).Seconds())
	telemetry.RecordsFetchedTotal.Add(float64(len(records)))

	if len(records) == 0 {
		log.Debug().Str("program", o.program).Msg("No new records")
		return 0, nil
	}
	log.Debug().
		Str("program", o.program).
		Int("records", len(records)).
		Msg("Fetched records")

	candidates := o.applyFilter(records)
	if len(candidates) == 0 {
		log.Debug().
			Str("program", o.program).
			Int("skipped", len(records)).
			Msg("All records filtered out")
		return 0, nil
	}

	state = StateFormatting
	events := make([]txlog.Event, 0, len(candidates))
	for _, rec := range candidates {
		ev, err := o.formatter.Format(rec)
		if err != nil {
			log.Warn().
				Err(err).
				Str("program", o.program).
				Msg("Dropping unformattable record")
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return 0, fmt.Errorf("%s: no record out of %d could be formatted", state, len(candidates))
	}

	state = StatePublishing
	publishStart := o.now()
	outcome, err := o.publisher.Publish(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", state, err)
	}
	telemetry.PublishDurationSeconds.Observe(o.now().Sub(publishStart).Seconds())
	telemetry.EventsConfirmedTotal.Add(float64(outcome.Confirmed))
	telemetry.EventsFailedTotal.Add(float64(len(outcome.Failed)))

	if len(outcome.Failed) > 0 {
		log.Warn().
			Str("program", o.program).
			Int("confirmed", outcome.Confirmed).
			Int("failed", len(outcome.Failed)).
			Msg("Some events were not delivered")
	}

	state = StateTracking
	if outcome.Confirmed == 0 {
		// Nothing made it to the bus. The watermark stays put so the
		// next cycle re-fetches the same records.
		log.Warn().
			Str("program", o.program).
			Int("attempted", len(events)).
			Msg("No events confirmed, checkpoint not advanced")
		return 0, nil
	}

	if err := o.tracker.MarkSuccess(ctx, o.program, start, int64(outcome.Confirmed)); err != nil {
		telemetry.CheckpointWritesTotal.With("failed").Inc()
		return 0, fmt.Errorf("%s: %w", state, err)
	}
	telemetry.CheckpointWritesTotal.With("success").Inc()
	return outcome.Confirmed, nil
}

func (o *Orchestrator) applyFilter(records []txlog.Record) []txlog.Record {
	if o.filter == nil {
		return records
	}

	kept := records[:0:0]
	for _, rec := range records {
		if o.filter.Match(rec) {
			kept = append(kept, rec)
		}
	}
	if skipped := len(records) - len(kept); skipped > 0 {
		telemetry.RecordsSkippedTotal.Add(float64(skipped))
	}
	return kept
}

func (o *Orchestrator) recordFailure(ctx context.Context, cause error) {
	if err := o.tracker.MarkFailure(ctx, o.program, cause.Error()); err != nil {
		telemetry.CheckpointWritesTotal.With("failed").Inc()
		log.Error().
			Err(err).
			Str("program", o.program).
			Msg("Unable to record cycle failure on checkpoint")
		return
	}
	telemetry.CheckpointWritesTotal.With("success").Inc()
}

func (o *Orchestrator) observeLag(watermark *time.Time, now time.Time) {
	if watermark == nil {
		return
	}
	telemetry.WatermarkLagSeconds.Set(now.Sub(*watermark).Seconds())
}
