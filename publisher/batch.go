package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/intimehq/txlog-publisher/txlog"
)

// BatchPublisher delivers formatted events to a single subject with bounded
// concurrency and per-event retry. Events are dispatched in consecutive
// chunks of at most BatchSize; within a chunk every not-yet-confirmed event
// of a round is dispatched concurrently and jointly awaited. Failed events
// are retried up to MaxRetries additional rounds with the backoff policy's
// delay between rounds. Every input event ends up either confirmed or in the
// returned failed list.
type BatchPublisher struct {
	sink       Sink
	subject    string
	batchSize  int
	maxRetries int
	backoff    BackoffPolicy
}

// NewBatchPublisher builds a publisher for one destination subject.
func NewBatchPublisher(sink Sink, subject string, batchSize, maxRetries int, backoff BackoffPolicy) (*BatchPublisher, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", maxRetries)
	}
	return &BatchPublisher{
		sink:       sink,
		subject:    subject,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		backoff:    backoff,
	}, nil
}

// pending is one event with its pre-serialized payload.
type pending struct {
	event   txlog.Event
	payload []byte
}

// Publish delivers events and returns the confirmed count and the events that
// exhausted their retry budget. An unreachable sink is fatal for the whole
// call: nothing is dispatched and ErrNotConnected is returned. Serialization
// failures are detected before dispatch and counted as failed without
// consuming a retry attempt. Confirmed + len(Failed) == len(events) holds on
// every return, including cancellation.
func (b *BatchPublisher) Publish(ctx context.Context, events []txlog.Event) (Outcome, error) {
	if len(events) == 0 {
		return Outcome{}, nil
	}
	if !b.sink.Connected() {
		return Outcome{}, ErrNotConnected
	}

	var out Outcome

	// Serialize up front so a bad event cannot burn retry rounds.
	queue := make([]pending, 0, len(events))
	for _, ev := range events {
		payload, err := ev.Encode()
		if err != nil {
			log.Error().Err(err).Str("trace_id", ev.TraceID()).Msg("Failed to serialize event, excluding from batch")
			out.Failed = append(out.Failed, ev)
			continue
		}
		queue = append(queue, pending{event: ev, payload: payload})
	}

	totalChunks := (len(queue) + b.batchSize - 1) / b.batchSize
	for start := 0; start < len(queue); start += b.batchSize {
		end := min(start+b.batchSize, len(queue))
		chunk := queue[start:end]

		confirmed, failed, err := b.publishChunk(ctx, chunk)
		out.Confirmed += confirmed
		out.Failed = append(out.Failed, failed...)

		log.Debug().
			Int("chunk", start/b.batchSize+1).
			Int("chunks", totalChunks).
			Int("confirmed", confirmed).
			Int("failed", len(failed)).
			Msg("Chunk complete")

		if err != nil {
			// Cancellation mid-flight: remaining chunks were never dispatched,
			// account for them in the failed list so nothing is silently dropped.
			for _, p := range queue[end:] {
				out.Failed = append(out.Failed, p.event)
			}
			return out, err
		}
	}

	if len(out.Failed) > 0 {
		log.Error().
			Int("confirmed", out.Confirmed).
			Int("failed", len(out.Failed)).
			Int("max_retries", b.maxRetries).
			Msg("Batch finished with permanent failures")
	}
	return out, nil
}

// publishChunk runs the retry protocol for one chunk. Each round dispatches
// every unconfirmed event concurrently; between non-final rounds it sleeps
// the backoff delay for the current attempt index.
func (b *BatchPublisher) publishChunk(ctx context.Context, chunk []pending) (int, []txlog.Event, error) {
	confirmed := 0
	var failed []txlog.Event

	queue := chunk
	for attempt := 0; len(queue) > 0; attempt++ {
		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Int("max_attempts", b.maxRetries+1).
				Int("remaining", len(queue)).
				Msg("Retrying failed events")
		}

		results := make([]error, len(queue))
		var wg sync.WaitGroup
		for i := range queue {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				seq, err := b.sink.Publish(ctx, b.subject, queue[i].payload)
				if err == nil {
					log.Debug().Uint64("seq", seq).Str("subject", b.subject).Msg("Event acknowledged")
				}
				results[i] = err
			}(i)
		}
		wg.Wait()

		var next []pending
		for i, err := range results {
			switch {
			case err == nil:
				confirmed++
			case attempt >= b.maxRetries:
				log.Error().Err(err).
					Str("trace_id", queue[i].event.TraceID()).
					Msg("Event failed after final attempt")
				failed = append(failed, queue[i].event)
			default:
				next = append(next, queue[i])
			}
		}
		queue = next

		if len(queue) > 0 && !sleepCtx(ctx, b.backoff.Delay(attempt)) {
			for _, p := range queue {
				failed = append(failed, p.event)
			}
			return confirmed, failed, ctx.Err()
		}
	}

	return confirmed, failed, nil
}
