package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// PublishBuckets for single bus publish round trips
	PublishBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// CycleBuckets for whole extract-publish cycles, fetch through checkpoint
	CycleBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	// FetchBuckets for source queries
	FetchBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
)

// Pipeline Metrics
var (
	// CyclesTotal counts completed cycles by result (success, failed)
	CyclesTotal CounterVec = noopCounterVec{}

	// CycleDurationSeconds measures full cycle latency
	CycleDurationSeconds Histogram = NoopStat{}

	// RecordsFetchedTotal counts records read from the transaction log
	RecordsFetchedTotal Counter = NoopStat{}

	// RecordsSkippedTotal counts records dropped by the event type filter
	RecordsSkippedTotal Counter = NoopStat{}

	// EventsConfirmedTotal counts events acknowledged by the bus
	EventsConfirmedTotal Counter = NoopStat{}

	// EventsFailedTotal counts events that exhausted every publish attempt
	EventsFailedTotal Counter = NoopStat{}

	// FetchDurationSeconds measures source query latency
	FetchDurationSeconds Histogram = NoopStat{}

	// PublishDurationSeconds measures batch publish latency
	PublishDurationSeconds Histogram = NoopStat{}

	// WatermarkLagSeconds tracks age of the checkpoint watermark
	WatermarkLagSeconds Gauge = NoopStat{}

	// CheckpointWritesTotal counts checkpoint mutations by result (success, failed)
	CheckpointWritesTotal CounterVec = noopCounterVec{}
)

func registerMetrics() {
	CyclesTotal = NewCounterVec(
		"cycles_total",
		"Completed extract-publish cycles by result",
		[]string{"result"},
	)
	CycleDurationSeconds = NewHistogramWithBuckets(
		"cycle_duration_seconds",
		"Full cycle duration in seconds",
		CycleBuckets,
	)
	RecordsFetchedTotal = NewCounter(
		"records_fetched_total",
		"Total records read from the transaction log",
	)
	RecordsSkippedTotal = NewCounter(
		"records_skipped_total",
		"Total records dropped by the event type filter",
	)
	EventsConfirmedTotal = NewCounter(
		"events_confirmed_total",
		"Total events acknowledged by the message bus",
	)
	EventsFailedTotal = NewCounter(
		"events_failed_total",
		"Total events that exhausted every publish attempt",
	)
	FetchDurationSeconds = NewHistogramWithBuckets(
		"fetch_duration_seconds",
		"Source query duration in seconds",
		FetchBuckets,
	)
	PublishDurationSeconds = NewHistogramWithBuckets(
		"publish_duration_seconds",
		"Batch publish duration in seconds",
		PublishBuckets,
	)
	WatermarkLagSeconds = NewGauge(
		"watermark_lag_seconds",
		"Seconds since the last successful checkpoint watermark",
	)
	CheckpointWritesTotal = NewCounterVec(
		"checkpoint_writes_total",
		"Checkpoint mutations by result",
		[]string{"result"},
	)
}
