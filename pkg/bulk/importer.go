// Package bulk pushes many profiles through the Harmony client concurrently.
package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/natserract/harmony/pkg/harmony"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultMaxConcurrency is the number of profiles in flight at once.
const DefaultMaxConcurrency = 4

// Mode selects the record operation applied to every profile.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// Metrics tracks the import outcome counts
type Metrics struct {
	Succeeded int
	Failed    int
	mu        sync.Mutex
}

// AddSuccess increments the succeeded count
func (m *Metrics) AddSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Succeeded++
}

// AddFailure increments the failed count
func (m *Metrics) AddFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed++
}

// Total returns the number of processed profiles
func (m *Metrics) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Succeeded + m.Failed
}

// Outcome is the result for one input profile.
type Outcome struct {
	Index       int
	CustomerKey string
	LogID       int64
	Err         error
}

// Report holds the per-profile outcomes in input order.
type Report struct {
	Outcomes []Outcome
	Metrics  *Metrics
	Duration time.Duration
}

// Failures returns the outcomes that carry an error.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Importer runs create or update for a batch of profiles
type Importer struct {
	client         harmony.HarmonyClient
	maxConcurrency int
	logger         *zap.Logger
}

// NewImporter creates an importer with a production logger
func NewImporter(client harmony.HarmonyClient, maxConcurrency int) *Importer {
	logger, _ := zap.NewProduction()
	return NewImporterWithLogger(client, maxConcurrency, logger)
}

// NewImporterWithLogger creates an importer with the given logger.
// maxConcurrency <= 0 selects DefaultMaxConcurrency.
func NewImporterWithLogger(client harmony.HarmonyClient, maxConcurrency int, logger *zap.Logger) *Importer {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Importer{
		client:         client,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Import applies mode to every profile. A failed profile never stops the rest;
// the returned error is non-nil only for an unknown mode.
func (i *Importer) Import(ctx context.Context, profiles []harmony.Profile, mode Mode) (*Report, error) {
	var op func(context.Context, harmony.Profile) (*harmony.Result, error)
	switch mode {
	case ModeCreate:
		op = i.client.CreateRecord
	case ModeUpdate:
		op = i.client.UpdateRecord
	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}

	startTime := time.Now()
	i.logger.Info("Starting profile import",
		zap.String("mode", string(mode)),
		zap.Int("profiles", len(profiles)),
		zap.Int("max_concurrency", i.maxConcurrency))

	report := &Report{
		Outcomes: make([]Outcome, len(profiles)),
		Metrics:  &Metrics{},
	}

	p := pool.New().WithMaxGoroutines(i.maxConcurrency)
	for idx, profile := range profiles {
		idx, profile := idx, profile
		p.Go(func() {
			key, _ := profile.CustomerKey()
			outcome := Outcome{Index: idx, CustomerKey: key}

			res, err := op(ctx, profile)
			if err != nil {
				outcome.Err = err
				outcome.LogID, _ = harmony.LogID(err)
				report.Metrics.AddFailure()
				i.logger.Error("Failed to import profile",
					zap.Int("index", idx),
					zap.String("customer_key", key),
					zap.Int64("log_id", outcome.LogID),
					zap.Error(err))
			} else {
				outcome.LogID = res.LogID
				report.Metrics.AddSuccess()
			}
			report.Outcomes[idx] = outcome
		})
	}
	p.Wait()

	report.Duration = time.Since(startTime)
	i.logger.Info("Completed profile import",
		zap.Duration("duration", report.Duration),
		zap.Int("succeeded", report.Metrics.Succeeded),
		zap.Int("failed", report.Metrics.Failed))

	return report, nil
}

// ReadProfiles decodes a JSON array of profile objects.
func ReadProfiles(r io.Reader) ([]harmony.Profile, error) {
	var profiles []harmony.Profile
	if err := json.NewDecoder(r).Decode(&profiles); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("no profiles in input")
		}
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	return profiles, nil
}
