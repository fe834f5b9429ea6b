// Package sim replays one batch's life day by day against its planned
// schedule entries, emitting a total-ordered event stream and daily state
// snapshots. Each batch is an independent strict-forward state machine; a
// malformed batch fails alone and never aborts its partition.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"batchcore/pkg/domain"
)

// Error is a batch-scoped simulation failure.
type Error struct {
	BatchID string
	Reason  string

	cause error
}

func (e Error) Error() string {
	return fmt.Sprintf("simulation of batch %s failed: %s", e.BatchID, e.Reason)
}

// Unwrap exposes the underlying cause, so callers can distinguish a run
// interrupted by context cancellation from a genuine batch defect.
func (e Error) Unwrap() error { return e.cause }

// Recorder receives simulation output as it is produced. Implementations are
// the persistence collaborator; a write failure fails the batch.
type Recorder interface {
	RecordDailyState(ctx context.Context, state domain.DailyState) error
	RecordEvent(ctx context.Context, event domain.Event) error
}

// Config tunes the biological model. All stochastic draws are seeded from
// the batch identifier, so identical config and schedule reproduce identical
// output.
type Config struct {
	InitialPopulation  int     `yaml:"initial_population" json:"initial_population"`
	InitialWeightG     float64 `yaml:"initial_weight_g" json:"initial_weight_g"`
	DailyMortalityRate float64 `yaml:"daily_mortality_rate" json:"daily_mortality_rate"`
	SampleIntervalDays int     `yaml:"sample_interval_days" json:"sample_interval_days"`
	SampleSize         int     `yaml:"sample_size" json:"sample_size"`
	// FeedRate is daily feed as a fraction of biomass.
	FeedRate float64 `yaml:"feed_rate" json:"feed_rate"`
	// HarvestJitterFrac randomises each batch's transfer threshold by up to
	// the given fraction, deterministically per batch. Zero keeps the
	// threshold fixed for every batch.
	HarvestJitterFrac float64          `yaml:"harvest_jitter_frac" json:"harvest_jitter_frac"`
	Temperature       TemperatureModel `yaml:"temperature" json:"temperature"`
	// Seed perturbs every per-batch stream; keep it fixed for reproducible
	// reruns under one idempotency key.
	Seed int64 `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the generation profile used by batchgen.
func DefaultConfig() Config {
	return Config{
		InitialPopulation:  100_000,
		InitialWeightG:     0.2,
		DailyMortalityRate: 0.0004,
		SampleIntervalDays: 14,
		SampleSize:         30,
		FeedRate:           0.012,
		HarvestJitterFrac:  0,
		Temperature:        DefaultTemperatureModel(),
	}
}

// BatchResult summarises one simulated batch.
type BatchResult struct {
	BatchID     string
	Days        int
	States      int
	Events      int
	FinalCount  int
	FinalWeight float64
	Harvested   bool
	// ActualEndDays maps stage name to the batch-relative day the stage
	// actually ended, which precedes the planned end when a transfer
	// trigger fires.
	ActualEndDays map[string]int
}

// Engine simulates batches against an immutable schedule.
type Engine struct {
	cfg      Config
	schedule domain.Schedule
}

// NewEngine constructs an engine over the planned schedule.
func NewEngine(cfg Config, schedule domain.Schedule) *Engine {
	return &Engine{cfg: cfg, schedule: schedule}
}

// SimulateBatch replays one batch. Output ordering is strict: for every day,
// the daily state precedes that day's events, and days ascend monotonically.
func (e *Engine) SimulateBatch(ctx context.Context, plan domain.BatchPlan, rec Recorder) (BatchResult, error) {
	res := BatchResult{BatchID: plan.BatchID, ActualEndDays: map[string]int{}}
	if plan.Outcome != domain.OutcomePlanned {
		return res, Error{BatchID: plan.BatchID, Reason: "batch was not planned"}
	}
	if len(plan.Entries) == 0 {
		return res, Error{BatchID: plan.BatchID, Reason: "no schedule entries"}
	}
	for i, entry := range plan.Entries {
		if err := entry.Validate(); err != nil {
			return res, Error{BatchID: plan.BatchID, Reason: err.Error()}
		}
		if i > 0 && entry.StartDay != plan.Entries[i-1].EndDay {
			return res, Error{BatchID: plan.BatchID, Reason: fmt.Sprintf("gap before stage %s", entry.Stage)}
		}
	}

	rng := rand.New(rand.NewSource(e.batchSeed(plan.BatchID)))
	population := e.cfg.InitialPopulation
	weight := e.cfg.InitialWeightG
	elapsed := 0

	for i, entry := range plan.Entries {
		stage, ok := e.schedule.Stage(entry.Stage)
		if !ok {
			return res, Error{BatchID: plan.BatchID, Reason: fmt.Sprintf("unknown stage %s", entry.Stage)}
		}
		group, ok := e.schedule.Group(entry.GroupID)
		if !ok {
			return res, Error{BatchID: plan.BatchID, Reason: fmt.Sprintf("unknown group %s", entry.GroupID)}
		}
		threshold := e.stageThreshold(stage, plan.BatchID)

		stageStart := elapsed
		stageEnd, err := e.runStage(ctx, stageRun{
			plan: plan, entry: entry, stage: stage, kind: group.Kind,
			threshold: threshold, rng: rng,
			population: &population, weight: &weight, elapsed: &elapsed,
			rec: rec, res: &res,
		})
		if err != nil {
			return res, err
		}
		res.ActualEndDays[stage.Name] = stageEnd

		last := i == len(plan.Entries)-1
		if last {
			if err := e.emit(ctx, rec, &res, domain.Event{
				BatchID: plan.BatchID, Day: stageEnd, Type: domain.EventHarvest,
				Harvest: &domain.HarvestPayload{
					Count:      population,
					AvgWeightG: weight,
					BiomassKG:  biomassKG(population, weight),
					Early:      stageEnd-stageStart < entry.Days(),
				},
			}); err != nil {
				return res, err
			}
			res.Harvested = true
		} else {
			next := plan.Entries[i+1]
			// Day-0 of the next stage inherits the transferred population
			// and the outgoing weight unchanged.
			if err := e.emit(ctx, rec, &res, domain.Event{
				BatchID: plan.BatchID, Day: stageEnd, Type: domain.EventTransfer,
				Transfer: &domain.TransferPayload{
					FromStage:  entry.Stage,
					ToStage:    next.Stage,
					FromGroup:  entry.GroupID,
					ToGroup:    next.GroupID,
					Count:      population,
					AvgWeightG: weight,
				},
			}); err != nil {
				return res, err
			}
		}
	}

	res.Days = elapsed
	res.FinalCount = population
	res.FinalWeight = weight
	return res, nil
}

type stageRun struct {
	plan       domain.BatchPlan
	entry      domain.ScheduleEntry
	stage      domain.StageDefinition
	kind       domain.ResourceKind
	threshold  float64
	rng        *rand.Rand
	population *int
	weight     *float64
	elapsed    *int
	rec        Recorder
	res        *BatchResult
}

// runStage advances one stage day by day and returns the batch-relative day
// the stage ended: the planned boundary, or earlier when average weight
// crosses the transfer threshold.
func (e *Engine) runStage(ctx context.Context, run stageRun) (int, error) {
	duration := run.entry.Days()
	for d := 0; d < duration; d++ {
		if err := ctx.Err(); err != nil {
			return 0, Error{BatchID: run.plan.BatchID, Reason: err.Error(), cause: err}
		}
		day := *run.elapsed

		state := domain.DailyState{
			BatchID:    run.plan.BatchID,
			Day:        day,
			Stage:      run.stage.Name,
			Population: *run.population,
			AvgWeightG: *run.weight,
			BiomassKG:  biomassKG(*run.population, *run.weight),
		}
		if err := run.rec.RecordDailyState(ctx, state); err != nil {
			return 0, Error{BatchID: run.plan.BatchID, Reason: fmt.Sprintf("persist daily state: %v", err), cause: err}
		}
		run.res.States++

		if *run.population > 0 {
			if err := e.emit(ctx, run.rec, run.res, domain.Event{
				BatchID: run.plan.BatchID, Day: day, Type: domain.EventFeeding,
				Feeding: &domain.FeedingPayload{
					AmountKG:   biomassKG(*run.population, *run.weight) * e.cfg.FeedRate,
					FeedType:   feedTypeFor(run.stage.Name),
					Population: *run.population,
				},
			}); err != nil {
				return 0, err
			}
		}

		deaths := e.mortalityDraw(run.rng, *run.population)
		if deaths > 0 {
			*run.population -= deaths
			if err := e.emit(ctx, run.rec, run.res, domain.Event{
				BatchID: run.plan.BatchID, Day: day, Type: domain.EventMortality,
				Mortality: &domain.MortalityPayload{Count: deaths, Remaining: *run.population, Cause: "routine"},
			}); err != nil {
				return 0, err
			}
		}

		temp := e.cfg.Temperature.At(run.kind, run.entry.StartDay+d)
		*run.weight = GrowthStep(*run.weight, run.stage.TGC, temp, run.stage.MaxWeightG)
		if math.IsNaN(*run.weight) || math.IsInf(*run.weight, 0) {
			return 0, Error{BatchID: run.plan.BatchID, Reason: fmt.Sprintf("non-finite weight on day %d", day)}
		}

		if e.cfg.SampleIntervalDays > 0 && day > 0 && day%e.cfg.SampleIntervalDays == 0 {
			if err := e.emit(ctx, run.rec, run.res, domain.Event{
				BatchID: run.plan.BatchID, Day: day, Type: domain.EventGrowthSample,
				Sample: &domain.SamplePayload{SampleSize: e.cfg.SampleSize, AvgWeightG: *run.weight},
			}); err != nil {
				return 0, err
			}
		}

		*run.elapsed = day + 1

		// Transfer trigger is checked daily, not only at the planned
		// boundary, so actual stage lengths vary realistically.
		if run.threshold > 0 && *run.weight >= run.threshold {
			return *run.elapsed, nil
		}
	}
	return *run.elapsed, nil
}

func (e *Engine) emit(ctx context.Context, rec Recorder, res *BatchResult, ev domain.Event) error {
	if err := rec.RecordEvent(ctx, ev); err != nil {
		return Error{BatchID: ev.BatchID, Reason: fmt.Sprintf("persist %s event: %v", ev.Type, err), cause: err}
	}
	res.Events++
	return nil
}

// stageThreshold applies the optional deterministic per-batch jitter to the
// stage's transfer threshold.
func (e *Engine) stageThreshold(stage domain.StageDefinition, batchID string) float64 {
	if stage.TransferThresholdG <= 0 {
		return 0
	}
	if e.cfg.HarvestJitterFrac <= 0 {
		return stage.TransferThresholdG
	}
	jrng := rand.New(rand.NewSource(e.batchSeed(batchID + "/threshold")))
	factor := 1 + (jrng.Float64()*2-1)*e.cfg.HarvestJitterFrac
	return stage.TransferThresholdG * factor
}

// mortalityDraw converts the daily rate into a whole-fish death count,
// rounding the fractional remainder stochastically from the seeded stream.
func (e *Engine) mortalityDraw(rng *rand.Rand, population int) int {
	if population <= 0 || e.cfg.DailyMortalityRate <= 0 {
		return 0
	}
	expected := float64(population) * e.cfg.DailyMortalityRate
	deaths := int(expected)
	if rng.Float64() < expected-float64(deaths) {
		deaths++
	}
	if deaths > population {
		deaths = population
	}
	return deaths
}

func (e *Engine) batchSeed(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64()) ^ e.cfg.Seed
}

func biomassKG(population int, weightG float64) float64 {
	return float64(population) * weightG / 1000.0
}

func feedTypeFor(stage string) string {
	switch stage {
	case "fry":
		return "starter-crumb"
	case "smolt":
		return "transfer-pellet"
	default:
		return "grower-pellet"
	}
}
