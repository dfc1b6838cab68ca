package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cogtrial/adapters/excel"
	"cogtrial/domain/trial"
	"cogtrial/internal"
	"cogtrial/internal/config"
	"cogtrial/internal/errors"
	"cogtrial/internal/hier"
	"cogtrial/internal/report"
	"cogtrial/internal/singlelevel"
)

// ReportService runs the full comparison pipeline: ingest, reshape,
// standardize, fit both models, derive contrasts, and render the report.
// Each stage consumes an immutable snapshot of its predecessor's output.
type ReportService struct {
	log *internal.Logger
}

// NewReportService creates the batch report runner.
func NewReportService(logger *internal.Logger) *ReportService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ReportService{log: logger}
}

// Result summarizes one report run.
type Result struct {
	RunID        string
	Participants int
	Rows         int
	SingleLevel  []trial.ContrastEstimate
	Hierarchical []trial.ContrastEstimate
	Merged       []trial.ContrastEstimate
	RHat         []float64
	OutputDir    string
	RuntimeMs    int64

	meta report.Meta
}

// Run executes the analysis against the configured spreadsheet and writes
// tables, figures and the narrative under the output directory. Model-fit
// failures are fatal: there is no retry and no partial output.
func (s *ReportService) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	s.log.Info("report run %s starting (input=%s)", runID, cfg.Data.FilePath)

	reader := excel.NewDataReader(excel.SheetConfig{
		FilePath: cfg.Data.FilePath,
		Sheet:    cfg.Data.Sheet,
	})
	sheet, err := reader.ReadData()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read input sheet")
	}
	records, err := excel.LoadWideRecords(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map sheet rows onto trial records")
	}

	result, err := s.Analyze(ctx, runID, records, cfg.Sampler)
	if err != nil {
		return nil, err
	}

	meta := result.meta
	meta.Input = cfg.Data.FilePath
	if err := s.render(cfg.Output.Dir, runID, meta, result); err != nil {
		return nil, err
	}

	result.OutputDir = cfg.Output.Dir
	result.RuntimeMs = time.Since(startTime).Milliseconds()
	s.log.Info("report run %s finished in %dms", runID, result.RuntimeMs)
	return result, nil
}

// Analyze performs the in-memory part of the pipeline on already-loaded
// records: reshape, standardize, both model fits and the merged contrast
// table. Separated from Run so tests and synthetic dry runs skip the
// filesystem surfaces.
func (s *ReportService) Analyze(ctx context.Context, runID string, records []trial.WideRecord, samplerCfg config.SamplerConfig) (*Result, error) {
	// 1. Reshape: wide -> long -> paired, excluding incomplete pairs per outcome.
	long := trial.Long(records)
	paired, dropped := trial.PairByOutcome(long)
	for _, outcome := range trial.Outcomes() {
		if n := dropped[outcome]; n > 0 {
			s.log.Debug("outcome %s: dropped %d participants missing a timepoint", outcome, n)
		}
	}

	// 2. Standardize on the pre distribution, flipping reversed outcomes.
	standardized, scales, err := trial.Standardize(paired)
	if err != nil {
		return nil, errors.Wrap(err, "standardization failed")
	}

	participants := make([]trial.Participant, len(records))
	for i, rec := range records {
		participants[i] = rec.Participant
	}
	rowsByOutcome, err := trial.JoinGroups(standardized, participants)
	if err != nil {
		return nil, errors.Wrap(err, "failed to join group assignments")
	}
	totalRows := 0
	for _, rows := range rowsByOutcome {
		totalRows += len(rows)
	}

	// 3. No pooling: one OLS per outcome.
	singleEstimates, _, err := singlelevel.Run(rowsByOutcome)
	if err != nil {
		return nil, errors.Wrap(err, "single-level model failed")
	}
	s.log.Info("single-level fits done (%d contrast estimates)", len(singleEstimates))

	// 4. Partial pooling: one joint multilevel model.
	model, err := hier.NewModel(rowsByOutcome, hier.Config{
		Seed:       samplerCfg.Seed,
		Chains:     samplerCfg.Chains,
		Iterations: samplerCfg.Iterations,
		Warmup:     samplerCfg.Warmup,
		Priors:     hier.DefaultPriors(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "hierarchical design construction failed")
	}
	posterior, err := model.Sample(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "hierarchical sampling failed")
	}
	hierEstimates := posterior.Contrasts()
	s.log.Info("hierarchical sampling done (%d retained draws across %d chains)",
		posterior.NumDraws(), samplerCfg.Chains)

	rhat, err := posterior.RHat()
	if err != nil {
		s.log.Warn("skipping convergence diagnostics: %v", err)
		rhat = nil
	} else {
		s.log.Info("split-chain R-hat: %v", rhat)
	}

	// 5. Compare.
	merged := report.Merge(singleEstimates, hierEstimates)

	pooled := make(map[trial.Contrast]trial.ContrastEstimate, len(trial.Contrasts()))
	for _, contrast := range trial.Contrasts() {
		pooled[contrast] = posterior.PooledContrast(contrast)
	}

	return &Result{
		RunID:        runID,
		Participants: len(records),
		Rows:         totalRows,
		SingleLevel:  singleEstimates,
		Hierarchical: hierEstimates,
		Merged:       merged,
		RHat:         rhat,
		meta: report.Meta{
			RunID:        runID,
			Participants: len(records),
			Rows:         totalRows,
			Dropped:      dropped,
			Scales:       scales,
			Pooled:       pooled,
			RHat:         rhat,
		},
	}, nil
}

// render writes the CSV tables, both comparison figures and the narrative.
func (s *ReportService) render(dir, runID string, meta report.Meta, result *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	tables := map[string][]trial.ContrastEstimate{
		"contrasts_single_level.csv": result.SingleLevel,
		"contrasts_hierarchical.csv": result.Hierarchical,
		"contrasts_merged.csv":       result.Merged,
	}
	for name, rows := range tables {
		if err := report.WriteCSV(filepath.Join(dir, name), rows); err != nil {
			return errors.Wrapf(err, "failed to write %s", name)
		}
	}

	for _, contrast := range trial.Contrasts() {
		name := fmt.Sprintf("figure_%s_%s.png", contrast, shortID(runID))
		if err := report.SaveComparisonFigure(filepath.Join(dir, name), contrast, result.Merged, meta.Pooled[contrast]); err != nil {
			return errors.Wrapf(err, "failed to render figure for contrast %s", contrast)
		}
	}

	if err := report.WriteNarrative(dir, meta, result.Merged); err != nil {
		return errors.Wrap(err, "failed to write narrative")
	}
	return nil
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
