// Package pipeline drives one consolidation run end to end: load and
// validate every submission file, merge the survivors into the master
// table, rank return reasons, and write the report artifacts.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/returns-cli/internal/config"
	"github.com/sells-group/returns-cli/internal/ingest"
	"github.com/sells-group/returns-cli/internal/merge"
	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/rank"
	"github.com/sells-group/returns-cli/internal/report"
	"github.com/sells-group/returns-cli/internal/schema"
	"github.com/sells-group/returns-cli/internal/store"
	"github.com/sells-group/returns-cli/internal/validate"
)

// Artifact file names, fixed so downstream tooling can find them.
const (
	MasterCSVName  = "master_database.csv"
	WorkbookName   = "master_database.xlsx"
	AnomalyCSVName = "error_report.csv"
	RankingCSVName = "reason_ranking.csv"
)

// Pipeline runs consolidations. The store is optional; without one the
// run still produces artifacts but leaves no registry record.
type Pipeline struct {
	cfg      *config.Config
	contract *schema.Contract
	store    store.Store
}

// New creates a Pipeline.
func New(cfg *config.Config, contract *schema.Contract, st store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, contract: contract, store: st}
}

// fileOutcome is what load+validate produced for one submission file.
// Outcomes are collected per file and reassembled in the caller's file
// order, so the merge sees a deterministic sequence no matter how the
// concurrent stage interleaved.
type fileOutcome struct {
	path string
	res  validate.Result
	err  error
}

// Run consolidates the given submission files. Files are processed in the
// order given; per-file failures are recorded in the result, never fatal.
// Run returns an error only when no file loads at all or an artifact
// cannot be written.
func (p *Pipeline) Run(ctx context.Context, files []string) (*model.RunResult, error) {
	start := time.Now()
	log := zap.L()

	params := model.RunParams{
		InputDir:    p.cfg.Input.Dir,
		OutputDir:   p.cfg.Output.Dir,
		SchemaPath:  p.cfg.Schema.Path,
		Files:       baseNames(files),
		Concurrency: p.concurrency(),
	}

	var runID string
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, params)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
		log = log.With(zap.String("run_id", runID))
	}

	result, anomalies, err := p.consolidate(ctx, log, files)
	if err != nil {
		if p.store != nil {
			if failErr := p.store.FailRun(ctx, runID, err.Error()); failErr != nil {
				log.Warn("pipeline: record failure", zap.Error(failErr))
			}
		}
		return nil, err
	}
	result.DurationMs = time.Since(start).Milliseconds()

	if p.store != nil {
		if err := p.store.SaveAnomalies(ctx, runID, anomalies); err != nil {
			return nil, eris.Wrap(err, "pipeline: save anomalies")
		}
		if err := p.store.CompleteRun(ctx, runID, result); err != nil {
			return nil, eris.Wrap(err, "pipeline: complete run")
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("files_loaded", result.FilesLoaded),
		zap.Int("files_failed", result.FilesFailed),
		zap.Int("records", result.Records),
		zap.Int("anomalies", result.Warnings+result.Blocking),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result, nil
}

func (p *Pipeline) consolidate(ctx context.Context, log *zap.Logger, files []string) (*model.RunResult, []model.Anomaly, error) {
	result := &model.RunResult{FilesTotal: len(files)}

	// Load and validate files concurrently. Each file is independent of
	// every other, so only the reassembly order matters.
	outcomes := make([]fileOutcome, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, path := range files {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.loadAndValidate(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: canceled")
	}

	var anomalies []model.Anomaly
	var batches [][]model.ValidatedRow
	for _, out := range outcomes {
		if out.err != nil {
			log.Warn("pipeline: file failed to load",
				zap.String("file", out.path),
				zap.Error(out.err),
			)
			result.FilesFailed++
			result.FailedFiles = append(result.FailedFiles, model.FileFailure{
				Path:  out.path,
				Error: out.err.Error(),
			})
			continue
		}
		result.FilesLoaded++
		result.RowsTotal += out.res.RowsTotal
		result.RowsValid += len(out.res.Valid)
		result.RowsExcluded += out.res.RowsExcluded
		anomalies = append(anomalies, out.res.Anomalies...)
		batches = append(batches, out.res.Valid)
	}

	if result.FilesLoaded == 0 {
		return nil, nil, eris.Errorf("pipeline: no readable submission files among %d", len(files))
	}

	table, mergeAnomalies := merge.Merge(p.contract, batches)
	anomalies = append(anomalies, mergeAnomalies...)

	result.Records = len(table.Records)
	for _, rec := range table.Records {
		switch rec.Status {
		case model.MergeStatusDuplicateResolved:
			result.Duplicates++
		case model.MergeStatusConflicted:
			result.Conflicts++
		}
	}
	for _, a := range anomalies {
		if a.Severity == model.SeverityBlocking {
			result.Blocking++
		} else {
			result.Warnings++
		}
	}

	ranking := rank.Reasons(table, p.contract.Ranking.ReasonColumn)
	result.TopReasons = ranking.Top(3)
	result.Unclassified = ranking.Unclassified

	var groups []model.GroupTotal
	if p.contract.Summary != nil {
		groups = rank.GroupTotals(table, p.contract.Summary.GroupColumn, p.contract.Summary.ValueColumns)
	}

	artifacts, err := p.writeArtifacts(table, anomalies, ranking, groups)
	if err != nil {
		return nil, nil, err
	}
	result.Artifacts = artifacts

	return result, anomalies, nil
}

// loadAndValidate handles one file. An unreadable file comes back as
// out.err; everything else becomes rows and anomalies.
func (p *Pipeline) loadAndValidate(path string) fileOutcome {
	out := fileOutcome{path: path}

	sub, err := ingest.LoadWithOptions(path, ingest.Options{
		SheetName: p.cfg.Input.Sheet,
		Delimiter: p.cfg.Input.Delimiter(),
		Charset:   p.cfg.Input.CSVCharset,
	})
	if err != nil {
		out.err = err
		return out
	}

	out.res = validate.Run(sub, p.contract)
	zap.L().Debug("pipeline: file validated",
		zap.String("file", sub.SourceFile),
		zap.String("branch", sub.BranchID),
		zap.Int("rows", out.res.RowsTotal),
		zap.Int("valid", len(out.res.Valid)),
		zap.Int("anomalies", len(out.res.Anomalies)),
	)
	return out
}

func (p *Pipeline) writeArtifacts(table model.MasterTable, anomalies []model.Anomaly, ranking model.ReasonRanking, groups []model.GroupTotal) ([]string, error) {
	dir := p.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create output dir %s", dir)
	}

	masterCSV := filepath.Join(dir, MasterCSVName)
	if err := report.WriteMasterCSV(masterCSV, p.contract, table); err != nil {
		return nil, err
	}
	anomalyCSV := filepath.Join(dir, AnomalyCSVName)
	if err := report.WriteAnomalyCSV(anomalyCSV, anomalies); err != nil {
		return nil, err
	}
	rankingCSV := filepath.Join(dir, RankingCSVName)
	if err := report.WriteRankingCSV(rankingCSV, ranking); err != nil {
		return nil, err
	}
	workbook := filepath.Join(dir, WorkbookName)
	if err := report.WriteWorkbook(workbook, p.contract, table, anomalies, ranking, groups); err != nil {
		return nil, err
	}

	return []string{masterCSV, anomalyCSV, rankingCSV, workbook}, nil
}

func (p *Pipeline) concurrency() int {
	if p.cfg.Batch.Concurrency > 0 {
		return p.cfg.Batch.Concurrency
	}
	return 1
}

func baseNames(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Base(f)
	}
	return out
}
