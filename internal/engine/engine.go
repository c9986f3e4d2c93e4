package engine

import (
	"context"
	"sort"
	"time"

	"retail-pipeline/internal/models"
	"retail-pipeline/internal/util"

	"go.uber.org/zap"
)

// Engine runs the cleaning and dimensional modeling stages over one static batch.
// It performs no I/O and keeps no state between runs.
type Engine struct {
	opts    Options
	catalog Catalog
	logger  *zap.Logger
}

// Result is everything one successful run hands to collaborators
type Result struct {
	Dataset  models.Dataset
	Ledger   *Ledger
	Accepted []ClassifiedRecord
	Rejected []ClassifiedRecord
	Report   Report
	RunTime  time.Time
}

// New creates an engine with the default rule catalog
func New(opts Options, logger *zap.Logger) *Engine {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:    opts,
		catalog: DefaultCatalog(opts),
		logger:  logger,
	}
}

// Catalog returns the rules the engine applies
func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// Run executes Classifier, Deduplicator, Dimension Builder and Fact Assembler in
// strict sequence. Data-quality exclusions never fail the run; the only error is a
// *ConsistencyError, in which case no partial output is returned.
func (e *Engine) Run(ctx context.Context, raw []models.RawRecord) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Engine.Run")
	defer span.End()

	runTime := e.opts.Now()
	ledger := NewLedger()

	var classified []ClassifiedRecord
	e.stage(ctx, "classify", func() error {
		classified = Classify(raw, e.catalog, e.opts, ledger)
		return nil
	})

	var kept, dropped []ClassifiedRecord
	e.stage(ctx, "deduplicate", func() error {
		kept, dropped = Deduplicate(classified, ledger)
		return nil
	})

	accepted := Accepted(kept)
	rejected := append(Rejected(kept), dropped...)
	sort.SliceStable(rejected, func(i, j int) bool {
		return rejected[i].RowIndex < rejected[j].RowIndex
	})
	if len(accepted)+len(rejected) != len(raw) {
		return nil, e.fail(violation(InvariantFactPerRecord, NoRow,
			"accepted %d + rejected %d != input %d", len(accepted), len(rejected), len(raw)))
	}

	var dims *Dimensions
	if err := e.stage(ctx, "build_dimensions", func() error {
		var err error
		dims, err = BuildDimensions(accepted)
		return err
	}); err != nil {
		return nil, e.fail(err)
	}

	var facts []models.FactSales
	if err := e.stage(ctx, "assemble_facts", func() error {
		var err error
		facts, err = AssembleFacts(accepted, dims, runTime)
		return err
	}); err != nil {
		return nil, e.fail(err)
	}
	if len(facts) != len(accepted) {
		return nil, e.fail(violation(InvariantFactPerRecord, NoRow,
			"%d facts for %d accepted records", len(facts), len(accepted)))
	}

	ds := models.Dataset{
		Facts:     facts,
		Dates:     dims.Dates,
		Products:  dims.Products,
		Customers: dims.Customers,
	}
	if err := e.stage(ctx, "verify", func() error { return Verify(ds) }); err != nil {
		return nil, e.fail(err)
	}

	report := buildReport(len(raw), accepted, ds, ledger)
	e.logger.Info("Engine run completed",
		zap.Int("input", len(raw)),
		zap.Int("accepted", len(accepted)),
		zap.Int("rejected", len(rejected)),
		zap.Int("dim_date", len(ds.Dates)),
		zap.Int("dim_product", len(ds.Products)),
		zap.Int("dim_customer", len(ds.Customers)),
		zap.Float64("pass_rate", report.PassRate))

	return &Result{
		Dataset:  ds,
		Ledger:   ledger,
		Accepted: accepted,
		Rejected: rejected,
		Report:   report,
		RunTime:  runTime,
	}, nil
}

func (e *Engine) stage(ctx context.Context, name string, fn func() error) error {
	_, span := util.StartSpan(ctx, "Engine."+name)
	defer span.End()

	start := time.Now()
	err := fn()
	util.PipelineStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		return err
	}
	e.logger.Debug("Stage finished", zap.String("stage", name), zap.Duration("took", time.Since(start)))
	return nil
}

func (e *Engine) fail(err error) error {
	e.logger.Error("Engine run aborted", zap.Error(err))
	return err
}
