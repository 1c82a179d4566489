package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/convert"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/llm"
	"github.com/YorickdeJong/energy-contracts/internal/logging"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
	"github.com/YorickdeJong/energy-contracts/internal/storage"
)

// recordedCodes are pipeline outcomes: the agreement ends up failed and the
// caller gets the record back rather than an error.
var recordedCodes = map[string]bool{
	common.CodeUnsupportedFormat: true,
	common.CodeConversion:        true,
	common.CodeExtraction:        true,
	common.CodeParse:             true,
	common.CodeValidation:        true,
}

// Processor drives one agreement through normalize, extract, parse and
// validate, storing the outcome on the record.
type Processor struct {
	store     repository.Store
	docs      storage.DocumentStore
	extractor llm.Extractor
	validator *llm.Validator
	convert   convert.Config
	runner    convert.Runner
	logger    *slog.Logger
}

func NewProcessor(
	store repository.Store,
	docs storage.DocumentStore,
	extractor llm.Extractor,
	validator *llm.Validator,
	convCfg convert.Config,
	runner convert.Runner,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = llm.Disabled{}
	}
	return &Processor{
		store:     store,
		docs:      docs,
		extractor: extractor,
		validator: validator,
		convert:   convCfg,
		runner:    runner,
		logger:    logger,
	}
}

// Process moves a pending agreement to processing and then to processed or
// failed. A record that cannot leave pending yields PRECONDITION_FAILED and
// is left untouched.
//
// Pipeline failures are stored on the record and reported with a nil error.
// Configuration and infrastructure failures are stored too, and also returned.
func (p *Processor) Process(ctx context.Context, agreementID uuid.UUID) (*entity.TenancyAgreement, error) {
	start := time.Now()
	log := logging.FromContext(ctx, p.logger).With("agreement_id", agreementID)
	agreements := p.store.Repos().Agreements

	a, err := agreements.Transition(ctx, agreementID, constants.AgreementProcessing)
	if err != nil {
		log.Warn("pipeline.process.rejected", "error", err)
		return nil, err
	}
	log.Info("pipeline.process.start", "file", a.FileName, "ext", a.FileExt)

	result, runErr := p.run(ctx, a, log)

	// the outcome must be written even if the caller went away
	wctx := context.WithoutCancel(ctx)
	if runErr == nil {
		if err := agreements.MarkProcessed(wctx, agreementID, result); err != nil {
			runErr = fmt.Errorf("store extraction: %w", err)
		}
	}
	if runErr != nil {
		code := common.CodeOf(runErr)
		if code == "" {
			code = common.CodeInternal
		}
		if err := agreements.MarkFailed(wctx, agreementID, code, common.MessageOf(runErr), common.FieldErrors(runErr)); err != nil {
			log.Error("pipeline.process.mark_failed_error", "error", err, "cause", runErr)
			return nil, err
		}
		log.Warn("pipeline.process.failed",
			"code", code,
			"error", runErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		failed, err := agreements.Get(wctx, agreementID)
		if err != nil {
			return nil, err
		}
		if recordedCodes[code] {
			return failed, nil
		}
		return failed, runErr
	}

	log.Info("pipeline.process.done",
		"renters", len(result.Renters),
		"warnings", len(result.Warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return agreements.Get(wctx, agreementID)
}

func (p *Processor) run(ctx context.Context, a *entity.TenancyAgreement, log *slog.Logger) (*entity.ExtractionResult, error) {
	workDir, err := os.MkdirTemp(p.convert.TempDir, "agreement-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	local, err := storage.FetchToFile(ctx, p.docs, a.StorageKey, workDir)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	return p.ExtractFile(ctx, local, log)
}

// ExtractFile runs the stages on a local file without touching any record.
func (p *Processor) ExtractFile(ctx context.Context, path string, log *slog.Logger) (*entity.ExtractionResult, error) {
	if log == nil {
		log = p.logger
	}
	norm := convert.New(p.convert, p.runner, p.logger)
	defer norm.Cleanup()

	canonical, err := norm.Normalize(ctx, path)
	if err != nil {
		return nil, err
	}

	t := time.Now()
	raw, err := p.extractor.Extract(ctx, canonical)
	if err != nil {
		return nil, err
	}
	log.Debug("pipeline.extract.ok", "answer_len", len(raw), "elapsed_ms", time.Since(t).Milliseconds())

	obj, err := llm.ParseResponse(raw)
	if err != nil {
		log.Warn("pipeline.parse.failed", "raw", logging.Truncate(raw, 500))
		return nil, err
	}
	return p.validator.Validate(obj)
}

// ReapStale fails agreements stuck in processing since before cutoff, e.g.
// after a crash mid-run.
func (p *Processor) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	agreements := p.store.Repos().Agreements
	stale, err := agreements.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range stale {
		err := agreements.MarkFailed(ctx, a.ID, common.CodeExtraction, "processing was interrupted; upload again or re-trigger processing", nil)
		if common.IsCode(err, common.CodePrecondition) {
			// finished meanwhile
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		p.logger.Warn("pipeline.reap.failed_stale", "agreement_id", a.ID, "updated_at", a.UpdatedAt)
	}
	return n, nil
}
