package onboarding

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/async"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/storage"
)

type UploadInput struct {
	HouseholdID uuid.UUID
	FileName    string
	Size        int64
	Body        io.Reader
}

// ProcessOutcome is the agreement after a process request.
type ProcessOutcome struct {
	Agreement        *entity.TenancyAgreement `json:"agreement"`
	AlreadyProcessed bool                     `json:"already_processed"`
}

// Upload stores the document, records a pending agreement and runs (or
// queues) processing. Pipeline failures come back as a failed record.
func (s *Service) Upload(ctx context.Context, actor common.Actor, in UploadInput) (*entity.TenancyAgreement, error) {
	if _, err := household(ctx, s.store.Repos(), actor, in.HouseholdID, false); err != nil {
		return nil, err
	}

	ext := constants.NormalizeExt(filepath.Ext(in.FileName))
	if !constants.AllowedUpload(ext) {
		return nil, common.NewAppError(common.CodeUnsupportedFormat,
			fmt.Sprintf("file type %q is not allowed; allowed types: %s", ext, strings.Join(constants.UploadExtensionList(), ", ")),
			common.ErrInvalidInput)
	}
	if in.Size > s.cfg.MaxUploadBytes {
		return nil, common.InvalidInput("file is %d bytes; the limit is %d MB", in.Size, s.cfg.MaxUploadBytes>>20)
	}

	// guard against a declared size that understates the body
	body := io.LimitReader(in.Body, s.cfg.MaxUploadBytes+1)
	counter := &countingReader{r: body}

	a := &entity.TenancyAgreement{
		ID:          uuid.New(),
		HouseholdID: in.HouseholdID,
		UploadedBy:  actor.UserID,
		FileName:    filepath.Base(in.FileName),
		FileExt:     ext,
		Status:      constants.AgreementPending,
	}
	a.StorageKey = storage.AgreementKey(a.HouseholdID, a.ID, ext)

	if err := s.docs.Put(ctx, a.StorageKey, counter, in.Size, constants.MimeTypeFor(ext)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if counter.n > s.cfg.MaxUploadBytes || counter.n == 0 {
		s.discard(ctx, a.StorageKey)
		if counter.n == 0 {
			return nil, common.InvalidInput("file is empty")
		}
		return nil, common.InvalidInput("file exceeds the %d MB limit", s.cfg.MaxUploadBytes>>20)
	}
	a.FileSize = counter.n

	if err := s.store.Repos().Agreements.Create(ctx, a); err != nil {
		s.discard(ctx, a.StorageKey)
		return nil, err
	}
	s.logger.Info("onboarding.upload.accepted",
		"agreement_id", a.ID,
		"household_id", a.HouseholdID,
		"ext", ext,
		"size", a.FileSize,
	)
	return s.dispatch(ctx, a)
}

// Process runs processing for an existing agreement. A processed record is
// returned unchanged; a failed one is reset to pending first.
func (s *Service) Process(ctx context.Context, actor common.Actor, id uuid.UUID) (*ProcessOutcome, error) {
	repos := s.store.Repos()
	a, err := ownedAgreement(ctx, repos, actor, id)
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case constants.AgreementProcessed:
		return &ProcessOutcome{Agreement: a, AlreadyProcessed: true}, nil
	case constants.AgreementProcessing:
		return nil, common.Precondition("tenancy agreement %s is already being processed", id)
	case constants.AgreementFailed:
		if a, err = repos.Agreements.Transition(ctx, id, constants.AgreementPending); err != nil {
			return nil, err
		}
		s.logger.Info("onboarding.process.reset", "agreement_id", id)
	}

	out, err := s.dispatch(ctx, a)
	if err != nil {
		return nil, err
	}
	return &ProcessOutcome{Agreement: out}, nil
}

func (s *Service) GetAgreement(ctx context.Context, actor common.Actor, id uuid.UUID) (*entity.TenancyAgreement, error) {
	return ownedAgreement(ctx, s.store.Repos(), actor, id)
}

func (s *Service) ListAgreements(ctx context.Context, actor common.Actor, householdID uuid.UUID) ([]*entity.TenancyAgreement, error) {
	repos := s.store.Repos()
	if _, err := household(ctx, repos, actor, householdID, false); err != nil {
		return nil, err
	}
	return repos.Agreements.ListByHousehold(ctx, householdID)
}

func (s *Service) dispatch(ctx context.Context, a *entity.TenancyAgreement) (*entity.TenancyAgreement, error) {
	if s.queue != nil {
		job := async.Job{AgreementID: a.ID, SubmittedAt: s.now(), RequestID: common.RequestIDFromContext(ctx)}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return nil, err
		}
		return a, nil
	}
	return s.proc.Process(ctx, a.ID)
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.docs.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("onboarding.upload.discard_failed", "key", key, "error", err)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
