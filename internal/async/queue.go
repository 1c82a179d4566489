package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

// Job asks a worker to process one uploaded agreement.
type Job struct {
	AgreementID uuid.UUID
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor is the work a queue runs for each job.
type Processor interface {
	Process(ctx context.Context, agreementID uuid.UUID) (*entity.TenancyAgreement, error)
}
