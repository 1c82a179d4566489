package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
	reqs []string
}

func (p *recordingProcessor) Process(ctx context.Context, id uuid.UUID) (*entity.TenancyAgreement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, id)
	p.reqs = append(p.reqs, common.RequestIDFromContext(ctx))
	return &entity.TenancyAgreement{ID: id, Status: constants.AgreementProcessed}, nil
}

func TestProcessorQueueDrainsOnShutdown(t *testing.T) {
	proc := &recordingProcessor{}
	q := NewProcessorQueue(proc, nil, WithWorkers(3), WithQueueSize(2), WithProcessTimeout(time.Second))

	ctx := context.Background()
	want := 10
	for i := 0; i < want; i++ {
		if err := q.Enqueue(ctx, Job{AgreementID: uuid.New(), RequestID: "req-1"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	q.Shutdown(ctx)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.seen) != want {
		t.Errorf("Expected %d processed jobs, got %d", want, len(proc.seen))
	}
	for _, r := range proc.reqs {
		if r != "req-1" {
			t.Errorf("Expected request id to propagate, got %q", r)
		}
	}
}

func TestProcessorQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&recordingProcessor{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{AgreementID: uuid.New()})
	if !common.IsCode(err, common.CodePrecondition) {
		t.Errorf("Expected PRECONDITION_FAILED after shutdown, got %v", err)
	}
}
