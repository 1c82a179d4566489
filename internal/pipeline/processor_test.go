package pipeline

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/convert"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/llm"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
	"github.com/YorickdeJong/energy-contracts/internal/repository/memory"
	"github.com/YorickdeJong/energy-contracts/internal/repository/repotest"
	"github.com/YorickdeJong/energy-contracts/internal/storage"
)

type fakeExtractor struct {
	answer string
	err    error
	paths  []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return f.answer, f.err
}

type fixture struct {
	store repository.Store
	docs  storage.DocumentStore
	proc  *Processor
	tmp   string
}

func newFixture(t *testing.T, x llm.Extractor, lenient bool) *fixture {
	t.Helper()
	docs, err := storage.NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	v, err := llm.NewValidator(lenient, nil)
	if err != nil {
		t.Fatal(err)
	}
	tmp := t.TempDir()
	store := memory.NewStore(nil)
	return &fixture{
		store: store,
		docs:  docs,
		tmp:   tmp,
		proc:  NewProcessor(store, docs, x, v, convert.Config{OfficeBinary: "soffice", Timeout: time.Second, TempDir: tmp}, nil, nil),
	}
}

func (f *fixture) upload(t *testing.T, ext string) *entity.TenancyAgreement {
	t.Helper()
	ctx := context.Background()
	owner, h := repotest.SeedOwner(t, f.store)
	a := &entity.TenancyAgreement{ID: uuid.New(), HouseholdID: h.ID, UploadedBy: owner.ID, FileName: "lease." + ext, FileExt: ext, FileSize: 4}
	a.StorageKey = storage.AgreementKey(h.ID, a.ID, ext)
	if err := f.docs.Put(ctx, a.StorageKey, bytes.NewReader([]byte("%PDF")), 4, "application/pdf"); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Repos().Agreements.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	return a
}

func assertNoLeftovers(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected work dir to be empty, found %d entries", len(entries))
	}
}

func TestProcessHappyPath(t *testing.T) {
	x := &fakeExtractor{answer: "```json\n" + `{"start_date":"2024-01-15","monthly_rent":1500,"renters":[{"first_name":"John","last_name":"Doe","email":"john@example.com","is_primary":true}]}` + "\n```"}
	f := newFixture(t, x, true)
	a := f.upload(t, "pdf")

	got, err := f.proc.Process(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Status != constants.AgreementProcessed {
		t.Fatalf("Expected processed, got %s", got.Status)
	}
	if got.ExtractedData == nil || *got.ExtractedData.Email != "john@example.com" {
		t.Errorf("Expected extracted data with legacy email, got %+v", got.ExtractedData)
	}
	if got.ProcessedAt == nil || got.ErrorCode != nil {
		t.Errorf("Expected processed_at set and no error, got %+v", got)
	}
	assertNoLeftovers(t, f.tmp)
}

func TestProcessInvalidJSONFails(t *testing.T) {
	f := newFixture(t, &fakeExtractor{answer: "not json"}, true)
	a := f.upload(t, "pdf")

	got, err := f.proc.Process(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Expected failure recorded on the record, got error %v", err)
	}
	if got.Status != constants.AgreementFailed {
		t.Fatalf("Expected failed, got %s", got.Status)
	}
	if got.ExtractedData != nil {
		t.Error("Expected extracted_data to stay null")
	}
	if got.ErrorCode == nil || *got.ErrorCode != common.CodeParse {
		t.Errorf("Expected PARSE_FAILED, got %v", got.ErrorCode)
	}
	assertNoLeftovers(t, f.tmp)
}

func TestProcessValidationFailureKeepsFields(t *testing.T) {
	f := newFixture(t, &fakeExtractor{answer: `{"start_date":"2024-01-01","end_date":"2024-01-01"}`}, true)
	a := f.upload(t, "pdf")

	got, err := f.proc.Process(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *got.ErrorCode != common.CodeValidation {
		t.Fatalf("Expected VALIDATION_FAILED, got %s", *got.ErrorCode)
	}
	if len(got.ErrorFields) != 1 || got.ErrorFields[0].Field != "end_date" {
		t.Errorf("Expected end_date field error, got %v", got.ErrorFields)
	}
}

func TestProcessWithoutExtractorIsConfigurationError(t *testing.T) {
	f := newFixture(t, llm.Disabled{}, true)
	a := f.upload(t, "pdf")

	got, err := f.proc.Process(context.Background(), a.ID)
	if !common.IsCode(err, common.CodeConfiguration) {
		t.Fatalf("Expected CONFIGURATION_ERROR, got %v", err)
	}
	if got == nil || got.Status != constants.AgreementFailed {
		t.Fatalf("Expected record not to stay processing, got %+v", got)
	}
}

func TestProcessRejectsNonPending(t *testing.T) {
	f := newFixture(t, &fakeExtractor{answer: `{}`}, true)
	a := f.upload(t, "pdf")
	ctx := context.Background()

	if _, err := f.proc.Process(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	_, err := f.proc.Process(ctx, a.ID)
	if !common.IsCode(err, common.CodePrecondition) {
		t.Errorf("Expected PRECONDITION_FAILED for processed record, got %v", err)
	}
	got, _ := f.store.Repos().Agreements.Get(ctx, a.ID)
	if got.Status != constants.AgreementProcessed || got.ExtractedData == nil {
		t.Errorf("Expected processed record untouched, got %s", got.Status)
	}
}

func TestProcessCancelledContextStillRecordsOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, cancelingExtractor{inner: &fakeExtractor{answer: "not json"}, cancel: cancel}, true)
	a := f.upload(t, "pdf")

	got, err := f.proc.Process(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != constants.AgreementFailed {
		t.Errorf("Expected failed after cancellation, got %s", got.Status)
	}
}

type cancelingExtractor struct {
	inner  llm.Extractor
	cancel context.CancelFunc
}

func (c cancelingExtractor) Extract(ctx context.Context, path string) (string, error) {
	out, err := c.inner.Extract(ctx, path)
	c.cancel()
	return out, err
}

func TestReapStale(t *testing.T) {
	f := newFixture(t, &fakeExtractor{}, true)
	a := f.upload(t, "pdf")
	ctx := context.Background()
	if _, err := f.store.Repos().Agreements.Transition(ctx, a.ID, constants.AgreementProcessing); err != nil {
		t.Fatal(err)
	}

	n, err := f.proc.ReapStale(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("Expected nothing stale yet, got %d, %v", n, err)
	}
	n, err = f.proc.ReapStale(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Expected one reaped record, got %d, %v", n, err)
	}
	got, _ := f.store.Repos().Agreements.Get(ctx, a.ID)
	if got.Status != constants.AgreementFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
}
