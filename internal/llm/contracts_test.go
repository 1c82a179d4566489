package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/YorickdeJong/energy-contracts/internal/common"
)

func TestDisabledExtractor(t *testing.T) {
	var x Extractor = Disabled{}
	_, err := x.Extract(context.Background(), "/tmp/lease.pdf")
	if !common.IsCode(err, common.CodeConfiguration) {
		t.Errorf("Expected CONFIGURATION_ERROR, got %v", err)
	}
	if !errors.Is(err, common.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured in chain")
	}

	_, err = x.Extract(context.Background(), "/tmp/lease.txt")
	if !common.IsCode(err, common.CodeUnsupportedFormat) {
		t.Errorf("Expected UNSUPPORTED_FORMAT before configuration, got %v", err)
	}
}

func TestCheckSupported(t *testing.T) {
	for _, p := range []string{"a.pdf", "a.JPG", "a.jpeg", "a.png", "a.xlsx", "a.xls", "a.docx", "a.doc"} {
		if err := CheckSupported(p); err != nil {
			t.Errorf("%s should be supported: %v", p, err)
		}
	}
	err := CheckSupported("a.gif")
	if !common.IsCode(err, common.CodeUnsupportedFormat) {
		t.Fatalf("Expected UNSUPPORTED_FORMAT, got %v", err)
	}
	if msg := common.MessageOf(err); msg == "" {
		t.Error("Expected message listing supported types")
	}
}
