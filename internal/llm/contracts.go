package llm

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
)

// Extractor sends a canonical document to a generative model and returns the
// model's raw text answer. Implementations check the extension whitelist
// before any network call.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Disabled is the Extractor wired in when no model credential is configured.
type Disabled struct {
	Reason string
}

func (d Disabled) Extract(_ context.Context, path string) (string, error) {
	if err := CheckSupported(path); err != nil {
		return "", err
	}
	reason := d.Reason
	if reason == "" {
		reason = "no API key configured"
	}
	return "", common.NewAppError(common.CodeConfiguration, "document extraction is disabled: "+reason, common.ErrNotConfigured)
}

// CheckSupported returns UNSUPPORTED_FORMAT unless path has a whitelisted extension.
func CheckSupported(path string) error {
	if constants.MimeTypeFor(filepath.Ext(path)) != "" {
		return nil
	}
	return common.NewAppError(common.CodeUnsupportedFormat,
		"unsupported file type "+filepath.Ext(path)+"; supported types: "+strings.Join(SupportedExtensions(), ", "),
		common.ErrInvalidInput)
}

// SupportedExtensions lists the whitelisted extensions as ".ext", sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(constants.ExtractionMimeTypes))
	for ext := range constants.ExtractionMimeTypes {
		out = append(out, "."+ext)
	}
	sort.Strings(out)
	return out
}
