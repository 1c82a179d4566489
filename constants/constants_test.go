package constants

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AgreementStatus
		want     bool
	}{
		{AgreementPending, AgreementProcessing, true},
		{AgreementProcessing, AgreementProcessed, true},
		{AgreementProcessing, AgreementFailed, true},
		{AgreementPending, AgreementFailed, true},
		{AgreementFailed, AgreementPending, true},
		{AgreementProcessed, AgreementPending, false},
		{AgreementProcessed, AgreementProcessing, false},
		{AgreementProcessed, AgreementFailed, false},
		{AgreementFailed, AgreementProcessing, false},
		{AgreementProcessing, AgreementPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSourcesFor(t *testing.T) {
	got := SourcesFor(AgreementFailed)
	if len(got) != 2 || got[0] != AgreementPending || got[1] != AgreementProcessing {
		t.Fatalf("unexpected sources for failed: %v", got)
	}
	if got := SourcesFor(AgreementProcessed); len(got) != 1 || got[0] != AgreementProcessing {
		t.Fatalf("unexpected sources for processed: %v", got)
	}
}

func TestConversionFor(t *testing.T) {
	tests := map[string]ConversionKind{
		".pdf":  ConvertPassive,
		"PDF":   ConvertPassive,
		".docx": ConvertOffice,
		".xls":  ConvertOffice,
		".PNG":  ConvertImage,
		"webp":  ConvertImage,
		".txt":  ConvertNone,
		"":      ConvertNone,
	}
	for ext, want := range tests {
		if got := ConversionFor(ext); got != want {
			t.Errorf("ConversionFor(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestUploadExtensionList(t *testing.T) {
	got := UploadExtensionList()
	if len(got) != len(UploadExtensions) {
		t.Fatalf("expected %d extensions, got %d", len(UploadExtensions), len(got))
	}
	if got[0] != ".doc" {
		t.Errorf("expected sorted list starting with .doc, got %s", got[0])
	}
	if !AllowedUpload(".JPEG") || AllowedUpload(".exe") {
		t.Error("AllowedUpload mismatch")
	}
}
