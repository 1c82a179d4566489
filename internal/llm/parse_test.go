package llm

import (
	"reflect"
	"strings"
	"testing"

	"github.com/YorickdeJong/energy-contracts/internal/common"
)

const sampleAnswer = `{"start_date":"2024-01-15","end_date":null,"monthly_rent":1500,"renters":[{"first_name":"John","last_name":"Doe","email":"john@example.com","is_primary":true}]}`

func TestParseResponseFencedAndUnfencedMatch(t *testing.T) {
	plain, err := ParseResponse(sampleAnswer)
	if err != nil {
		t.Fatalf("unfenced: %v", err)
	}
	variants := []string{
		"```json\n" + sampleAnswer + "\n```",
		"```\n" + sampleAnswer + "\n```",
		"  ```JSON\n" + sampleAnswer + "```  ",
		"```json" + sampleAnswer + "```",
	}
	for _, v := range variants {
		got, err := ParseResponse(v)
		if err != nil {
			t.Fatalf("fenced %q: %v", v, err)
		}
		if !reflect.DeepEqual(got, plain) {
			t.Errorf("Expected fenced and unfenced results to match for %q", v)
		}
	}
}

func TestParseResponseFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "not json"},
		{"array", `[{"start_date":"2024-01-01"}]`},
		{"truncated", `{"start_date":"2024-01-01"`},
		{"trailing text", sampleAnswer + " Let me know if you need more."},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.raw)
			if got != nil {
				t.Errorf("Expected no partial data, got %v", got)
			}
			if !common.IsCode(err, common.CodeParse) {
				t.Errorf("Expected PARSE_FAILED, got %v", err)
			}
		})
	}
}

func TestParseResponseEchoesTruncatedText(t *testing.T) {
	raw := strings.Repeat("x", 5000)
	_, err := ParseResponse(raw)
	msg := common.MessageOf(err)
	if !strings.Contains(msg, "xxxx") {
		t.Errorf("Expected offending text in message, got %q", msg)
	}
	if len(msg) > 2200 {
		t.Errorf("Expected echoed text to be truncated, got %d bytes", len(msg))
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"{}", "{}"},
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"```json{}```", "{}"},
		{"\n\n{\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
