package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
)

func TestTenancyValidateDateOrdering(t *testing.T) {
	start := NewDate(2024, time.January, 1)
	tests := []struct {
		name    string
		end     *Date
		wantErr bool
	}{
		{"open ended", nil, false},
		{"after start", DatePtr(NewDate(2024, time.December, 31)), false},
		{"equal to start", DatePtr(start), true},
		{"before start", DatePtr(NewDate(2023, time.December, 31)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ten := &Tenancy{Name: "Lease 2024", Status: constants.TenancyActive, StartDate: start, EndDate: tt.end}
			err := ten.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				fields := common.FieldErrors(err)
				if len(fields) != 1 || fields[0].Field != "end_date" {
					t.Errorf("Expected end_date field error, got %v", fields)
				}
			}
		})
	}
}

func TestTenancyValidateMoneyAndName(t *testing.T) {
	ten := &Tenancy{Status: constants.TenancyFuture, StartDate: NewDate(2024, 1, 1), MonthlyRent: -1}
	err := ten.Validate()
	if !common.IsCode(err, common.CodeValidation) {
		t.Fatalf("Expected VALIDATION_FAILED, got %v", err)
	}
	if n := len(common.FieldErrors(err)); n != 2 {
		t.Errorf("Expected name and monthly_rent errors, got %d", n)
	}
}

func TestStatusForStart(t *testing.T) {
	now := time.Date(2024, time.June, 15, 18, 30, 0, 0, time.UTC)
	if got := StatusForStart(NewDate(2024, time.June, 15), now); got != constants.TenancyActive {
		t.Errorf("start today: expected active, got %s", got)
	}
	if got := StatusForStart(NewDate(2024, time.January, 1), now); got != constants.TenancyActive {
		t.Errorf("start in past: expected active, got %s", got)
	}
	if got := StatusForStart(NewDate(2024, time.June, 16), now); got != constants.TenancyFuture {
		t.Errorf("start tomorrow: expected future, got %s", got)
	}
}

func TestDateJSON(t *testing.T) {
	type wrap struct {
		D *Date `json:"d"`
	}
	var w wrap
	if err := json.Unmarshal([]byte(`{"d":"2024-02-29"}`), &w); err != nil {
		t.Fatal(err)
	}
	if w.D == nil || w.D.String() != "2024-02-29" {
		t.Fatalf("unexpected date %v", w.D)
	}
	out, _ := json.Marshal(w)
	if string(out) != `{"d":"2024-02-29"}` {
		t.Errorf("unexpected json %s", out)
	}
	if err := json.Unmarshal([]byte(`{"d":"29/02/2024"}`), &w); err == nil {
		t.Error("Expected strict layout on the wire")
	}
}

func TestInvitationExpired(t *testing.T) {
	now := time.Now()
	inv := &Invitation{ExpiresAt: now.Add(time.Hour)}
	if inv.Expired(now) {
		t.Error("should not be expired yet")
	}
	if !inv.Expired(now.Add(2 * time.Hour)) {
		t.Error("should be expired")
	}
}
