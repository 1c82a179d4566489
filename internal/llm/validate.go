package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

// dateLayouts are tried in order. Ambiguous numeric dates are read day first.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2.1.2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseFlexibleDate accepts the date spellings commonly found in agreements.
func ParseFlexibleDate(s string) (entity.Date, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return entity.DateOf(t), true
		}
	}
	return entity.Date{}, false
}

// Validator turns a parsed model answer into an ExtractionResult.
//
// With LenientDates set, a date, amount or phone number that cannot be read
// becomes null and is listed in Warnings. Otherwise it fails validation.
// Malformed emails, negative amounts and an end date not after the start date
// always fail.
type Validator struct {
	LenientDates bool

	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewValidator(lenient bool, logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := CompileSchema(BuildExtractionJSONSchema())
	if err != nil {
		return nil, err
	}
	return &Validator{LenientDates: lenient, schema: schema, logger: logger}, nil
}

// Validate returns VALIDATION_FAILED with per-field errors when obj does not
// conform.
func (v *Validator) Validate(obj map[string]any) (*entity.ExtractionResult, error) {
	clean, _ := NormalizeAndSanitize(obj, v.logger)

	cv := common.NewValidator()
	var warnings []string
	unreadable := func(field string, value any, msg string) {
		if v.LenientDates {
			warnings = append(warnings, field)
			return
		}
		cv.Add(field, value, msg)
	}

	for _, k := range moneyFields {
		if s, ok := clean[k].(string); ok {
			unreadable(k, s, "is not a valid amount")
			clean[k] = nil
		}
	}

	if err := v.schema.Validate(clean); err != nil {
		for _, fe := range schemaFieldErrors(err) {
			cv.Add(fe.Field, nil, fe.Message)
		}
		return nil, cv.Err("extracted data does not match the expected shape")
	}

	res := &entity.ExtractionResult{
		MonthlyRent: floatPtr(clean["monthly_rent"]),
		Deposit:     floatPtr(clean["deposit"]),
		FirstName:   strPtr(clean["first_name"]),
		LastName:    strPtr(clean["last_name"]),
		Email:       strPtr(clean["email"]),
		PhoneNumber: strPtr(clean["phone_number"]),
		Renters:     []entity.ExtractedRenter{},
	}

	for _, k := range []string{"start_date", "end_date"} {
		s, ok := clean[k].(string)
		if !ok {
			continue
		}
		d, ok := ParseFlexibleDate(s)
		if !ok {
			unreadable(k, s, "is not a recognizable date")
			continue
		}
		if k == "start_date" {
			res.StartDate = entity.DatePtr(d)
		} else {
			res.EndDate = entity.DatePtr(d)
		}
	}

	if list, ok := clean["renters"].([]any); ok {
		for i, item := range list {
			r := item.(map[string]any)
			renter := entity.ExtractedRenter{
				FirstName:   strPtr(r["first_name"]),
				LastName:    strPtr(r["last_name"]),
				Email:       strPtr(r["email"]),
				PhoneNumber: strPtr(r["phone_number"]),
			}
			if b, ok := r["is_primary"].(bool); ok {
				renter.IsPrimary = b
			}
			prefix := fmt.Sprintf("renters[%d].", i)
			cv.Field(prefix+"email", renter.Email, common.Email)
			if renter.PhoneNumber != nil && common.Phone("", *renter.PhoneNumber) != nil {
				unreadable(prefix+"phone_number", *renter.PhoneNumber, "must look like +999999999 (9 to 15 digits)")
				renter.PhoneNumber = nil
			}
			res.Renters = append(res.Renters, renter)
		}
	}
	cv.Field("email", res.Email, common.Email)
	if res.PhoneNumber != nil && common.Phone("", *res.PhoneNumber) != nil {
		unreadable("phone_number", *res.PhoneNumber, "must look like +999999999 (9 to 15 digits)")
		res.PhoneNumber = nil
	}

	cv.Field("monthly_rent", res.MonthlyRent, common.NonNegative)
	cv.Field("deposit", res.Deposit, common.NonNegative)
	if res.StartDate != nil && res.EndDate != nil && !res.EndDate.After(*res.StartDate) {
		cv.Add("end_date", res.EndDate.String(), "must be after start_date")
	}
	if err := cv.Err("extracted data failed validation"); err != nil {
		return nil, err
	}

	fillLegacy(res)
	if len(warnings) > 0 {
		res.Warnings = warnings
		v.logger.Warn("llm.extract.lenient_nulls", "fields", warnings)
	}
	return res, nil
}

// fillLegacy mirrors the first renter into the top-level contact fields that
// the model left empty.
func fillLegacy(res *entity.ExtractionResult) {
	if len(res.Renters) == 0 {
		return
	}
	first := res.Renters[0]
	if res.FirstName == nil {
		res.FirstName = first.FirstName
	}
	if res.LastName == nil {
		res.LastName = first.LastName
	}
	if res.Email == nil {
		res.Email = first.Email
	}
	if res.PhoneNumber == nil {
		res.PhoneNumber = first.PhoneNumber
	}
}

func strPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func floatPtr(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}
