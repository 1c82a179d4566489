package llm

import (
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"unicode"
)

var (
	moneyFields  = []string{"monthly_rent", "deposit"}
	legacyFields = []string{"first_name", "last_name", "email", "phone_number"}
	renterKeys   = map[string]struct{}{"first_name": {}, "last_name": {}, "email": {}, "phone_number": {}, "is_primary": {}}
	topLevelKeys = map[string]struct{}{
		"start_date": {}, "end_date": {}, "monthly_rent": {}, "deposit": {}, "renters": {},
		"first_name": {}, "last_name": {}, "email": {}, "phone_number": {},
	}
)

// NormalizeAndSanitize cleans a decoded model answer before validation:
//   - renames common synonyms (rent -> monthly_rent, tenants -> renters)
//   - trims strings and turns empty strings into null
//   - coerces parseable money strings to numbers and yes/no strings to booleans
//   - removes unknown keys
//
// Unparseable money strings are left in place for the Validator to judge.
// The input map is not modified.
func NormalizeAndSanitize(in map[string]any, logger *slog.Logger) (map[string]any, []string) {
	if logger == nil {
		logger = slog.Default()
	}
	m := maps.Clone(in)
	notes := make([]string, 0, 4)

	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			notes = append(notes, from+"->"+to)
		}
	}
	rename("rent", "monthly_rent")
	rename("monthly_rent_amount", "monthly_rent")
	rename("security_deposit", "deposit")
	rename("tenants", "renters")
	rename("phone", "phone_number")

	for k := range maps.Clone(m) {
		if _, ok := topLevelKeys[k]; !ok {
			delete(m, k)
			notes = append(notes, k+"(unknown)")
		}
	}

	for k, v := range m {
		if k == "renters" {
			continue
		}
		m[k] = cleanScalar(v)
	}
	for _, k := range moneyFields {
		if s, ok := m[k].(string); ok {
			if f, ok := ParseMoney(s); ok {
				m[k] = f
			}
		}
	}
	if p, ok := m["phone_number"].(string); ok {
		m["phone_number"] = cleanPhone(p)
	}

	if list, ok := m["renters"].([]any); ok {
		renters := make([]any, 0, len(list))
		for _, item := range list {
			r, ok := item.(map[string]any)
			if !ok {
				// keep it so the schema reports the bad element
				renters = append(renters, item)
				continue
			}
			renters = append(renters, sanitizeRenter(r))
		}
		m["renters"] = renters
	}

	if len(notes) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "notes", notes)
	}
	return m, notes
}

func sanitizeRenter(in map[string]any) map[string]any {
	out := make(map[string]any, len(renterKeys))
	for k, v := range in {
		if k == "phone" {
			k = "phone_number"
		}
		if _, ok := renterKeys[k]; !ok {
			continue
		}
		out[k] = cleanScalar(v)
	}
	if p, ok := out["phone_number"].(string); ok {
		out["phone_number"] = cleanPhone(p)
	}
	if b, ok := coerceBool(out["is_primary"]); ok {
		out["is_primary"] = b
	}
	return out
}

func cleanScalar(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return nil
	}
	return s
}

func cleanPhone(s string) any {
	out := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
	if out == "" {
		return nil
	}
	return out
}

func coerceBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(t) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}

var currencyTokens = []string{"EUR", "USD", "GBP", "eur", "€", "$", "£"}

// ParseMoney reads amounts such as "1500", "€ 1.500,00", "1,500.00" or
// "EUR 950". When both separators appear, the later one is the decimal mark.
func ParseMoney(s string) (float64, bool) {
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSuffix(s, ",-")
	s = strings.TrimSuffix(s, ".-")
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' && r != '-' {
			return 0, false
		}
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case dot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-dot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
