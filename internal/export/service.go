package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/YorickdeJong/energy-contracts/internal/entity"
	"github.com/YorickdeJong/energy-contracts/internal/repository"
)

const sheet = "Tenancies"

var headers = []string{
	"Household",
	"Address",
	"Tenancy",
	"Status",
	"Start Date",
	"End Date",
	"Monthly Rent",
	"Deposit",
	"Primary Renter",
	"Renters",
}

// Service is a tiny façade over repositories that produces XLSX bytes for exports.
type Service struct {
	store  repository.Store
	logger *slog.Logger
}

func NewService(store repository.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// TenanciesXLSX returns a workbook with one row per tenancy matching filter,
// newest start date first.
func (s *Service) TenanciesXLSX(ctx context.Context, filter entity.TenancyFilter) ([]byte, error) {
	start := time.Now()
	repos := s.store.Repos()

	tenancies, err := repos.Tenancies.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query tenancies: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	// rename the default sheet instead of leaving an empty Sheet1 behind
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	households := map[uuid.UUID]*entity.Household{}
	row := 2
	for _, t := range tenancies {
		h, ok := households[t.HouseholdID]
		if !ok {
			if h, err = repos.Households.Get(ctx, t.HouseholdID); err != nil {
				return nil, fmt.Errorf("load household %s: %w", t.HouseholdID, err)
			}
			households[t.HouseholdID] = h
		}
		renters, err := repos.Renters.ListByTenancy(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("load renters of %s: %w", t.ID, err)
		}

		primary := ""
		emails := make([]string, 0, len(renters))
		for _, r := range renters {
			if r.User == nil {
				continue
			}
			emails = append(emails, r.User.Email)
			if r.IsPrimary {
				primary = strings.TrimSpace(r.User.FullName() + " <" + r.User.Email + ">")
			}
		}
		end := ""
		if t.EndDate != nil {
			end = t.EndDate.String()
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, h.Name)
		write(2, h.Address)
		write(3, t.Name)
		write(4, string(t.Status))
		write(5, t.StartDate.String())
		write(6, end)
		write(7, t.MonthlyRent)
		write(8, t.Deposit)
		write(9, primary)
		write(10, strings.Join(emails, ", "))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 22)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	_ = f.SetColWidth(sheet, "C", "C", 28)
	_ = f.SetColWidth(sheet, "D", "F", 14)
	_ = f.SetColWidth(sheet, "G", "H", 14)
	_ = f.SetColWidth(sheet, "I", "J", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(tenancies),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
