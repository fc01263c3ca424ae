// Package xlsx loads the fleet roster from the operations workbook. The
// roster is maintained by hand in a spreadsheet; this loader is tolerant
// about header spelling but strict about the values themselves.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	roster "solarops/internal/roster/domain"
)

// ErrNoHeader is returned when the sheet has no recognizable header row.
var ErrNoHeader = errors.New("roster xlsx: header row not found")

// Loader reads the roster from an XLSX workbook.
type Loader struct {
	path  string
	sheet string
}

// Option configures the loader.
type Option func(*Loader)

// WithSheet overrides the sheet name. By default the first sheet is read.
func WithSheet(sheet string) Option {
	return func(l *Loader) {
		if sheet != "" {
			l.sheet = sheet
		}
	}
}

// NewLoader constructs a loader for the workbook at path.
func NewLoader(path string, opts ...Option) (*Loader, error) {
	if path == "" {
		return nil, errors.New("roster xlsx: empty path")
	}
	l := &Loader{path: path}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// List reads the roster. Implements roster.Repository.
func (l *Loader) List(ctx context.Context) ([]roster.Device, error) {
	_ = ctx
	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("roster xlsx: open %s: %w", l.path, err)
	}
	defer f.Close()

	sheet := l.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("roster xlsx: read sheet %s: %w", sheet, err)
	}

	serialCol, beneficiaryCol, capacityCol := -1, -1, -1
	headerRow := -1
	for i, row := range rows {
		for j, cell := range row {
			switch normalizeHeader(cell) {
			case "serial", "serialnumber", "sn":
				serialCol = j
			case "beneficiary", "school", "site":
				beneficiaryCol = j
			case "capacity", "capacitykw", "kw", "ratedcapacity":
				capacityCol = j
			}
		}
		if serialCol >= 0 && capacityCol >= 0 {
			headerRow = i
			break
		}
		serialCol, beneficiaryCol, capacityCol = -1, -1, -1
	}
	if headerRow < 0 {
		return nil, ErrNoHeader
	}

	var result []roster.Device
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		serial := cellAt(row, serialCol)
		if serial == "" {
			continue
		}
		capacityRaw := cellAt(row, capacityCol)
		capacity, err := strconv.ParseFloat(strings.TrimSpace(capacityRaw), 64)
		if err != nil {
			return nil, fmt.Errorf("roster xlsx: row %d: capacity %q: %w", i+1, capacityRaw, roster.ErrInvalidCapacity)
		}
		device := roster.Device{
			Serial:      serial,
			Beneficiary: cellAt(row, beneficiaryCol),
			CapacityKW:  capacity,
		}
		if err := device.Validate(); err != nil {
			return nil, fmt.Errorf("roster xlsx: row %d: %w", i+1, err)
		}
		result = append(result, device)
	}
	return result, nil
}

func normalizeHeader(cell string) string {
	cell = strings.ToLower(strings.TrimSpace(cell))
	cell = strings.ReplaceAll(cell, " ", "")
	cell = strings.ReplaceAll(cell, "_", "")
	cell = strings.ReplaceAll(cell, "(kw)", "kw")
	return cell
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
