package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"solarops/internal/rollup/domain/series"
)

// BuildYieldCSV renders the ranked fleet as delimited text. One row per
// device, best specific yield first, summary row last.
func BuildYieldCSV(yields []series.DeviceYield, summary series.FleetSummary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"serial", "beneficiary", "capacity_kw", "total_kwh", "avg_daily_kwh", "specific_yield", "window_days"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, y := range yields {
		row := []string{
			y.DeviceID,
			y.Beneficiary,
			strconv.FormatFloat(y.CapacityKW, 'f', 3, 64),
			strconv.FormatFloat(y.TotalKWh, 'f', 3, 64),
			strconv.FormatFloat(y.AvgDailyKWh, 'f', 3, 64),
			strconv.FormatFloat(y.SpecificYield, 'f', 4, 64),
			strconv.Itoa(y.WindowDays),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	summaryRow := []string{
		"FLEET",
		fmt.Sprintf("%d devices", summary.Devices),
		strconv.FormatFloat(summary.TotalCapacityKW, 'f', 3, 64),
		strconv.FormatFloat(summary.TotalKWh, 'f', 3, 64),
		strconv.FormatFloat(summary.MeanAvgDailyKWh, 'f', 3, 64),
		strconv.FormatFloat(summary.MeanSpecificYield, 'f', 4, 64),
		"",
	}
	if err := writer.Write(summaryRow); err != nil {
		return nil, err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildYieldXLSX renders the ranked fleet as a two-sheet workbook.
func BuildYieldXLSX(yields []series.DeviceYield, summary series.FleetSummary) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	devicesSheet := "devices"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(devicesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Fleet Yield Report")
	_ = f.SetCellValue(summarySheet, "A3", "Devices")
	_ = f.SetCellValue(summarySheet, "B3", summary.Devices)
	_ = f.SetCellValue(summarySheet, "A4", "Total Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B4", summary.TotalKWh)
	_ = f.SetCellValue(summarySheet, "A5", "Total Capacity (kW)")
	_ = f.SetCellValue(summarySheet, "B5", summary.TotalCapacityKW)
	_ = f.SetCellValue(summarySheet, "A6", "Mean Daily (kWh)")
	_ = f.SetCellValue(summarySheet, "B6", summary.MeanAvgDailyKWh)
	_ = f.SetCellValue(summarySheet, "A7", "Mean Specific Yield")
	_ = f.SetCellValue(summarySheet, "B7", summary.MeanSpecificYield)
	_ = f.SetCellValue(summarySheet, "A8", "Best Device")
	_ = f.SetCellValue(summarySheet, "B8", summary.BestDeviceID)
	_ = f.SetCellValue(summarySheet, "A9", "Worst Device")
	_ = f.SetCellValue(summarySheet, "B9", summary.WorstDeviceID)

	_ = f.SetCellValue(devicesSheet, "A1", "Serial")
	_ = f.SetCellValue(devicesSheet, "B1", "Beneficiary")
	_ = f.SetCellValue(devicesSheet, "C1", "Capacity (kW)")
	_ = f.SetCellValue(devicesSheet, "D1", "Total (kWh)")
	_ = f.SetCellValue(devicesSheet, "E1", "Avg Daily (kWh)")
	_ = f.SetCellValue(devicesSheet, "F1", "Specific Yield")
	for i, y := range yields {
		row := i + 2
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("A%d", row), y.DeviceID)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("B%d", row), y.Beneficiary)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("C%d", row), y.CapacityKW)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("D%d", row), y.TotalKWh)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("E%d", row), y.AvgDailyKWh)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("F%d", row), y.SpecificYield)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildYieldPDF renders the ranked fleet as a single-page table report.
func BuildYieldPDF(yields []series.DeviceYield, summary series.FleetSummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fleet Yield Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Devices: %d", summary.Devices))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Energy (kWh): %.3f", summary.TotalKWh))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Capacity (kW): %.3f", summary.TotalCapacityKW))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Mean Specific Yield: %.4f", summary.MeanSpecificYield))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Best: %s  Worst: %s", summary.BestDeviceID, summary.WorstDeviceID))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Serial", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Beneficiary", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "kW", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Total kWh", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Daily kWh", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Yield", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, y := range yields {
		pdf.CellFormat(35, 6, y.DeviceID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, y.Beneficiary, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", y.CapacityKW), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.3f", y.TotalKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.3f", y.AvgDailyKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.4f", y.SpecificYield), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
