// Package export serializes match candidates for external audit
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"

	sheetName      = "Candidates"
	pendingLabel   = "Pending"
	reviewedLayout = time.RFC3339
)

// Columns is the header row shared by every format
var Columns = []string{
	"Entity1_ID",
	"Entity2_ID",
	"Entity1_Name",
	"Entity2_Name",
	"Entity1_Type",
	"Entity2_Type",
	"Confidence_Score",
	"Similarity_Score",
	"Match_Type",
	"User_Decision",
	"Reviewed_At",
	"Reviewed_By",
	"Notes",
}

// Row is one exported candidate
type Row struct {
	Entity1ID       string  `json:"Entity1_ID"`
	Entity2ID       string  `json:"Entity2_ID"`
	Entity1Name     string  `json:"Entity1_Name"`
	Entity2Name     string  `json:"Entity2_Name"`
	Entity1Type     string  `json:"Entity1_Type"`
	Entity2Type     string  `json:"Entity2_Type"`
	ConfidenceScore float64 `json:"Confidence_Score"`
	SimilarityScore float64 `json:"Similarity_Score"`
	MatchType       string  `json:"Match_Type"`
	UserDecision    string  `json:"User_Decision"`
	ReviewedAt      string  `json:"Reviewed_At"`
	ReviewedBy      string  `json:"Reviewed_By"`
	Notes           string  `json:"Notes"`
}

// ParseFormat accepts csv, json, xlsx and the alias excel
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Filename returns a download name with the format's extension
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// Rows flattens candidates into export rows
func Rows(candidates []models.MatchCandidate) []Row {
	rows := make([]Row, 0, len(candidates))
	for _, c := range candidates {
		row := Row{
			Entity1ID:       c.Entity1ID,
			Entity2ID:       c.Entity2ID,
			Entity1Name:     c.Entity1Name,
			Entity2Name:     c.Entity2Name,
			Entity1Type:     c.Entity1Type,
			Entity2Type:     c.Entity2Type,
			ConfidenceScore: c.Confidence,
			SimilarityScore: c.SimilarityScore,
			MatchType:       string(c.MatchType),
			UserDecision:    pendingLabel,
		}
		if c.Review.Decision != "" && c.Review.Decision != models.DecisionNone {
			row.UserDecision = string(c.Review.Decision)
		}
		if c.Review.ReviewedAt != nil {
			row.ReviewedAt = c.Review.ReviewedAt.UTC().Format(reviewedLayout)
		}
		if c.Review.ReviewedBy != nil {
			row.ReviewedBy = *c.Review.ReviewedBy
		}
		if c.Review.Notes != nil {
			row.Notes = *c.Review.Notes
		}
		rows = append(rows, row)
	}
	return rows
}

func (r Row) values() []string {
	return []string{
		r.Entity1ID,
		r.Entity2ID,
		r.Entity1Name,
		r.Entity2Name,
		r.Entity1Type,
		r.Entity2Type,
		strconv.FormatFloat(r.ConfidenceScore, 'f', -1, 64),
		strconv.FormatFloat(r.SimilarityScore, 'f', -1, 64),
		r.MatchType,
		r.UserDecision,
		r.ReviewedAt,
		r.ReviewedBy,
		r.Notes,
	}
}

// Write serializes candidates to w in the given format
func Write(w io.Writer, format Format, candidates []models.MatchCandidate) error {
	rows := Rows(candidates)
	switch format {
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatJSON:
		return writeJSON(w, rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for col, header := range Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}

	for i, r := range rows {
		cells := []any{
			r.Entity1ID, r.Entity2ID, r.Entity1Name, r.Entity2Name, r.Entity1Type, r.Entity2Type,
			r.ConfidenceScore, r.SimilarityScore, r.MatchType, r.UserDecision, r.ReviewedAt, r.ReviewedBy, r.Notes,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	return f.Write(w)
}
