// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-pdf/fpdf"

	"github.com/danielhkuo/polly/models"
)

// WritePDF renders a one-table summary of the poll's results.
func WritePDF(w io.Writer, p *models.Poll, options []models.PollOption, results *models.PollResults) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(p.Title), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(p.Title), "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	if p.Description != "" {
		pdf.MultiCell(0, 5, tr(p.Description), "", "L", false)
	}
	pdf.Ln(2)

	meta := fmt.Sprintf("Type: %s   Created by: %s   Participants: %d", p.Type, p.CreatorName, results.Participants)
	pdf.CellFormat(0, 6, tr(meta), "", 1, "L", false, 0, "")
	if p.ExpiresAt != nil {
		pdf.CellFormat(0, 6, "Closes "+humanize.Time(*p.ExpiresAt), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{90, 20, 20, 20, 30}
	headers := []string{"Option", "Yes", "No", "Maybe", "Remaining"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	byOption := make(map[string]models.OptionResult, len(results.Options))
	for _, r := range results.Options {
		byOption[r.OptionID] = r
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, o := range options {
		r := byOption[o.ID]
		label := OptionLabel(o)
		if p.FinalizedOptionID != nil && *p.FinalizedOptionID == o.ID {
			label += " *"
		}
		remaining := "-"
		if r.Remaining != nil {
			remaining = strconv.Itoa(*r.Remaining)
		}
		pdf.CellFormat(widths[0], 7, tr(label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, strconv.Itoa(r.Yes), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 7, strconv.Itoa(r.No), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, strconv.Itoa(r.Maybe), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[4], 7, remaining, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	if p.FinalizedOptionID != nil {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 5, "* finalized choice", "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
