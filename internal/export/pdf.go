package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/duetlabs/duet/internal/core"
)

// summarySheet renders a one-page-or-more PDF recap of a game: players,
// date, per-turn points and totals. Included in every archive next to the
// media files.
func (b *Builder) summarySheet(game core.GameSession, recs []core.Recording) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	title := fmt.Sprintf("%s vs %s", game.Seat1Name, game.Seat2Name)
	pdf.MultiCell(0, 10, sanitizeText(title), "", "C", false)
	pdf.Ln(5)

	// Game info
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Game")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	addInfoRow(pdf, "Played:", game.StartedAt.Format("January 2, 2006 at 3:04 PM"))
	addInfoRow(pdf, "Mode:", string(game.Relationship))
	addInfoRow(pdf, "Turns:", fmt.Sprintf("%d", len(recs)))
	pdf.Ln(5)

	// Turn listing
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Turns")
	pdf.Ln(8)

	if len(recs) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No recordings in this game.")
		pdf.Ln(6)
	}

	totals := map[core.Seat]int{}
	for i, rec := range recs {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}

		if rec.Meta.Seat == core.Seat1 {
			pdf.SetFillColor(200, 230, 255) // Light blue
		} else {
			pdf.SetFillColor(200, 255, 200) // Light green
		}

		pdf.SetFont("Arial", "B", 10)
		header := fmt.Sprintf("Turn %d - %s (%d pts, %.0fs)",
			i+1, game.SeatName(rec.Meta.Seat), rec.Meta.Points, rec.Meta.DurationSec)
		pdf.CellFormat(0, 7, sanitizeText(header), "", 1, "", true, 0, "")

		pdf.SetFont("Arial", "", 9)
		pdf.SetFillColor(255, 255, 255)
		pdf.MultiCell(0, 5, sanitizeText(b.promptText(rec.Meta.PromptID)), "", "", false)
		pdf.Ln(2)

		totals[rec.Meta.Seat] += rec.Meta.Points
	}

	// Totals
	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Score")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	addInfoRow(pdf, game.Seat1Name+":", fmt.Sprintf("%d points", totals[core.Seat1]))
	addInfoRow(pdf, game.Seat2Name+":", fmt.Sprintf("%d points", totals[core.Seat2]))

	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Exported from duet", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering summary pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func addInfoRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(40, 5, sanitizeText(label))
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, sanitizeText(value))
	pdf.Ln(5)
}

// gofpdf's core fonts are Windows-1252; swap common Unicode punctuation for
// ASCII so prompt and player text renders cleanly.
func sanitizeText(text string) string {
	replacer := strings.NewReplacer(
		"‘", "'",
		"’", "'",
		"“", "\"",
		"”", "\"",
		"–", "-",
		"—", "--",
		"…", "...",
		"•", "*",
		" ", " ",
	)
	return replacer.Replace(text)
}
