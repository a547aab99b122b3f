package chessanalysis

import (
	"testing"
)

func TestBuildReport(t *testing.T) {
	positions := []*Position{
		{FEN: startFEN},
		{FEN: italianGame[1].FEN, Move: &MoveRef{UCI: "e2e4"}, Classification: Best},
		{FEN: italianGame[2].FEN, Move: &MoveRef{UCI: "e7e5"}, Classification: Mistake},
		{FEN: italianGame[3].FEN, Move: &MoveRef{UCI: "g1f3"}, Classification: Good},
		{FEN: italianGame[4].FEN, Move: &MoveRef{UCI: "b8c6"}, Classification: Blunder},
	}

	report := BuildReport(positions)

	// White played best (1.0) and good (0.65); Black mistake (0.2) and
	// blunder (0.0).
	if report.Accuracies.White != 82.5 {
		t.Errorf("white accuracy = %.2f, want 82.50", report.Accuracies.White)
	}
	if report.Accuracies.Black != 10.0 {
		t.Errorf("black accuracy = %.2f, want 10.00", report.Accuracies.Black)
	}

	if report.Classifications.White[Best] != 1 || report.Classifications.White[Good] != 1 {
		t.Errorf("white tallies = %v", report.Classifications.White)
	}
	if report.Classifications.Black[Mistake] != 1 || report.Classifications.Black[Blunder] != 1 {
		t.Errorf("black tallies = %v", report.Classifications.Black)
	}
}

func TestBuildReportEmptySides(t *testing.T) {
	report := BuildReport([]*Position{{FEN: startFEN}})
	if report.Accuracies.White != 100.0 || report.Accuracies.Black != 100.0 {
		t.Errorf("accuracies = %.2f / %.2f, want 100 / 100 with no moves",
			report.Accuracies.White, report.Accuracies.Black)
	}
}
