package chessanalysis

import (
	"math"

	chess "github.com/corentings/chess/v2"
)

// BuildReport folds classified positions into per-side accuracy
// percentages and classification tallies. The first position carries no
// move and contributes to neither side.
func BuildReport(positions []*Position) *Report {
	report := &Report{
		Positions: positions,
		Classifications: SideTallies{
			White: make(map[Classification]int),
			Black: make(map[Classification]int),
		},
	}

	var whiteSum, blackSum float64
	var whiteMoves, blackMoves int
	for i := 1; i < len(positions); i++ {
		pos := positions[i]
		if pos == nil || pos.Classification == NoClassification {
			continue
		}
		weight := pos.Classification.AccuracyWeight()
		if sideToMove(positions[i-1].FEN) == chess.White {
			report.Classifications.White[pos.Classification]++
			whiteSum += weight
			whiteMoves++
		} else {
			report.Classifications.Black[pos.Classification]++
			blackSum += weight
			blackMoves++
		}
	}

	report.Accuracies.White = accuracyPercent(whiteSum, whiteMoves)
	report.Accuracies.Black = accuracyPercent(blackSum, blackMoves)
	return report
}

func accuracyPercent(sum float64, moves int) float64 {
	if moves == 0 {
		return 100.0
	}
	return math.Round(sum/float64(moves)*10000) / 100
}
