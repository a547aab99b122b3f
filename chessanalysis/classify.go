package chessanalysis

import (
	chess "github.com/corentings/chess/v2"
)

// decisiveEval is the White-perspective magnitude beyond which a position
// is treated as already decided.
const decisiveEval = 600

// ClassifyInput is everything the classifier needs for one move: the
// position pair, both positions' evaluation lines, the move in both
// notations, the classification of the move played just before (which
// gates the "great" upgrade) and an optional cutoff evaluation supplied by
// the caller as an extra comparator.
type ClassifyInput struct {
	PrevFEN            string
	FEN                string
	PrevLines          []EngineLine
	Lines              []EngineLine
	MoveUCI            string
	MoveSAN            string
	PrevClassification Classification
	Cutoff             *Eval
}

// Classify labels the move leading from PrevFEN to FEN. It is a pure
// function: identical inputs always yield the same label, and the rules
// are ordered so the first match wins — the result is always the most
// generous label consistent with the measured evaluation loss.
func Classify(in ClassifyInput) Classification {
	if len(in.PrevLines) < 2 {
		// No real alternative existed.
		return Forced
	}

	mover := sideToMove(in.PrevFEN)
	prevBest := lineWithRank(in.PrevLines, 1)

	if len(in.Lines) == 0 {
		// Terminal position: delivering mate is trivially the best move.
		if game, err := gameFromFEN(in.FEN); err == nil && game.Position().Status() == chess.Checkmate {
			return Best
		}
		return Book
	}
	curBest := lineWithRank(in.Lines, 1)

	prevEval := prevBest.Eval
	newEval := curBest.Eval

	if in.MoveUCI == prevBest.MoveUCI {
		if isBrilliant(in, mover, prevEval, newEval) {
			return Brilliant
		}
		if isGreat(in, mover, prevEval, newEval) {
			return Great
		}
		return Best
	}

	switch {
	case prevEval.Kind == Centipawn && newEval.Kind == Centipawn:
		loss := evalLoss(in, mover, prevEval, newEval)
		result := thresholdWalk(abs(prevEval.Value), loss)
		if result == Blunder && abs(prevEval.Value) >= decisiveEval {
			// The position was already decided; the label carries no
			// information, so stay conservative.
			return Good
		}
		return result
	case prevEval.Kind == Centipawn && newEval.Kind == Mate:
		return centipawnToMate(mover, newEval)
	case prevEval.Kind == Mate && newEval.Kind == Centipawn:
		return mateToCentipawn(mover, prevEval, newEval)
	default:
		return mateToMate(mover, prevEval, newEval)
	}
}

func lineWithRank(lines []EngineLine, rank int) *EngineLine {
	for i := range lines {
		if lines[i].Rank == rank {
			return &lines[i]
		}
	}
	return &lines[0]
}

// povValue converts a White-perspective evaluation value to the mover's
// perspective.
func povValue(mover chess.Color, e Eval) int {
	if mover == chess.Black {
		return -e.Value
	}
	return e.Value
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// evalLoss measures how much ground the mover gave up, in centipawns from
// the mover's perspective. Three comparators are considered — the previous
// best line, the caller's cutoff, and the previous line for this exact
// move — and the smallest loss wins, so the classifier is never harsher
// than the most charitable reading of the engine's own uncertainty.
func evalLoss(in ClassifyInput, mover chess.Color, prevEval, newEval Eval) float64 {
	newPov := povValue(mover, newEval)
	loss := float64(povValue(mover, prevEval) - newPov)

	if in.Cutoff != nil && in.Cutoff.Kind == Centipawn {
		if vs := float64(povValue(mover, *in.Cutoff) - newPov); vs < loss {
			loss = vs
		}
	}
	for i := range in.PrevLines {
		line := &in.PrevLines[i]
		if line.MoveUCI == in.MoveUCI && line.Eval.Kind == Centipawn {
			if vs := float64(povValue(mover, line.Eval) - newPov); vs < loss {
				loss = vs
			}
			break
		}
	}

	if loss < 0 {
		loss = 0
	}
	return loss
}

// lossThresholds is the ordered ladder walked for centipawn-to-centipawn
// moves. Each entry is a quadratic in the previous evaluation's magnitude:
// thresholds are tight near equality and loosen as the position is already
// decided. The walk returns the first label whose threshold covers the
// measured loss; nothing covering it is a blunder.
var lossThresholds = []struct {
	class   Classification
	a, b, c float64
}{
	{Best, 0.00001, 0.0075, 12},
	{Excellent, 0.00002, 0.010, 20},
	{Good, 0.00005, 0.040, 60},
	{Inaccuracy, 0.00010, 0.070, 110},
	{Mistake, 0.00020, 0.110, 190},
}

func thresholdWalk(prevMagnitude int, loss float64) Classification {
	x := float64(prevMagnitude)
	if x > 1500 {
		x = 1500
	}
	for _, t := range lossThresholds {
		if t.a*x*x+t.b*x+t.c >= loss {
			return t.class
		}
	}
	return Blunder
}

// centipawnToMate grades a move that turned a centipawn position into a
// mate score: finding a mate is best, walking into one is graded by how
// close the mate is.
func centipawnToMate(mover chess.Color, newEval Eval) Classification {
	if povValue(mover, newEval) >= 0 {
		return Best
	}
	switch dist := abs(newEval.Value); {
	case dist <= 2:
		return Blunder
	case dist <= 5:
		return Mistake
	default:
		return Inaccuracy
	}
}

// mateToCentipawn grades a move after which a mate score dissolved into a
// centipawn one.
func mateToCentipawn(mover chess.Color, prevEval, newEval Eval) Classification {
	newPov := povValue(mover, newEval)
	if povValue(mover, prevEval) < 0 {
		// The mover was being mated; a position that is merely losing is
		// the best that was on offer.
		if newPov <= 0 {
			return Best
		}
		return Good
	}

	// The mover had a forced mate and let it slip; grade by how much the
	// opponent recovered.
	switch {
	case newPov >= 700:
		return Good
	case newPov >= 300:
		return Inaccuracy
	case newPov >= 0:
		return Mistake
	default:
		return Blunder
	}
}

// mateToMate compares mate distances. Faster progress on one's own mate is
// best, slightly slower progress is tolerated, and handing the mate to the
// opponent is the worst outcome there is.
func mateToMate(mover chess.Color, prevEval, newEval Eval) Classification {
	prevPov := povValue(mover, prevEval)
	newPov := povValue(mover, newEval)
	prevDist := abs(prevEval.Value)
	newDist := abs(newEval.Value)

	if prevPov > 0 {
		if newPov < 0 {
			return Blunder
		}
		switch {
		case newDist <= prevDist:
			return Best
		case newDist <= prevDist+2:
			return Excellent
		default:
			return Good
		}
	}

	if newPov > 0 {
		// From being mated to mating; the engine disagreed with itself,
		// and the mover can only be credited.
		return Best
	}

	// Best defense stretches the opponent's mate by keeping its distance;
	// collapsing several plies at once is a real mistake even in a lost
	// position.
	if newDist >= prevDist-1 {
		return Best
	}
	if deficit := (prevDist - 1) - newDist; deficit >= 4 {
		return Mistake
	}
	return Inaccuracy
}

// isBrilliant detects a genuine sacrifice: the engine's top move that
// deliberately leaves one of the mover's own pieces capturable without the
// capture refuting it on the spot.
func isBrilliant(in ClassifyInput, mover chess.Color, prevEval, newEval Eval) bool {
	if prevEval.Kind != Centipawn || newEval.Kind != Centipawn {
		return false
	}
	if len(in.MoveUCI) >= 5 {
		// Promotions advertise themselves; they are never brilliancies.
		return false
	}

	second := lineWithRank(in.PrevLines, 2)
	if second.Eval.Kind == Mate {
		if povValue(mover, second.Eval) > 0 {
			return false
		}
	} else if povValue(mover, second.Eval) >= decisiveEval {
		// Already winning overwhelmingly even with the second-best move.
		return false
	}

	if inCheck(in.PrevFEN, mover) {
		return false
	}

	hanging := hangingOwnPieces(in.PrevFEN, in.FEN, mover)
	if len(hanging) == 0 {
		return false
	}
	for _, sq := range hanging {
		if !sacrificeSafe(in.FEN, sq) {
			// Profitable capture that mates on the spot: a blunder in
			// disguise, not a sacrifice.
			return false
		}
	}
	return true
}

// isGreat detects the only-move save after an opponent blunder: the top
// choice, with a wide gap to the second line, landing on a safe square.
func isGreat(in ClassifyInput, mover chess.Color, prevEval, newEval Eval) bool {
	if in.PrevClassification != Blunder {
		return false
	}
	if prevEval.Kind != Centipawn || newEval.Kind != Centipawn {
		return false
	}
	second := lineWithRank(in.PrevLines, 2)
	if second.Eval.Kind != Centipawn {
		return false
	}
	if povValue(mover, prevEval)-povValue(mover, second.Eval) < 150 {
		return false
	}
	if len(in.MoveUCI) < 4 {
		return false
	}
	hanging, err := IsHanging(in.PrevFEN, in.FEN, in.MoveUCI[2:4])
	if err != nil || hanging {
		return false
	}
	return true
}

// inCheck reports whether the given side's king is attacked in fen.
func inCheck(fen string, c chess.Color) bool {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false
	}
	ks, ok := kingSquare(game.Position(), c)
	if !ok {
		return false
	}
	attackers, _, err := attackersOn(fen, ks)
	return err == nil && len(attackers) > 0
}

// hangingOwnPieces lists the mover's non-king, non-pawn pieces left
// capturable by the move that produced fen.
func hangingOwnPieces(prevFen, fen string, mover chess.Color) []chess.Square {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil
	}

	var squares []chess.Square
	for sq, piece := range game.Position().Board().SquareMap() {
		if piece.Color() != mover || piece.Type() == chess.King || piece.Type() == chess.Pawn {
			continue
		}
		hanging, err := IsHanging(prevFen, fen, sq.String())
		if err == nil && hanging {
			squares = append(squares, sq)
		}
	}
	return squares
}

// sacrificeSafe probes every capture onto sq (every attacker, every
// promotion choice) and reports false if any of them delivers immediate
// checkmate.
func sacrificeSafe(fen string, sq chess.Square) bool {
	_, attackPos, err := attackersOn(fen, sq)
	if err != nil || attackPos == nil {
		return false
	}
	moves := attackPos.ValidMoves()
	for i := range moves {
		m := moves[i]
		if m.S2() != sq {
			continue
		}
		if next := attackPos.Update(&m); next != nil && next.Status() == chess.Checkmate {
			return false
		}
	}
	return true
}
