package chessanalysis

import (
	"context"
	"sort"
	"time"

	chess "github.com/corentings/chess/v2"
)

const (
	minSearchDepth = 4
	maxSearchDepth = 30
	engineMultiPV  = 3

	// Synthetic alternatives are this much worse than the line they are
	// derived from.
	syntheticEvalGap = 25
)

const startingFENPrefix = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w"

// Evaluator drives engine sessions to produce ranked evaluation lines for
// single positions. Failures never escape it: anything the engine cannot
// deliver is replaced by a synthetic fallback so downstream classification
// always has a best line and a second-best comparator to work with.
type Evaluator struct {
	newSession func() (engineSession, error)
}

// NewEvaluator returns an Evaluator that spawns one engine subprocess per
// Evaluate call.
func NewEvaluator(enginePath string) *Evaluator {
	return &Evaluator{
		newSession: func() (engineSession, error) {
			return NewStockfishEngine(enginePath)
		},
	}
}

// searchBudget maps a search depth to a wall-clock budget. Deep searches
// are rare (critical positions) so they are allowed far more time.
func searchBudget(depth int) time.Duration {
	switch {
	case depth <= 10:
		return 10 * time.Second
	case depth <= 14:
		return 25 * time.Second
	case depth <= 18:
		return 60 * time.Second
	case depth <= 21:
		return 2 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Evaluate analyzes a single position to the requested depth and returns
// ranked lines with evaluations normalized to White's perspective.
//
// The result is empty only for a checkmated position. Otherwise it holds at
// least two lines whenever the position has at least two legal moves; a
// single line is returned only when the position is genuinely forced.
// Irrecoverable engine failures yield a synthetic SourceFallback result
// instead of an error.
func (ev *Evaluator) Evaluate(ctx context.Context, fen string, targetDepth int) ([]EngineLine, EvalSource) {
	depth := targetDepth
	if depth < minSearchDepth {
		depth = minSearchDepth
	}
	if depth > maxSearchDepth {
		depth = maxSearchDepth
	}

	game, err := gameFromFEN(fen)
	if err != nil {
		log.Warn("invalid FEN, using fallback evaluation", "fen", fen, "error", err)
		return fallbackLines(nil, fen, depth, 1), SourceFallback
	}
	pos := game.Position()
	if pos.Status() == chess.Checkmate {
		return nil, SourceEngine
	}

	session, err := ev.newSession()
	if err != nil {
		log.Error("engine session unavailable", "error", err)
		return fallbackLines(pos, fen, depth, 1), SourceFallback
	}
	defer session.close()

	searchCtx, cancel := context.WithTimeout(ctx, searchBudget(depth))
	defer cancel()

	out, err := session.search(searchCtx, fen, depth, engineMultiPV)
	if err != nil || out == nil {
		log.Error("engine search failed", "fen", fen, "error", err)
		return fallbackLines(pos, fen, depth, 1), SourceFallback
	}

	lines := finalizeLines(pos, out, depth)
	if len(lines) == 0 {
		return fallbackLines(pos, fen, depth, max(out.maxDepth, 1)), SourceFallback
	}
	return ensureSecondLine(pos, lines), SourceEngine
}

// finalizeLines reduces the streamed info lines to the deepest report per
// rank, drops lines whose move does not parse against the position, and
// normalizes evaluations to White's perspective.
func finalizeLines(pos *chess.Position, out *searchOutput, targetDepth int) []EngineLine {
	deepest := make(map[int]rawLine)
	for _, line := range out.lines {
		if best, ok := deepest[line.rank]; !ok || line.depth >= best.depth {
			deepest[line.rank] = line
		}
	}

	ranks := make([]int, 0, len(deepest))
	for rank := range deepest {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	notation := chess.UCINotation{}
	lines := make([]EngineLine, 0, len(ranks))
	for _, rank := range ranks {
		raw := deepest[rank]
		if _, err := notation.Decode(pos, raw.moveUCI); err != nil {
			continue
		}
		eval := raw.eval
		if pos.Turn() == chess.Black {
			// The engine scores from the side to move; the contract is
			// always White's perspective.
			eval.Value = -eval.Value
		}
		lines = append(lines, EngineLine{
			Rank:          len(lines) + 1,
			SearchDepth:   targetDepth,
			ReportedDepth: raw.depth,
			Eval:          eval,
			MoveUCI:       raw.moveUCI,
			Continuation:  raw.continuation,
		})
	}
	return lines
}

// ensureSecondLine synthesizes a slightly worse alternative when the engine
// produced a single line for a position that does have another legal move.
// A truly forced position keeps its single line so the classifier can see
// that no alternative existed.
func ensureSecondLine(pos *chess.Position, lines []EngineLine) []EngineLine {
	if len(lines) != 1 {
		return lines
	}

	legal := pos.ValidMoves()
	if len(legal) < 2 {
		return lines
	}

	alt := ""
	for i := range legal {
		uci := chess.UCINotation{}.Encode(pos, &legal[i])
		if uci != lines[0].MoveUCI {
			alt = uci
			break
		}
	}
	if alt == "" {
		return lines
	}

	second := lines[0]
	second.Rank = 2
	second.MoveUCI = alt
	second.Continuation = []string{alt}
	second.Eval = worsenFor(pos.Turn(), lines[0].Eval)
	return append(lines, second)
}

// worsenFor returns an evaluation materially worse for the given side:
// a quarter pawn for centipawn scores, one ply for mate scores.
func worsenFor(mover chess.Color, eval Eval) Eval {
	if eval.Kind == Centipawn {
		if mover == chess.White {
			eval.Value -= syntheticEvalGap
		} else {
			eval.Value += syntheticEvalGap
		}
		return eval
	}

	moverIsMating := (mover == chess.White && eval.Value > 0) ||
		(mover == chess.Black && eval.Value < 0)
	magnitude := eval.Value
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if moverIsMating {
		magnitude++ // winning mate arrives one ply later
	} else if magnitude > 1 {
		magnitude-- // losing mate arrives one ply sooner
	}
	if eval.Value < 0 {
		magnitude = -magnitude
	}
	eval.Value = magnitude
	return eval
}

// fallbackLines builds the synthetic result used whenever the engine could
// not deliver anything usable. In the starting position the
// conventional opening moves stand in; elsewhere the first legal moves do,
// or a color-appropriate default when even the FEN is unusable.
func fallbackLines(pos *chess.Position, fen string, targetDepth, reportedDepth int) []EngineLine {
	first, second := "e2e4", "d2d4"
	switch {
	case len(fen) >= len(startingFENPrefix) && fen[:len(startingFENPrefix)] == startingFENPrefix:
		// keep the conventional defaults
	case pos != nil:
		legal := pos.ValidMoves()
		if len(legal) == 0 {
			return nil
		}
		first = chess.UCINotation{}.Encode(pos, &legal[0])
		second = ""
		if len(legal) > 1 {
			second = chess.UCINotation{}.Encode(pos, &legal[1])
		}
	case sideToMove(fen) == chess.Black:
		first, second = "e7e5", "d7d5"
	}

	mover := chess.White
	if pos != nil {
		mover = pos.Turn()
	} else {
		mover = sideToMove(fen)
	}

	flat := Eval{Kind: Centipawn, Value: 0}
	lines := []EngineLine{
		{
			Rank:          1,
			SearchDepth:   targetDepth,
			ReportedDepth: reportedDepth,
			Eval:          flat,
			MoveUCI:       first,
			Continuation:  []string{first},
		},
	}
	// A forced position keeps a single line even on the fallback path, so
	// the classifier can still see that no alternative existed.
	if second != "" {
		lines = append(lines, EngineLine{
			Rank:          2,
			SearchDepth:   targetDepth,
			ReportedDepth: reportedDepth,
			Eval:          worsenFor(mover, flat),
			MoveUCI:       second,
			Continuation:  []string{second},
		})
	}
	return lines
}
