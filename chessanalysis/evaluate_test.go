package chessanalysis

import (
	"context"
	"fmt"
	"testing"
)

// fakeSession hands back one canned search result regardless of position.
type fakeSession struct {
	out *searchOutput
	err error
}

func (f *fakeSession) search(ctx context.Context, fen string, depth, multiPV int) (*searchOutput, error) {
	return f.out, f.err
}

func (f *fakeSession) close() error { return nil }

func fakeEvaluator(out *searchOutput, err error) *Evaluator {
	return &Evaluator{newSession: func() (engineSession, error) {
		return &fakeSession{out: out, err: err}, nil
	}}
}

func TestEvaluateNormalizesBlackPerspective(t *testing.T) {
	// The engine reports +50 for the side to move; with Black to move the
	// published value must be -50 from White's perspective.
	ev := fakeEvaluator(&searchOutput{
		maxDepth: 12,
		lines: []rawLine{
			{rank: 1, depth: 12, eval: Eval{Kind: Centipawn, Value: 50}, moveUCI: "e7e5"},
			{rank: 2, depth: 12, eval: Eval{Kind: Centipawn, Value: 40}, moveUCI: "d7d5"},
		},
	}, nil)

	lines, source := ev.Evaluate(context.Background(), italianGame[1].FEN, 12)
	if source != SourceEngine {
		t.Fatalf("source = %v, want engine", source)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Eval.Value != -50 || lines[1].Eval.Value != -40 {
		t.Errorf("evaluations = %d, %d, want -50, -40", lines[0].Eval.Value, lines[1].Eval.Value)
	}
}

func TestEvaluateKeepsDeepestPerRank(t *testing.T) {
	ev := fakeEvaluator(&searchOutput{
		maxDepth: 12,
		lines: []rawLine{
			{rank: 1, depth: 8, eval: Eval{Kind: Centipawn, Value: 10}, moveUCI: "d2d4"},
			{rank: 1, depth: 12, eval: Eval{Kind: Centipawn, Value: 35}, moveUCI: "e2e4"},
			{rank: 2, depth: 12, eval: Eval{Kind: Centipawn, Value: 30}, moveUCI: "d2d4"},
		},
	}, nil)

	lines, _ := ev.Evaluate(context.Background(), startFEN, 12)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].MoveUCI != "e2e4" || lines[0].Eval.Value != 35 {
		t.Errorf("rank 1 = %s at %d, want deepest report e2e4 at 35", lines[0].MoveUCI, lines[0].Eval.Value)
	}
	if lines[0].ReportedDepth != 12 {
		t.Errorf("rank 1 reported depth = %d, want 12", lines[0].ReportedDepth)
	}
}

func TestEvaluateSynthesizesSecondLine(t *testing.T) {
	ev := fakeEvaluator(&searchOutput{
		maxDepth: 12,
		lines: []rawLine{
			{rank: 1, depth: 12, eval: Eval{Kind: Centipawn, Value: 30}, moveUCI: "e2e4"},
		},
	}, nil)

	lines, source := ev.Evaluate(context.Background(), startFEN, 12)
	if source != SourceEngine {
		t.Fatalf("source = %v, want engine", source)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want a synthesized second", len(lines))
	}
	if lines[1].MoveUCI == lines[0].MoveUCI {
		t.Error("synthesized line repeats the best move")
	}
	if lines[1].Eval.Value != lines[0].Eval.Value-syntheticEvalGap {
		t.Errorf("synthesized eval = %d, want %d", lines[1].Eval.Value, lines[0].Eval.Value-syntheticEvalGap)
	}
}

func TestEvaluateForcedPositionKeepsSingleLine(t *testing.T) {
	// Black's king has exactly one square; no second line exists to
	// synthesize.
	forced := "R6k/8/5K2/8/8/8/8/8 b - - 0 1"
	ev := fakeEvaluator(&searchOutput{
		maxDepth: 12,
		lines: []rawLine{
			{rank: 1, depth: 12, eval: Eval{Kind: Centipawn, Value: -900}, moveUCI: "h8h7"},
		},
	}, nil)

	lines, source := ev.Evaluate(context.Background(), forced, 12)
	if source != SourceEngine {
		t.Fatalf("source = %v, want engine", source)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 for a forced position", len(lines))
	}
	if lines[0].Eval.Value != 900 {
		t.Errorf("evaluation = %d, want 900 from White's perspective", lines[0].Eval.Value)
	}
}

func TestEvaluateCheckmate(t *testing.T) {
	mate := "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	ev := fakeEvaluator(nil, fmt.Errorf("search should not run"))

	lines, source := ev.Evaluate(context.Background(), mate, 12)
	if source != SourceEngine {
		t.Fatalf("source = %v, want engine", source)
	}
	if len(lines) != 0 {
		t.Errorf("got %d lines for a checkmated position, want 0", len(lines))
	}
}

func TestEvaluateFallbacks(t *testing.T) {
	t.Run("search failure", func(t *testing.T) {
		ev := fakeEvaluator(nil, fmt.Errorf("engine crashed"))
		lines, source := ev.Evaluate(context.Background(), startFEN, 12)
		if source != SourceFallback {
			t.Fatalf("source = %v, want fallback", source)
		}
		if len(lines) != 2 {
			t.Fatalf("got %d fallback lines, want 2", len(lines))
		}
		if lines[0].MoveUCI != "e2e4" || lines[1].MoveUCI != "d2d4" {
			t.Errorf("fallback moves = %s, %s", lines[0].MoveUCI, lines[1].MoveUCI)
		}
	})

	t.Run("session unavailable", func(t *testing.T) {
		ev := &Evaluator{newSession: func() (engineSession, error) {
			return nil, fmt.Errorf("binary not found")
		}}
		lines, source := ev.Evaluate(context.Background(), italianGame[2].FEN, 12)
		if source != SourceFallback {
			t.Fatalf("source = %v, want fallback", source)
		}
		if len(lines) != 2 {
			t.Fatalf("got %d fallback lines, want 2", len(lines))
		}
	})

	t.Run("invalid FEN", func(t *testing.T) {
		ev := fakeEvaluator(nil, nil)
		lines, source := ev.Evaluate(context.Background(), "not a position", 12)
		if source != SourceFallback {
			t.Fatalf("source = %v, want fallback", source)
		}
		if len(lines) != 2 {
			t.Fatalf("got %d fallback lines, want 2", len(lines))
		}
	})

	t.Run("forced position stays single", func(t *testing.T) {
		forced := "R6k/8/5K2/8/8/8/8/8 b - - 0 1"
		ev := fakeEvaluator(nil, fmt.Errorf("engine crashed"))
		lines, source := ev.Evaluate(context.Background(), forced, 12)
		if source != SourceFallback {
			t.Fatalf("source = %v, want fallback", source)
		}
		if len(lines) != 1 {
			t.Fatalf("got %d fallback lines for a forced position, want 1", len(lines))
		}
		if lines[0].MoveUCI != "h8h7" {
			t.Errorf("fallback move = %s, want the only legal move h8h7", lines[0].MoveUCI)
		}
	})

	t.Run("unparseable engine moves", func(t *testing.T) {
		ev := fakeEvaluator(&searchOutput{
			maxDepth: 9,
			lines: []rawLine{
				{rank: 1, depth: 9, eval: Eval{Kind: Centipawn, Value: 10}, moveUCI: "e2e5"},
			},
		}, nil)
		lines, source := ev.Evaluate(context.Background(), startFEN, 12)
		if source != SourceFallback {
			t.Fatalf("source = %v, want fallback", source)
		}
		if len(lines) != 2 {
			t.Fatalf("got %d fallback lines, want 2", len(lines))
		}
	})
}

func TestWorsenFor(t *testing.T) {
	cases := []struct {
		name  string
		mover string
		in    Eval
		want  Eval
	}{
		{"white cp", "w", Eval{Kind: Centipawn, Value: 100}, Eval{Kind: Centipawn, Value: 75}},
		{"black cp", "b", Eval{Kind: Centipawn, Value: 100}, Eval{Kind: Centipawn, Value: 125}},
		{"white mating", "w", Eval{Kind: Mate, Value: 3}, Eval{Kind: Mate, Value: 4}},
		{"white being mated", "w", Eval{Kind: Mate, Value: -3}, Eval{Kind: Mate, Value: -2}},
		{"being mated floor", "w", Eval{Kind: Mate, Value: -1}, Eval{Kind: Mate, Value: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mover := sideToMove(fmt.Sprintf("8/8/8/8/8/8/8/8 %s - - 0 1", tc.mover))
			if got := worsenFor(mover, tc.in); got != tc.want {
				t.Errorf("worsenFor(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
