package chessanalysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EvalKind discriminates between centipawn and mate evaluations.
type EvalKind int

const (
	Centipawn EvalKind = iota
	Mate
)

func (k EvalKind) String() string {
	return []string{"cp", "mate"}[k]
}

// Eval is an engine evaluation, always normalized to White's perspective:
// a positive value favors White no matter whose turn it is. For Mate the
// magnitude is plies to mate and the sign names the side delivering it;
// zero means the position is already checkmate.
type Eval struct {
	Kind  EvalKind `json:"kind"`
	Value int      `json:"value"`
}

func (e Eval) String() string {
	if e.Kind == Mate {
		return fmt.Sprintf("#%d", e.Value)
	}
	return fmt.Sprintf("%+.2f", float64(e.Value)/100)
}

func (e Eval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Value int    `json:"value"`
	}{Kind: e.Kind.String(), Value: e.Value})
}

// EngineLine is one ranked candidate continuation for a position.
type EngineLine struct {
	Rank          int      `json:"rank"` // 1 = principal variation
	SearchDepth   int      `json:"searchDepth"`
	ReportedDepth int      `json:"reportedDepth"`
	Eval          Eval     `json:"eval"`
	MoveUCI       string   `json:"moveUci"`
	Continuation  []string `json:"continuation,omitempty"`
}

// EvalSource records where a position's evaluation lines came from.
type EvalSource int

const (
	SourceEngine EvalSource = iota
	SourceCloud
	SourceFallback
)

func (s EvalSource) String() string {
	return []string{"engine", "cloud", "fallback"}[s]
}

func (s EvalSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Classification is the quality label for a single move.
type Classification int

const (
	NoClassification Classification = iota
	Brilliant
	Great
	Best
	Excellent
	Good
	Inaccuracy
	Mistake
	Blunder
	Book
	Forced
)

var classificationNames = []string{
	"", "brilliant", "great", "best", "excellent", "good",
	"inaccuracy", "mistake", "blunder", "book", "forced",
}

func (c Classification) String() string {
	if c < 0 || int(c) >= len(classificationNames) {
		return ""
	}
	return classificationNames[c]
}

// MarshalText lets Classification serve as a JSON map key.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Classification) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	for i, name := range classificationNames {
		if name == s {
			*c = Classification(i)
			return nil
		}
	}
	return fmt.Errorf("unknown classification %q", s)
}

// AccuracyWeight is the contribution of a move with this label to the
// per-side accuracy percentage.
func (c Classification) AccuracyWeight() float64 {
	switch c {
	case Brilliant, Great, Best, Book, Forced:
		return 1.0
	case Excellent:
		return 0.9
	case Good:
		return 0.65
	case Inaccuracy:
		return 0.4
	case Mistake:
		return 0.2
	default:
		return 0.0
	}
}

// MoveRef is the move that produced a position, in both notations.
type MoveRef struct {
	SAN string `json:"san"`
	UCI string `json:"uci"`
}

// PositionStub is the input form of a position: a FEN plus the move that
// led to it. The first stub of a sequence carries no move.
type PositionStub struct {
	FEN string `json:"fen"`
	SAN string `json:"san,omitempty"`
	UCI string `json:"uci,omitempty"`
}

// Position is a fully enriched position in the analyzed sequence.
type Position struct {
	FEN            string         `json:"fen"`
	Move           *MoveRef       `json:"move,omitempty"`
	Lines          []EngineLine   `json:"lines"`
	Classification Classification `json:"classification,omitempty"`
	Opening        string         `json:"opening,omitempty"`
	Source         EvalSource     `json:"source"`
}

// SideAccuracy is the per-side accuracy percentage pair.
type SideAccuracy struct {
	White float64 `json:"white"`
	Black float64 `json:"black"`
}

// SideTallies counts classifications per side.
type SideTallies struct {
	White map[Classification]int `json:"white"`
	Black map[Classification]int `json:"black"`
}

// Report is the final product of a full game analysis.
type Report struct {
	Accuracies      SideAccuracy `json:"accuracies"`
	Classifications SideTallies  `json:"classifications"`
	Positions       []*Position  `json:"positions"`
}
