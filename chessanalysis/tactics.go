package chessanalysis

import (
	"fmt"
	"strings"

	chess "github.com/corentings/chess/v2"
)

// Tactical analysis primitives. Everything here is a pure function of FEN
// strings: no board state is cached between calls, which keeps the
// primitives trivially testable at the cost of some recomputation.

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
	chess.King:   99,
}

func gameFromFEN(fen string) (*chess.Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt), nil
}

func sideToMove(fen string) chess.Color {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return chess.Black
	}
	return chess.White
}

func parseSquare(s string) (chess.Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("invalid square %q", s)
	}
	return chess.NewSquare(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), nil
}

// setTurn rewrites the side-to-move field of a FEN. The en passant target
// is cleared because it cannot survive a turn flip.
func setTurn(fen string, c chess.Color) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	fields[1] = "w"
	if c == chess.Black {
		fields[1] = "b"
	}
	fields[3] = "-"
	return strings.Join(fields, " ")
}

// replacePieceChar swaps the occupant of a square in the FEN board field
// for the given piece letter.
func replacePieceChar(fen string, sq chess.Square, piece byte) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", fmt.Errorf("malformed FEN %q", fen)
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return "", fmt.Errorf("malformed FEN board %q", fields[0])
	}

	rankIdx := 7 - int(sq.Rank())
	expanded := make([]byte, 0, 8)
	for i := 0; i < len(ranks[rankIdx]); i++ {
		ch := ranks[rankIdx][i]
		if ch >= '1' && ch <= '8' {
			for n := 0; n < int(ch-'0'); n++ {
				expanded = append(expanded, '1')
			}
		} else {
			expanded = append(expanded, ch)
		}
	}
	if len(expanded) != 8 {
		return "", fmt.Errorf("malformed FEN rank %q", ranks[rankIdx])
	}
	expanded[int(sq.File())] = piece

	var sb strings.Builder
	empty := 0
	for _, ch := range expanded {
		if ch == '1' {
			empty++
			continue
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
			empty = 0
		}
		sb.WriteByte(ch)
	}
	if empty > 0 {
		sb.WriteByte(byte('0' + empty))
	}
	ranks[rankIdx] = sb.String()
	fields[0] = strings.Join(ranks, "/")
	return strings.Join(fields, " "), nil
}

func kingSquare(pos *chess.Position, c chess.Color) (chess.Square, bool) {
	for sq, piece := range pos.Board().SquareMap() {
		if piece.Type() == chess.King && piece.Color() == c {
			return sq, true
		}
	}
	return 0, false
}

func squaresAdjacent(a, b chess.Square) bool {
	df := int(a.File()) - int(b.File())
	dr := int(a.Rank()) - int(b.Rank())
	if df < 0 {
		df = -df
	}
	if dr < 0 {
		dr = -dr
	}
	return df <= 1 && dr <= 1 && (df != 0 || dr != 0)
}

// attackerInfo is one piece with a capture onto a square. A king that
// cannot legally land on the square but participates in the exchange is
// recorded without a move.
type attackerInfo struct {
	piece   chess.Piece
	from    chess.Square
	move    chess.Move
	hasMove bool
}

// attackersOn enumerates the pieces of the side not occupying sq that can
// capture onto it, by flipping the side to move and generating captures.
// The returned position is the flipped one the moves are valid in.
func attackersOn(fen string, sq chess.Square) ([]attackerInfo, *chess.Position, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, nil, err
	}
	pos := game.Position()
	target := pos.Board().Piece(sq)
	if target == chess.NoPiece {
		return nil, pos, nil
	}

	attackerColor := target.Color().Other()
	if pos.Turn() != attackerColor {
		game, err = gameFromFEN(setTurn(fen, attackerColor))
		if err != nil {
			return nil, nil, err
		}
		pos = game.Position()
	}

	seen := make(map[chess.Square]bool)
	var attackers []attackerInfo
	moves := pos.ValidMoves()
	for i := range moves {
		m := moves[i]
		if m.S2() != sq || seen[m.S1()] {
			continue
		}
		seen[m.S1()] = true
		attackers = append(attackers, attackerInfo{
			piece:   pos.Board().Piece(m.S1()),
			from:    m.S1(),
			move:    m,
			hasMove: true,
		})
	}

	// A king whose capture is illegal (the square is defended) still joins
	// the exchange when it is not the sole attacker; counting it alone
	// would invent an illegal king capture.
	hasKing := false
	for _, a := range attackers {
		if a.piece.Type() == chess.King {
			hasKing = true
			break
		}
	}
	if len(attackers) > 0 && !hasKing {
		if ks, ok := kingSquare(pos, attackerColor); ok && squaresAdjacent(ks, sq) {
			attackers = append(attackers, attackerInfo{
				piece: pos.Board().Piece(ks),
				from:  ks,
			})
		}
	}
	return attackers, pos, nil
}

// defendersOn computes the pieces that would recapture if the occupant of
// sq were taken. With a real attacker available the capture is simulated
// and the attackers of the resulting board are the defenders; without one,
// the occupant is replaced by an enemy queen to reveal latent defense.
func defendersOn(fen string, sq chess.Square) ([]attackerInfo, error) {
	attackers, attackPos, err := attackersOn(fen, sq)
	if err != nil {
		return nil, err
	}

	for _, a := range attackers {
		if !a.hasMove {
			continue
		}
		m := a.move
		next := attackPos.Update(&m)
		if next == nil {
			continue
		}
		defenders, _, err := attackersOn(next.String(), sq)
		return defenders, err
	}

	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	target := game.Position().Board().Piece(sq)
	if target == chess.NoPiece {
		return nil, nil
	}
	queen := byte('q')
	if target.Color() == chess.Black {
		queen = 'Q'
	}
	hypothetical, err := replacePieceChar(fen, sq, queen)
	if err != nil {
		return nil, err
	}
	defenders, _, err := attackersOn(hypothetical, sq)
	return defenders, err
}

// Attackers returns every piece of the side not occupying square that has
// a capture onto it.
func Attackers(fen, square string) ([]chess.Piece, error) {
	sq, err := parseSquare(square)
	if err != nil {
		return nil, err
	}
	infos, _, err := attackersOn(fen, sq)
	if err != nil {
		return nil, err
	}
	return piecesOf(infos), nil
}

// Defenders returns the pieces that would recapture if the piece on square
// were captured.
func Defenders(fen, square string) ([]chess.Piece, error) {
	sq, err := parseSquare(square)
	if err != nil {
		return nil, err
	}
	infos, err := defendersOn(fen, sq)
	if err != nil {
		return nil, err
	}
	return piecesOf(infos), nil
}

func piecesOf(infos []attackerInfo) []chess.Piece {
	if len(infos) == 0 {
		return nil
	}
	pieces := make([]chess.Piece, len(infos))
	for i, info := range infos {
		pieces[i] = info.piece
	}
	return pieces
}

func isMinor(p chess.Piece) bool {
	return p.Type() == chess.Knight || p.Type() == chess.Bishop
}

// IsHanging reports whether the piece now on square can be won for less
// material than it is worth, comparing the board before and after the move
// that produced afterFen.
func IsHanging(beforeFen, afterFen, square string) (bool, error) {
	sq, err := parseSquare(square)
	if err != nil {
		return false, err
	}

	afterGame, err := gameFromFEN(afterFen)
	if err != nil {
		return false, err
	}
	piece := afterGame.Position().Board().Piece(sq)
	if piece == chess.NoPiece {
		return false, nil
	}
	value := pieceValues[piece.Type()]

	var previous chess.Piece = chess.NoPiece
	if beforeGame, err := gameFromFEN(beforeFen); err == nil {
		previous = beforeGame.Position().Board().Piece(sq)
	}

	// An equal-or-better trade just resolved on this square; the piece is
	// compensation, not a target.
	if previous != chess.NoPiece && previous.Color() != piece.Color() &&
		pieceValues[previous.Type()] >= value {
		return false, nil
	}

	attackers, _, err := attackersOn(afterFen, sq)
	if err != nil {
		return false, err
	}
	defenders, err := defendersOn(afterFen, sq)
	if err != nil {
		return false, err
	}

	// Rook takes minor with exactly one minor defender is a known
	// favorable exchange pattern, not a hang.
	if piece.Type() == chess.Rook &&
		previous != chess.NoPiece && isMinor(previous) &&
		len(defenders) == 1 && isMinor(defenders[0].piece) {
		return false, nil
	}

	if len(attackers) == 0 {
		return false, nil
	}

	minAttacker := pieceValues[chess.King]
	for _, a := range attackers {
		if v := pieceValues[a.piece.Type()]; v < minAttacker {
			minAttacker = v
		}
	}

	// Capturing would cost the attacker more than the piece is worth while
	// a cheaper recapture stands ready: the capture is the sacrifice.
	if minAttacker > value {
		for _, d := range defenders {
			if pieceValues[d.piece.Type()] < minAttacker {
				return false, nil
			}
		}
	}

	// A pawn among the defenders makes any capture a losing proposition
	// for the attacker, whatever the piece values say.
	for _, d := range defenders {
		if d.piece.Type() == chess.Pawn {
			return false, nil
		}
	}

	if len(defenders) == 0 {
		return true, nil
	}
	return minAttacker < value, nil
}
