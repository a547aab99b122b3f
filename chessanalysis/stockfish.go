package chessanalysis

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

var log = slog.Default().With("package", "chessanalysis")

// rawLine is a single MultiPV info line as reported by the engine, with the
// evaluation still in the side-to-move's perspective.
type rawLine struct {
	rank         int
	depth        int
	eval         Eval
	moveUCI      string
	continuation []string
}

// searchOutput collects everything a search produced before the bestmove
// signal (or the deadline) arrived.
type searchOutput struct {
	lines    []rawLine
	maxDepth int
}

// engineSession is one live analysis session. StockfishEngine is the real
// implementation; tests substitute their own.
type engineSession interface {
	search(ctx context.Context, fen string, depth, multiPV int) (*searchOutput, error)
	close() error
}

type StockfishEngine struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	responses chan string
	ready     bool
	mutex     sync.Mutex
}

// NewStockfishEngine starts a UCI engine subprocess and completes the
// uci/isready handshake.
func NewStockfishEngine(path string) (*StockfishEngine, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %v", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %v", err)
	}

	engine := &StockfishEngine{
		cmd:       cmd,
		stdin:     stdin,
		responses: make(chan string, 256),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %v", err)
	}

	go engine.readOutput(bufio.NewScanner(stdout))
	if err := engine.initialize(); err != nil {
		engine.close()
		return nil, err
	}

	return engine, nil
}

func (e *StockfishEngine) initialize() error {
	e.sendCommand("uci")
	e.sendCommand("setoption name Hash value 128")
	e.sendCommand("setoption name Threads value 1")
	e.sendCommand("setoption name Ponder value false")
	e.sendCommand("isready")

	timeout := time.After(10 * time.Second)
	for {
		select {
		case response, ok := <-e.responses:
			if !ok {
				return fmt.Errorf("engine exited during initialization")
			}
			if strings.Contains(response, "readyok") {
				e.ready = true
				return nil
			}
		case <-timeout:
			return fmt.Errorf("engine initialization timed out")
		}
	}
}

func (e *StockfishEngine) sendCommand(cmd string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	_, err := fmt.Fprintln(e.stdin, cmd)
	return err
}

func (e *StockfishEngine) readOutput(scanner *bufio.Scanner) {
	for scanner.Scan() {
		e.responses <- scanner.Text()
	}
	close(e.responses)
}

// search submits a position and a search-to-depth command, then streams
// info lines until the engine reports bestmove or the context expires.
// On expiry a stop is issued and whatever lines arrived are returned;
// the caller decides whether the partial result is usable.
func (e *StockfishEngine) search(ctx context.Context, fen string, depth, multiPV int) (*searchOutput, error) {
	if !e.ready {
		return nil, fmt.Errorf("engine not ready")
	}

	e.sendCommand(fmt.Sprintf("setoption name MultiPV value %d", multiPV))
	e.sendCommand(fmt.Sprintf("position fen %s", fen))
	e.sendCommand(fmt.Sprintf("go depth %d", depth))

	out := &searchOutput{}
	collect := func(response string) {
		if line, ok := parseInfoLine(response); ok {
			if line.depth > out.maxDepth {
				out.maxDepth = line.depth
			}
			out.lines = append(out.lines, line)
		}
	}

	for {
		select {
		case response, ok := <-e.responses:
			if !ok {
				return nil, fmt.Errorf("engine closed its output stream")
			}
			if strings.HasPrefix(response, "bestmove") {
				return out, nil
			}
			collect(response)
		case <-ctx.Done():
			e.sendCommand("stop")
			// Keep draining briefly so the trailing bestmove is consumed
			// instead of poisoning the next search.
			drain := time.After(500 * time.Millisecond)
			for {
				select {
				case response, ok := <-e.responses:
					if !ok {
						return out, nil
					}
					if strings.HasPrefix(response, "bestmove") {
						return out, nil
					}
					collect(response)
				case <-drain:
					log.Warn("engine did not answer stop", "fen", fen)
					return out, nil
				}
			}
		}
	}
}

// parseInfoLine extracts rank, depth, score and principal variation from a
// UCI info line. Lines missing any of depth, score or pv are not usable
// and are dropped.
func parseInfoLine(line string) (rawLine, bool) {
	if !strings.HasPrefix(line, "info") {
		return rawLine{}, false
	}

	result := rawLine{rank: 1}
	haveScore := false
	fields := strings.Fields(line)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				result.rank, _ = strconv.Atoi(fields[i+1])
			}
		case "depth":
			if i+1 < len(fields) {
				result.depth, _ = strconv.Atoi(fields[i+1])
			}
		case "score":
			if i+2 < len(fields) {
				if value, err := strconv.Atoi(fields[i+2]); err == nil {
					switch fields[i+1] {
					case "cp":
						result.eval = Eval{Kind: Centipawn, Value: value}
						haveScore = true
					case "mate":
						result.eval = Eval{Kind: Mate, Value: value}
						haveScore = true
					}
				}
			}
		case "pv":
			if i+1 < len(fields) {
				result.moveUCI = fields[i+1]
				result.continuation = append([]string(nil), fields[i+2:]...)
			}
			i = len(fields)
		}
	}

	if result.depth == 0 || result.moveUCI == "" || !haveScore || result.rank < 1 {
		return rawLine{}, false
	}
	return result, true
}

// close tears the session down on every exit path: polite quit first, then
// a hard kill if the process lingers.
func (e *StockfishEngine) close() error {
	e.sendCommand("quit")

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		log.Warn("engine did not quit, killing process")
		e.cmd.Process.Kill()
		return <-done
	}
}
