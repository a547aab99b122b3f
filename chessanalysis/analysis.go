package chessanalysis

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// AnalyzeGameOptions configures a full-game analysis run.
type AnalyzeGameOptions struct {
	Depth      int
	Workers    int
	EnginePath string
	Cutoff     *Eval
	CloudEvals map[string][]EngineLine
	Progress   func(completed, total int)

	sessions func() (engineSession, error)
}

var defaultAnalyzeGameOptions = AnalyzeGameOptions{
	Depth:      16,
	Workers:    4,
	EnginePath: "stockfish",
}

type AnalyzeGameOption func(*AnalyzeGameOptions)

// WithDepth sets the target search depth for every position.
func WithDepth(depth int) AnalyzeGameOption {
	return func(opts *AnalyzeGameOptions) {
		opts.Depth = depth
	}
}

// WithWorkers sets how many engine sessions run concurrently.
func WithWorkers(workers int) AnalyzeGameOption {
	return func(opts *AnalyzeGameOptions) {
		opts.Workers = workers
	}
}

// WithEnginePath points the analysis at a specific UCI engine binary.
func WithEnginePath(path string) AnalyzeGameOption {
	return func(opts *AnalyzeGameOptions) {
		opts.EnginePath = path
	}
}

// WithCutoff supplies an extra evaluation comparator the classifier may
// use when it is more charitable than the engine's best line.
func WithCutoff(eval Eval) AnalyzeGameOption {
	return func(opts *AnalyzeGameOptions) {
		opts.Cutoff = &eval
	}
}

// WithCloudEvals supplies precomputed evaluation lines keyed by FEN.
// A position found in the map skips its engine search entirely and is
// marked as cloud-sourced.
func WithCloudEvals(evals map[string][]EngineLine) AnalyzeGameOption {
	return func(opts *AnalyzeGameOptions) {
		opts.CloudEvals = evals
	}
}

// WithProgress registers a callback invoked after each position finishes
// evaluating. It may be called from multiple goroutines.
func WithProgress(fn func(completed, total int)) AnalyzeGameOption {
	return func(opts *AnalyzeGameOptions) {
		opts.Progress = fn
	}
}

// withSessionFactory replaces the engine subprocess with an arbitrary
// session source. Tests use it to stub the engine out.
func withSessionFactory(fn func() (engineSession, error)) AnalyzeGameOption {
	return func(opts *AnalyzeGameOptions) {
		opts.sessions = fn
	}
}

// ProgressEvent reports how far an analysis run has come.
type ProgressEvent struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// AnalyzeGame evaluates every position of a completed game, classifies
// every move and aggregates the result into a report.
//
// Evaluation runs with bounded parallelism: a small pool of workers pulls
// position indexes off a shared counter, so one slow deep search does not
// stall the positions around it. Classification then runs strictly left to
// right because each move is judged against the lines of the position
// immediately before it.
func AnalyzeGame(ctx context.Context, stubs []PositionStub, opts ...AnalyzeGameOption) (*Report, error) {
	options := defaultAnalyzeGameOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers < 2 {
		options.Workers = 2
	}
	if options.Workers > 8 {
		options.Workers = 8
	}

	if len(stubs) == 0 {
		return nil, fmt.Errorf("no positions to analyze")
	}

	positions := make([]*Position, len(stubs))
	for i, stub := range stubs {
		positions[i] = &Position{FEN: stub.FEN}
		if i > 0 {
			positions[i].Move = &MoveRef{SAN: stub.SAN, UCI: stub.UCI}
		}
	}

	evaluator := &Evaluator{newSession: options.sessions}
	if evaluator.newSession == nil {
		evaluator.newSession = NewEvaluator(options.EnginePath).newSession
	}

	total := len(positions)
	var next, completed atomic.Int64

	g, groupCtx := errgroup.WithContext(ctx)
	for w := 0; w < options.Workers; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1)) - 1
				if i >= total {
					return nil
				}
				if err := groupCtx.Err(); err != nil {
					return err
				}
				if cloud, ok := options.CloudEvals[positions[i].FEN]; ok && len(cloud) > 0 {
					positions[i].Lines = cloud
					positions[i].Source = SourceCloud
				} else {
					lines, source := evaluator.Evaluate(groupCtx, positions[i].FEN, options.Depth)
					positions[i].Lines = lines
					positions[i].Source = source
				}
				done := int(completed.Add(1))
				if options.Progress != nil {
					options.Progress(done, total)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis canceled: %w", err)
	}

	classifyAll(positions, options.Cutoff)
	return BuildReport(positions), nil
}

// classifyAll runs the sequential classification pass: opening-book
// overrides first, then the classifier, threading each move's label into
// the next move's input.
func classifyAll(positions []*Position, cutoff *Eval) {
	if name, ok := LookupOpening(positions[0].FEN); ok {
		positions[0].Opening = name
	}

	previous := NoClassification
	for i := 1; i < len(positions); i++ {
		pos := positions[i]
		if name, ok := LookupOpening(pos.FEN); ok {
			pos.Opening = name
			pos.Classification = Book
			previous = Book
			continue
		}
		pos.Classification = classifyPosition(positions[i-1], pos, previous, cutoff)
		previous = pos.Classification
	}
}

// classifyPosition wraps Classify so a fault in tactical analysis degrades
// to the conservative book label instead of taking the report down.
func classifyPosition(prev, pos *Position, previous Classification, cutoff *Eval) (result Classification) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("classification failed, defaulting to book", "fen", pos.FEN, "panic", r)
			result = Book
		}
	}()

	var moveUCI, moveSAN string
	if pos.Move != nil {
		moveUCI = pos.Move.UCI
		moveSAN = pos.Move.SAN
	}
	return Classify(ClassifyInput{
		PrevFEN:            prev.FEN,
		FEN:                pos.FEN,
		PrevLines:          prev.Lines,
		Lines:              pos.Lines,
		MoveUCI:            moveUCI,
		MoveSAN:            moveSAN,
		PrevClassification: previous,
		Cutoff:             cutoff,
	})
}

// AnalyzeGameStreaming runs AnalyzeGame while emitting a progress event
// per evaluated position. The report channel delivers the final result;
// the error channel is buffered and closed with the others.
func AnalyzeGameStreaming(ctx context.Context, stubs []PositionStub, opts ...AnalyzeGameOption) (<-chan ProgressEvent, <-chan *Report, <-chan error) {
	progress := make(chan ProgressEvent, len(stubs)+1)
	reports := make(chan *Report, 1)
	errc := make(chan error, 1)

	go func() {
		defer close(progress)
		defer close(reports)
		defer close(errc)

		streamOpts := append([]AnalyzeGameOption{}, opts...)
		streamOpts = append(streamOpts, WithProgress(func(completed, total int) {
			select {
			case progress <- ProgressEvent{Completed: completed, Total: total}:
			default:
			}
		}))

		report, err := AnalyzeGame(ctx, stubs, streamOpts...)
		if err != nil {
			errc <- err
			return
		}
		reports <- report
	}()

	return progress, reports, errc
}
