package motion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
	"github.com/AltanTamer/ATPCaseMovement/internal/domain/port"
)

// ErrShortSequence is returned when fewer than two frames arrive: no frame
// pair exists to evaluate, which is a caller contract violation.
var ErrShortSequence = errors.New("frame sequence must contain at least 2 frames")

// Pipeline evaluates one frame pair end to end: features, matches,
// homography, score, classification. Every stage failure is folded into an
// undetermined result with a reason code; EvaluatePair never errors.
type Pipeline struct {
	cfg        Config
	extractor  port.FeatureExtractor
	matcher    port.DescriptorMatcher
	estimator  port.RobustEstimator
	scorer     *Scorer
	classifier *Classifier
	log        *zap.Logger
}

// Option customizes pipeline construction.
type Option func(*Pipeline)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithExtractor swaps in an alternative feature extractor implementation.
func WithExtractor(e port.FeatureExtractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithEstimator swaps in an alternative robust estimator implementation.
func WithEstimator(e port.RobustEstimator) Option {
	return func(p *Pipeline) { p.estimator = e }
}

func NewPipeline(cfg Config, opts ...Option) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:        cfg,
		scorer:     NewScorer(cfg),
		classifier: NewClassifier(cfg),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.extractor == nil {
		p.extractor = NewExtractor(cfg)
	}
	if p.matcher == nil {
		p.matcher = NewHammingMatcher(cfg)
	}
	if p.estimator == nil {
		p.estimator = NewRANSACEstimator(cfg)
	}
	return p
}

// EvaluatePair classifies the transition from prev to cur. The pair index
// is prev's sequence index.
func (p *Pipeline) EvaluatePair(prev, cur *entity.Frame) entity.ClassificationResult {
	prevFeat := p.extractor.Extract(prev)
	return p.evaluate(prevFeat, prev, cur)
}

// evaluate runs matching onward given already-extracted prev features, so
// the sequential orchestrator can reuse each frame's features for both of
// its adjacent pairs.
func (p *Pipeline) evaluate(prevFeat *entity.FeatureSet, prev, cur *entity.Frame) entity.ClassificationResult {
	pairIndex := prev.Index
	curFeat := p.extractor.Extract(cur)

	if prevFeat.Len() < p.cfg.MinMatches || curFeat.Len() < p.cfg.MinMatches {
		p.log.Debug("pair undetermined: too few features",
			zap.Int("pair", pairIndex),
			zap.Int("prev_features", prevFeat.Len()),
			zap.Int("cur_features", curFeat.Len()),
		)
		return p.classifier.Undetermined(pairIndex, 0, entity.ReasonInsufficientFeatures)
	}

	matches := p.matcher.Match(prevFeat, curFeat)
	if len(matches) < p.cfg.MinMatches {
		p.log.Debug("pair undetermined: too few matches",
			zap.Int("pair", pairIndex),
			zap.Int("matches", len(matches)),
		)
		return p.classifier.Undetermined(pairIndex, len(matches), entity.ReasonInsufficientMatches)
	}

	h, err := p.estimator.Estimate(prevFeat, curFeat, matches)
	if err != nil {
		reason := entity.ReasonDegenerateGeometry
		if errors.Is(err, ErrInsufficientMatches) {
			reason = entity.ReasonInsufficientMatches
		}
		p.log.Debug("pair undetermined: fit failure",
			zap.Int("pair", pairIndex),
			zap.Error(err),
		)
		return p.classifier.Undetermined(pairIndex, len(matches), reason)
	}

	score := p.scorer.Score(h, prev.Diagonal())
	return p.classifier.Classify(pairIndex, score, h, len(matches))
}

// Runner drives the pipeline over a frame stream. It buffers exactly one
// frame of lookback, emits one result per consecutive pair in frame order,
// and optionally fans pairs out over workers with an ordered merge.
type Runner struct {
	pipeline *Pipeline
	workers  int
}

func NewRunner(pipeline *Pipeline) *Runner {
	return &Runner{pipeline: pipeline, workers: pipeline.cfg.Workers}
}

// Run consumes frames until the channel closes or ctx is cancelled,
// calling emit once per consecutive pair, in order. It returns an error
// for malformed input: fewer than two frames, or mismatched dimensions.
func (r *Runner) Run(ctx context.Context, frames <-chan *entity.Frame, emit func(entity.ClassificationResult) error) error {
	if r.workers <= 1 {
		return r.runSequential(ctx, frames, emit)
	}
	return r.runParallel(ctx, frames, emit)
}

// RunAll is a convenience wrapper that accumulates all results.
func (r *Runner) RunAll(ctx context.Context, frames <-chan *entity.Frame) ([]entity.ClassificationResult, error) {
	var results []entity.ClassificationResult
	err := r.Run(ctx, frames, func(res entity.ClassificationResult) error {
		results = append(results, res)
		return nil
	})
	return results, err
}

func (r *Runner) runSequential(ctx context.Context, frames <-chan *entity.Frame, emit func(entity.ClassificationResult) error) error {
	var (
		prev     *entity.Frame
		prevFeat *entity.FeatureSet
		count    int
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if count < 2 {
					return ErrShortSequence
				}
				return nil
			}
			count++
			if prev == nil {
				prev = frame
				prevFeat = r.pipeline.extractor.Extract(frame)
				continue
			}
			if !prev.SameSize(frame) {
				return fmt.Errorf("frame %d dimensions %dx%d do not match previous %dx%d",
					frame.Index, frame.Width, frame.Height, prev.Width, prev.Height)
			}
			res := r.pipeline.evaluate(prevFeat, prev, frame)
			if err := emit(res); err != nil {
				return err
			}
			prev = frame
			prevFeat = r.pipeline.extractor.Extract(frame)
		}
	}
}

type pairJob struct {
	prev, cur *entity.Frame
	out       chan entity.ClassificationResult
}

func (r *Runner) runParallel(ctx context.Context, frames <-chan *entity.Frame, emit func(entity.ClassificationResult) error) error {
	work := make(chan pairJob)
	// Bounds the number of in-flight pairs, keeping memory proportional to
	// the worker count rather than the sequence length.
	pending := make(chan chan entity.ClassificationResult, r.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range work {
				job.out <- r.pipeline.EvaluatePair(job.prev, job.cur)
			}
		}()
	}

	// Ordered merge: results are emitted in dispatch order regardless of
	// worker completion order.
	emitDone := make(chan error, 1)
	go func() {
		var err error
		for ch := range pending {
			res := <-ch
			if err == nil {
				err = emit(res)
			}
		}
		emitDone <- err
	}()

	var (
		prev     *entity.Frame
		count    int
		inputErr error
	)
loop:
	for {
		select {
		case <-ctx.Done():
			inputErr = ctx.Err()
			break loop
		case frame, ok := <-frames:
			if !ok {
				break loop
			}
			count++
			if prev == nil {
				prev = frame
				continue
			}
			if !prev.SameSize(frame) {
				inputErr = fmt.Errorf("frame %d dimensions %dx%d do not match previous %dx%d",
					frame.Index, frame.Width, frame.Height, prev.Width, prev.Height)
				break loop
			}
			out := make(chan entity.ClassificationResult, 1)
			work <- pairJob{prev: prev, cur: frame, out: out}
			pending <- out
			prev = frame
		}
	}

	close(work)
	wg.Wait()
	close(pending)

	if err := <-emitDone; err != nil && inputErr == nil {
		inputErr = err
	}
	if inputErr != nil {
		return inputErr
	}
	if count < 2 {
		return ErrShortSequence
	}
	return nil
}
