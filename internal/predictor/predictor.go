// Package predictor resolves expert metadata from a name through an
// unreliable upstream model, bounded by a hard wall-clock deadline. Results
// are cached, concurrent lookups for the same name share one upstream call,
// a per-name circuit breaker sheds load during outages, and every path that
// cannot produce an upstream result falls back to deterministic synthesis.
// Predict never fails: it always returns a usable prediction.
package predictor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/model"
	"github.com/scenariolab/foresight/internal/resilience"
	"github.com/scenariolab/foresight/pkg/anthropic"
)

const (
	// deadlineGuard is subtracted from the remaining budget so the upstream
	// call is cancelled before the hard deadline itself expires.
	deadlineGuard = 50 * time.Millisecond

	// minRemaining is the smallest budget worth issuing a call for; below
	// this the deadline is treated as already spent.
	minRemaining = 100 * time.Millisecond
)

// errDeadlineSpent marks a prediction whose budget ran out before the
// upstream call could be issued. It never reaches the breaker.
var errDeadlineSpent = eris.New("predictor: hard deadline spent before upstream call")

// Config controls prediction behavior.
type Config struct {
	// Model is the upstream model ID used for prediction.
	Model string

	// HardDeadline bounds the wall-clock time of one Predict call that goes
	// upstream. Default: 2s.
	HardDeadline time.Duration

	// CacheTTL is how long predictions stay cached. Default: 15m.
	CacheTTL time.Duration

	// Profile bounds the individual upstream call. Default: FastProfile.
	Profile anthropic.Profile
}

// DefaultConfig returns the configuration used by the interactive endpoint.
func DefaultConfig() Config {
	return Config{
		Model:        "claude-haiku-4-5-20251001",
		HardDeadline: 2 * time.Second,
		CacheTTL:     DefaultCacheTTL,
		Profile:      anthropic.FastProfile(),
	}
}

// Predictor is the resilient prediction front end. Safe for concurrent use.
type Predictor struct {
	gen     anthropic.Client
	cfg     Config
	cache   *Cache
	breaker *resilience.KeyedBreaker
	synth   *Synthesizer

	mu       sync.Mutex
	inflight map[string]*inflightCall

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// inflightCall is one outstanding upstream prediction shared by concurrent
// callers. done is closed after pred/err are set.
type inflightCall struct {
	done chan struct{}
	pred model.ExpertPrediction
	err  error
}

// New creates a Predictor over the given generation client.
func New(gen anthropic.Client, cfg Config) *Predictor {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.HardDeadline <= 0 {
		cfg.HardDeadline = 2 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Profile.MaxCallTimeout <= 0 {
		cfg.Profile = anthropic.FastProfile()
	}

	breakerCfg := resilience.DefaultBreakerConfig()
	breakerCfg.ShouldTrip = anthropic.Qualifying
	breakerCfg.OnStateChange = func(key string, open bool) {
		zap.L().Info("predictor: circuit state change",
			zap.String("expert", key),
			zap.Bool("open", open),
		)
	}

	return &Predictor{
		gen:      gen,
		cfg:      cfg,
		cache:    NewCache(cfg.CacheTTL),
		breaker:  resilience.NewKeyedBreaker(breakerCfg),
		synth:    NewSynthesizer(),
		inflight: make(map[string]*inflightCall),
		nowFunc:  time.Now,
	}
}

// Predict resolves expertName to a prediction. It never returns an error;
// when the upstream call cannot complete in time, is circuit-broken, or
// fails, the result comes from deterministic fallback synthesis. The
// fallback is cached under the normal TTL so a persistently failing name
// does not hammer the breaker within the cache window.
func (p *Predictor) Predict(ctx context.Context, expertName string) model.ExpertPrediction {
	start := p.nowFunc()

	// Cache hit is the fastest path and skips breaker and deadline logic.
	if pred, ok := p.cache.Get(expertName); ok {
		return pred
	}

	// Join an outstanding call for the same name if one exists. A failed
	// shared call is not propagated: the failure may have been transient,
	// so this caller falls through to a fresh attempt of its own.
	if c, joined := p.join(expertName); joined {
		<-c.done
		if c.err == nil {
			return c.pred
		}
	}

	return p.attempt(ctx, expertName, start, false)
}

// join returns the in-flight call for key, if any.
func (p *Predictor) join(key string) (*inflightCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.inflight[key]
	return c, ok
}

// attempt runs the breaker check and one upstream call, falling back to
// synthesis on any failure. rejoined guards against unbounded chains of
// join-fail-retry under sustained failure.
func (p *Predictor) attempt(ctx context.Context, expertName string, start time.Time, rejoined bool) model.ExpertPrediction {
	log := zap.L().With(zap.String("expert", expertName))

	if !p.breaker.Allow(expertName) {
		log.Debug("predictor: circuit open, serving fallback")
		return p.fallback(expertName)
	}

	// Register in the in-flight map; lose the race and this becomes a join.
	p.mu.Lock()
	if c, ok := p.inflight[expertName]; ok {
		p.mu.Unlock()
		<-c.done
		if c.err == nil {
			return c.pred
		}
		if rejoined {
			return p.fallback(expertName)
		}
		return p.attempt(ctx, expertName, start, true)
	}
	c := &inflightCall{done: make(chan struct{})}
	p.inflight[expertName] = c
	p.mu.Unlock()

	pred, err := p.callUpstream(ctx, expertName, start, log)
	c.pred, c.err = pred, err

	p.mu.Lock()
	delete(p.inflight, expertName)
	p.mu.Unlock()
	close(c.done)

	if err != nil {
		return p.fallback(expertName)
	}
	p.cache.Set(expertName, pred)
	return pred
}

// callUpstream issues one bounded generation call and parses its response.
func (p *Predictor) callUpstream(ctx context.Context, expertName string, start time.Time, log *zap.Logger) (model.ExpertPrediction, error) {
	remaining := p.cfg.HardDeadline - p.nowFunc().Sub(start)
	if remaining <= minRemaining {
		log.Debug("predictor: deadline spent before call", zap.Duration("remaining", remaining))
		return model.ExpertPrediction{}, errDeadlineSpent
	}

	budget := remaining - deadlineGuard
	if budget > p.cfg.Profile.MaxCallTimeout {
		budget = p.cfg.Profile.MaxCallTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	temp := p.cfg.Profile.Temperature
	resp, err := p.gen.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:     p.cfg.Model,
		MaxTokens: p.cfg.Profile.MaxTokens,
		System:    predictSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: predictPrompt(expertName)},
		},
		Temperature: &temp,
	})
	if err != nil {
		if anthropic.Qualifying(err) {
			p.breaker.Record(expertName, err)
		}
		log.Warn("predictor: upstream call failed",
			zap.String("kind", string(anthropic.KindOf(err))),
			zap.Error(err),
		)
		return model.ExpertPrediction{}, err
	}

	pred, err := parsePrediction(resp.Text())
	if err != nil {
		// Malformed responses do not move the breaker.
		log.Warn("predictor: unusable response", zap.Error(err))
		return model.ExpertPrediction{}, err
	}

	p.breaker.Record(expertName, nil)
	return pred, nil
}

// fallback synthesizes, caches, and returns the offline prediction.
func (p *Predictor) fallback(expertName string) model.ExpertPrediction {
	pred := p.synth.Synthesize(expertName)
	p.cache.Set(expertName, pred)
	return pred
}

const predictSystemPrompt = `You classify business experts. Respond with a single JSON object and nothing else, using the keys: role, specialization, sub_specializations (array of strings), information_sources (array of strings), expertise_level (one of "specialist", "expert", "senior"), research_focus.`

func predictPrompt(expertName string) string {
	return fmt.Sprintf(
		"Infer the professional profile of a business analysis expert named %q for use on a scenario-planning panel.",
		expertName,
	)
}
