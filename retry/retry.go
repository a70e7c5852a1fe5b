// Package retry turns an unreliable generation call plus a parser into a
// validated value. Each attempt calls the model and parses the response; a
// parse failure is fed back to the model as a corrective message. After the
// last attempt the fallback is returned, never an error.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/llm"
)

// ParseFunc converts a response into a value.
type ParseFunc[T any] func(resp *llm.Response) (T, error)

// Parser is a validating parser that can describe the format it expects.
type Parser[T any] interface {
	Parse(resp *llm.Response) (T, error)
	FormatInstructions() string
}

// Config configures a Protocol.
type Config struct {
	// MaxTries is the number of generate-and-parse attempts.
	// Default: 3
	MaxTries int

	// Backoff is the fixed wait after a failed generation call.
	// Default: 5s
	Backoff time.Duration

	// Name labels log entries, e.g. the reasoning step using the protocol.
	Name string

	Logger logrus.FieldLogger

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	MaxTries: 3,
	Backoff:  5 * time.Second,
	Name:     "reasoning",
}

// Protocol runs parse-retry loops against one generator.
type Protocol struct {
	gen    llm.Generator
	config Config
	logger logrus.FieldLogger
}

// New creates a protocol. A nil config uses DefaultConfig.
func New(gen llm.Generator, config *Config) *Protocol {
	cfg := *DefaultConfig
	if config != nil {
		cfg = *config
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultConfig.MaxTries
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig.Name
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Protocol{
		gen:    gen,
		config: cfg,
		logger: cfg.Logger.WithFields(logrus.Fields{"component": "retry", "name": cfg.Name}),
	}
}

// Request is one parse-retry job. Parse takes precedence over Parser.Parse;
// when Parser is set its format instructions are added to corrective
// messages either way.
type Request[T any] struct {
	Messages []core.Message
	Parse    ParseFunc[T]
	Parser   Parser[T]

	// Fallback is returned when every attempt fails. Nil means the zero value.
	Fallback *T
}

// Result is the outcome of a parse-retry loop. Messages is the history with
// every response and corrective message appended; on success the last entry
// is the response that parsed.
type Result[T any] struct {
	Value    T
	Messages []core.Message
	OK       bool
	Attempts int
}

// Run executes the loop. It never returns an error and never panics: a
// failing generator or parser ends in the fallback.
func Run[T any](ctx context.Context, p *Protocol, req Request[T]) Result[T] {
	res := Result[T]{Messages: core.CloneMessages(req.Messages)}
	if req.Fallback != nil {
		res.Value = *req.Fallback
	}

	parse := req.Parse
	if parse == nil && req.Parser != nil {
		parse = req.Parser.Parse
	}
	if parse == nil {
		p.logger.Error("no parse function or parser given")
		return res
	}

	for i := 0; i < p.config.MaxTries; i++ {
		if err := ctx.Err(); err != nil {
			p.logger.WithError(err).Warn("context done, stopping retries")
			break
		}
		res.Attempts++
		p.logger.Infof("LM call and parse attempt %d / %d", i+1, p.config.MaxTries)

		resp, err := p.generate(ctx, res.Messages)
		if err != nil {
			p.logger.WithError(err).Warn("error during LM call, retrying")
			if err := p.config.Sleep(ctx, p.config.Backoff); err != nil {
				break
			}
			continue
		}
		res.Messages = append(res.Messages, core.AssistantMessage(resp.Text))

		value, err := safeParse(parse, resp)
		if err != nil {
			msg := fmt.Sprintf("Error during parsing! %v\n", err)
			if req.Parser != nil {
				msg += "The expected format is:\n" + req.Parser.FormatInstructions() + "\n"
			}
			p.logger.WithError(err).Warn("error during parsing")
			res.Messages = append(res.Messages, core.UserMessage(msg))
			continue
		}

		res.Value = value
		res.OK = true
		return res
	}

	p.logger.WithField("attempts", res.Attempts).Error("all parse attempts failed")
	return res
}

func (p *Protocol) generate(ctx context.Context, messages []core.Message) (resp *llm.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	resp, err = p.gen.Generate(ctx, messages)
	if err == nil && resp == nil {
		err = fmt.Errorf("generator returned no response")
	}
	return resp, err
}

func safeParse[T any](parse ParseFunc[T], resp *llm.Response) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return parse(resp)
}

// RunBatch runs one loop per request concurrently and returns the results
// in request order. limit bounds the number of loops in flight; zero or
// less means no bound. A failing loop never cancels its siblings.
func RunBatch[T any](ctx context.Context, p *Protocol, reqs []Request[T], limit int) []Result[T] {
	results := make([]Result[T], len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range reqs {
		g.Go(func() error {
			results[i] = Run(ctx, p, reqs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
