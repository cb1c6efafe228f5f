package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/reflow-agent/reflow/internal/queue/streams"
)

const claimInterval = time.Minute

// Processor consumes run.requested events from the dispatch stream and
// executes them through the shared Runner.
type Processor struct {
	logger   *log.Logger
	consumer *streams.Consumer
	runner   *Runner
	stream   string

	maxIterationsCap int
	lastClaim        time.Time
	claimCursor      string
}

// NewProcessor constructs a Processor.
func NewProcessor(logger *log.Logger, cons *streams.Consumer, runner *Runner, stream string, maxIterationsCap int) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	return &Processor{
		logger:           logger,
		consumer:         cons,
		runner:           runner,
		stream:           stream,
		maxIterationsCap: maxIterationsCap,
		claimCursor:      "0-0",
	}
}

// Start blocks, continuously processing run.requested events until the
// context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker processor starting; consuming stream %s", p.stream)
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker processor stopping: %v", ctx.Err())
			return nil
		default:
		}

		p.reclaimStale(ctx)

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			if err := p.handle(ctx, msg); err != nil {
				p.logger.Printf("error handling message %s: %v", msg.ID, err)
			}
			if err := p.consumer.Ack(ctx, p.stream, msg.ID); err != nil {
				p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
			}
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg streams.Message) error {
	if msg.Envelope.EventType != streams.EventRunRequested {
		p.logger.Printf("skip event %s with unexpected type %s", msg.Envelope.EventID, msg.Envelope.EventType)
		return nil
	}
	var payload streams.RunRequested
	if err := json.Unmarshal(msg.Envelope.Data, &payload); err != nil {
		return fmt.Errorf("decode run payload: %w", err)
	}
	if payload.RunID == "" || payload.Query == "" {
		return fmt.Errorf("run payload missing run_id or query")
	}

	maxIterations := payload.MaxIterations
	if p.maxIterationsCap > 0 && maxIterations > p.maxIterationsCap {
		maxIterations = p.maxIterationsCap
	}

	p.logger.Printf("executing run %s (query %q)", payload.RunID, payload.Query)
	outcome := p.runner.Execute(ctx, payload.RunID, payload.Query, maxIterations)
	p.logger.Printf("run %s finished success=%t", payload.RunID, outcome.Success)
	return nil
}

// reclaimStale periodically picks up messages left pending by crashed
// workers.
func (p *Processor) reclaimStale(ctx context.Context) {
	if time.Since(p.lastClaim) < claimInterval {
		return
	}
	p.lastClaim = time.Now()
	msgs, next, err := p.consumer.AutoClaim(ctx, p.stream, 5*time.Minute, p.claimCursor, 16)
	if err != nil {
		p.logger.Printf("warn: autoclaim failed: %v", err)
		return
	}
	p.claimCursor = next
	for _, msg := range msgs {
		if err := p.handle(ctx, msg); err != nil {
			p.logger.Printf("error handling reclaimed message %s: %v", msg.ID, err)
		}
		if err := p.consumer.Ack(ctx, p.stream, msg.ID); err != nil {
			p.logger.Printf("warn: failed to ack reclaimed message %s: %v", msg.ID, err)
		}
	}
}
