package fetch

import (
	"context"
	"time"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/fetch/chromedp"
	"github.com/reflow-agent/reflow/internal/fetch/models"
	"github.com/reflow-agent/reflow/internal/fetch/plain"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type Engine string

const (
	PlainEngine    Engine = "plain"
	ChromedpEngine Engine = "chromedp"
)

func NewWebFetcher(cfg config.FetchConfig) (WebFetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch Engine(cfg.Engine) {
	case PlainEngine, "":
		return plain.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	case ChromedpEngine:
		return chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, &Error{"unsupported fetch engine"}
	}
}

// Error is an engine-selection failure.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }
