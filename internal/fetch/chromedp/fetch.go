package chromedp

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"

	"github.com/reflow-agent/reflow/internal/fetch/models"
)

const userAgent = "ReflowAgent/1.0 (+contact@example.com)"

// Fetch renders pages in headless Chrome before extraction, for targets
// the plain engine cannot read because the content arrives via script.
type Fetch struct {
	Timeout  time.Duration
	MaxChars int
}

func (f Fetch) Exec(ctx context.Context, target string) (models.Result, error) {
	if strings.TrimSpace(target) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	// Keep the caller's deadline when it is already tighter than ours.
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > f.Timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	t0 := time.Now()
	elapsed := func() int { return int(time.Since(t0) / time.Millisecond) }

	html, err := render(ctx, target)
	if err != nil {
		return models.Result{URL: target, Status: 599, RenderMS: elapsed()}, nil
	}

	article, err := readability.FromReader(strings.NewReader(html), parseURL(target))
	if err != nil {
		return models.Result{URL: target, Status: 200, RenderMS: elapsed()}, nil
	}
	text := article.TextContent
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}

	return models.Result{
		URL:      target,
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		Text:     strings.TrimSpace(text),
		TopImage: article.Image,
		Status:   200,
		RenderMS: elapsed(),
	}, nil
}

// render drives headless Chrome to the target and returns the document
// HTML once the body is ready.
func render(ctx context.Context, target string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func parseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
