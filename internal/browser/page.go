// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/config"
	"github.com/xkilldash9x/layoutprobe/internal/probes"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

const defaultNavigationTimeout = 60 * time.Second

// Page is one browser tab. It is the chromedp implementation of the page
// capability the assertion families drive.
type Page struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	idle    *idleTracker
	onClose func()

	mu     sync.Mutex
	closed bool
}

func newPage(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Page {
	id := uuid.New().String()
	l := logger.Named("page").With(zap.String("page_id", id))
	return &Page{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: l,
		cfg:    cfg,
		idle:   newIdleTracker(l),
	}
}

// initialize creates the target and starts network tracking.
func (p *Page) initialize(ctx context.Context) error {
	initCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(initCtx); err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}
	if err := p.idle.start(p.ctx); err != nil {
		return fmt.Errorf("failed to enable network tracking: %w", err)
	}
	return nil
}

// ID returns the tab's identifier.
func (p *Page) ID() string { return p.id }

// SetViewport emulates vp as the tab's device metrics.
func (p *Page) SetViewport(ctx context.Context, vp viewport.Viewport) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)))
}

// Navigate loads url and waits for readiness: the load event, a quiet
// network, loaded web fonts, and the configured ready selector if any.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navTimeout := p.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()
	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		return err
	}
	if status := p.idle.status(); status >= 400 {
		return fmt.Errorf("document responded with HTTP %d", status)
	}

	readyTimeout := p.cfg.ReadinessTimeout
	if readyTimeout <= 0 {
		readyTimeout = navTimeout
	}
	readyCtx, cancelReady := context.WithTimeout(ctx, readyTimeout)
	defer cancelReady()

	if err := p.idle.wait(readyCtx, p.cfg.NetworkIdleQuiet); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Long polling pages never go idle; measure what has rendered.
		p.logger.Debug("Network did not go idle before the readiness timeout.", zap.String("url", url))
	}

	var ready bool
	if err := p.Evaluate(readyCtx, probes.MustCall(probes.Ready), &ready); err != nil {
		return fmt.Errorf("failed waiting for document readiness: %w", err)
	}

	if p.cfg.ReadySelector != "" {
		if err := p.run(readyCtx, chromedp.WaitVisible(p.cfg.ReadySelector, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("ready selector %q never became visible: %w", p.cfg.ReadySelector, err)
		}
	}
	return nil
}

// Evaluate runs expr in the document, awaiting a returned promise, and
// decodes the result into res.
func (p *Page) Evaluate(ctx context.Context, expr string, res any) error {
	return p.run(ctx, chromedp.Evaluate(expr, res, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
}

// Screenshot captures the first element matching selector as PNG.
func (p *Page) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Visible reports whether the first match of selector is displayed with a
// non-empty box.
func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	expr, err := probes.Call(probes.Visible, selector)
	if err != nil {
		return false, err
	}
	var visible bool
	if err := p.Evaluate(ctx, expr, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// InjectScript evaluates src in the page's global scope.
func (p *Page) InjectScript(ctx context.Context, src string) error {
	return p.run(ctx, chromedp.Evaluate(src, nil))
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(Detach(p.ctx), shutdownGracePeriod)
	defer cancel()
	err := chromedp.Cancel(closeCtx)
	p.cancel()
	if p.onClose != nil {
		p.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		p.logger.Debug("Tab did not close cleanly.", zap.Error(err))
	}
	return nil
}

// run executes actions bound to both the tab lifetime and ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
