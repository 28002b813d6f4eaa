// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns one Chrome process and hands out isolated tabs.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	pages  map[string]*Page
	wg     sync.WaitGroup
	closed bool
}

// NewManager launches Chrome. The process lives until Shutdown or until ctx
// is canceled.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		pages:  make(map[string]*Page),
	}

	m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	// The first Run starts the browser process.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserCancel()
		m.allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	m.logger.Info("Browser started.", zap.Bool("headless", cfg.Headless))
	return m, nil
}

// NewPage opens a fresh tab. The tab is closed by Page.Close or Shutdown.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	p := newPage(tabCtx, tabCancel, m.cfg, m.logger)
	p.onClose = func() {
		m.mu.Lock()
		delete(m.pages, p.ID())
		m.mu.Unlock()
		m.wg.Done()
	}

	if err := p.initialize(ctx); err != nil {
		_ = p.Close(context.Background())
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.mu.Lock()
	m.pages[p.ID()] = p
	m.mu.Unlock()

	m.logger.Debug("Tab opened.", zap.String("page_id", p.ID()))
	return p, nil
}

// Shutdown closes every open tab and then the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		open = append(open, p)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser.", zap.Int("open_tabs", len(open)))
	for _, p := range open {
		if err := p.Close(ctx); err != nil {
			m.logger.Warn("Error closing tab during shutdown.", zap.String("page_id", p.ID()), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for tabs to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	// chromedp.Cancel closes the browser gracefully; the allocator cancel
	// then reaps the process.
	closeCtx, cancel := context.WithTimeout(Detach(m.browserCtx), shutdownGracePeriod)
	defer cancel()
	err := chromedp.Cancel(closeCtx)
	m.browserCancel()
	m.allocCancel()
	if err != nil && closeCtx.Err() == nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	m.logger.Info("Browser shutdown complete.")
	return nil
}
