// internal/browser/network_idle.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// idleTracker follows in-flight requests of one tab so navigation can wait
// for the network to go quiet.
type idleTracker struct {
	logger *zap.Logger

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	// mainFrame is the tab's top-level frame. Responses for other frames never
	// set documentStatus.
	mainFrame cdp.FrameID
	// documentStatus is the HTTP status of the latest top-level document.
	documentStatus int64
}

func newIdleTracker(logger *zap.Logger) *idleTracker {
	return &idleTracker{
		logger:       logger.Named("network"),
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

// start enables the network domain on the tab in ctx and begins listening.
func (t *idleTracker) start(ctx context.Context) error {
	// A page target's main frame shares the target's id.
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		t.mu.Lock()
		t.mainFrame = cdp.FrameID(c.Target.TargetID)
		t.mu.Unlock()
	}
	chromedp.ListenTarget(ctx, t.handle)
	return chromedp.Run(ctx, network.Enable())
}

func (t *idleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.begin(e.RequestID)
	case *network.EventResponseReceived:
		if e.Type == network.ResourceTypeDocument && e.Response != nil {
			t.mu.Lock()
			if t.mainFrame == "" || e.FrameID == t.mainFrame {
				t.documentStatus = e.Response.Status
			}
			t.mu.Unlock()
		}
	case *network.EventLoadingFinished:
		t.end(e.RequestID)
	case *network.EventLoadingFailed:
		t.end(e.RequestID)
	}
}

func (t *idleTracker) begin(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.lastActivity = time.Now()
}

func (t *idleTracker) end(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.lastActivity = time.Now()
}

func (t *idleTracker) status() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.documentStatus
}

// wait polls until no request has been in flight for quiet.
func (t *idleTracker) wait(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		return nil
	}
	ticker := time.NewTicker(max(quiet/5, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.mu.Lock()
			inflight := len(t.inflight)
			since := time.Since(t.lastActivity)
			t.mu.Unlock()

			if inflight > 0 {
				t.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", inflight))
				continue
			}
			if since >= quiet {
				return nil
			}
		}
	}
}
