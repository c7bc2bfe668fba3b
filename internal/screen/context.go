package screen

import "context"

// combineContext creates a new context derived from tabCtx that is canceled
// when either tabCtx or opCtx is canceled. It inherits values from tabCtx,
// which is what chromedp needs: the tab context carries the CDP connection
// info, while the operational context carries the caller's deadline.
func combineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)

	// The goroutine stops when either context is done.
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
