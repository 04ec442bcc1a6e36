//go:build windows

package outlook

import (
	"log/slog"

	ole "github.com/go-ole/go-ole"
)

// NewBridge returns the COM-backed bridge. The worker thread initialises a
// single-threaded apartment before the first call and tears it down on
// Close.
func NewBridge(log *slog.Logger) Bridge {
	worker := NewWorker(
		func() error { return ole.CoInitialize(0) },
		ole.CoUninitialize,
	)
	conn := newConnector(&comAutomation{log: log}, log)
	return newBridge(worker, conn, log)
}
