// Package exit collects the shutdown hooks of the running daemon so a single
// signal handler can stop everything in order.
package exit

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// GlobalExitHandler is closed by the interrupt handler installed in cmd.
var GlobalExitHandler = NewExitHandler()

type ExitHandler struct {
	sync.Mutex
	cancels []context.CancelFunc
	exits   []func() error
	closed  bool
}

func NewExitHandler() *ExitHandler {
	return new(ExitHandler)
}

// AddCancel registers a context cancel func. Cancels run before exit funcs.
// Adding to a closed handler calls the func immediately.
func (h *ExitHandler) AddCancel(cancel context.CancelFunc) {
	h.Lock()
	if h.closed {
		h.Unlock()
		cancel()
		return
	}
	h.cancels = append(h.cancels, cancel)
	h.Unlock()
}

// AddExit registers a func to run on close, such as closing a database.
func (h *ExitHandler) AddExit(f func() error) {
	h.Lock()
	if h.closed {
		h.Unlock()
		if err := f(); err != nil {
			log.WithError(err).Error("exit func failed")
		}
		return
	}
	h.exits = append(h.exits, f)
	h.Unlock()
}

// Close runs every cancel, then every exit func in reverse order of
// registration. Only the first call does anything.
func (h *ExitHandler) Close() {
	h.Lock()
	if h.closed {
		h.Unlock()
		return
	}
	h.closed = true
	cancels, exits := h.cancels, h.exits
	h.cancels, h.exits = nil, nil
	h.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for i := len(exits) - 1; i >= 0; i-- {
		if err := exits[i](); err != nil {
			log.WithError(err).Error("exit func failed")
		}
	}
}
