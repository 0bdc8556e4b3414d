package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes describing the current navigator state.
// It is called for every record, from whichever goroutine logs.
type ContextProvider func() []slog.Attr

// stateHandler appends the provider's attributes to each record unless the
// record already has an attribute with that key.
type stateHandler struct {
	slog.Handler
	state ContextProvider
}

func withState(h slog.Handler, state ContextProvider) slog.Handler {
	if state == nil {
		return h
	}
	return stateHandler{Handler: h, state: state}
}

func (h stateHandler) Handle(ctx context.Context, r slog.Record) error {
	extra := h.state()
	if len(extra) == 0 {
		return h.Handler.Handle(ctx, r)
	}
	seen := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		seen[a.Key] = true
		return true
	})
	for _, a := range extra {
		if !seen[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h stateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stateHandler{Handler: h.Handler.WithAttrs(attrs), state: h.state}
}

func (h stateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return stateHandler{Handler: h.Handler.WithGroup(name), state: h.state}
}
