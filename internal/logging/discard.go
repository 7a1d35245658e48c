// Package logging holds slog helpers shared by the watcher and its tests.
package logging

import (
	"context"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger whose records go nowhere. Level checks fail
// early, so disabled attributes are never evaluated.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
