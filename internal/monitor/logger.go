// Package monitor provides structured logging and the TelemetrySink
// adapter that records orchestration trace events (LLM calls, cache
// hits/misses, race outcomes, moderation decisions).
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type reqIDKey struct{}

// WithRequestID attaches a request id to ctx so the log handler can tag
// every line emitted while handling that request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reqIDKey{}, id)
}

// RequestIDFrom returns the request id attached to ctx, or "" if none was
// set. Components outside the HTTP entry point use this to tag trace
// events without threading an id through every call signature.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(reqIDKey{}).(string)
	return v
}

// CustomHandler implements slog.Handler, formatting records as
// "[TIME] [LEVEL] [REQ_ID] msg attrs...".
type CustomHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{w: w, opts: opts}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	reqID := ""
	if ctx != nil {
		if v, ok := ctx.Value(reqIDKey{}).(string); ok {
			reqID = v
		}
	}

	fmt.Fprintf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), r.Level)
	if reqID != "" {
		fmt.Fprintf(buf, " [%s]", reqID)
	}
	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")
	h.w.Write(buf.Bytes())
	return nil
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{w: h.w, opts: h.opts, attrs: append(h.attrs, attrs...)}
}

func (h *CustomHandler) WithGroup(_ string) slog.Handler {
	return h
}

// SetupSlog installs the CustomHandler as the global slog default at the
// given level ("debug"/"info"/"warn"/"error").
func SetupSlog(levelStr string) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
