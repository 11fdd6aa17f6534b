package nanosearch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Source        string        // document source; defaults to the host name
	Level         slog.Leveler  // minimum level; defaults to Info
	BatchSize     int           // documents per request; defaults to 100
	FlushInterval time.Duration // defaults to 1s
	QueueSize     int           // defaults to 10000
}

// Handler is a slog.Handler that indexes log records as documents. Records
// are queued and sent in batches by a background goroutine; when the queue
// is full records are dropped.
type Handler struct {
	client *Client
	opts   HandlerOptions
	shared *shipper
	attrs  []slog.Attr
	groups []string
}

type shipper struct {
	queue chan Document
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewHandler starts a Handler sending to client. Call Shutdown to flush
// pending records.
func NewHandler(client *Client, opts HandlerOptions) *Handler {
	if opts.Source == "" {
		opts.Source, _ = os.Hostname()
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10000
	}

	h := &Handler{
		client: client,
		opts:   opts,
		shared: &shipper{
			queue: make(chan Document, opts.QueueSize),
			done:  make(chan struct{}),
		},
	}
	h.shared.wg.Add(1)
	go h.runLoop()
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle renders the record as "LEVEL message key=value ..." so every part
// of it is searchable.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Level.String())
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, prefix, a)
		return true
	})

	doc := Document{
		Source: h.opts.Source,
		Text:   sb.String(),
	}
	// a zero time is left for the server to stamp
	if !r.Time.IsZero() {
		doc.Timestamp = r.Time.UnixNano()
	}

	select {
	case h.shared.queue <- doc:
	default:
		fmt.Fprintf(os.Stderr, "nanosearch: queue full, dropping record\n")
	}
	return nil
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(sb, key, ga)
		}
		return
	}
	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')
	sb.WriteString(a.Value.String())
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	prefix := strings.Join(h.groups, ".")
	h2.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

func (h *Handler) runLoop() {
	defer h.shared.wg.Done()
	ticker := time.NewTicker(h.opts.FlushInterval)
	defer ticker.Stop()

	var batch []Document
	send := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := h.client.Ingest(ctx, batch...); err != nil {
			fmt.Fprintf(os.Stderr, "nanosearch: send failed: %v\n", err)
		}
		cancel()
		batch = nil
	}

	for {
		select {
		case doc := <-h.shared.queue:
			batch = append(batch, doc)
			if len(batch) >= h.opts.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case <-h.shared.done:
			// Flush remaining
			for {
				select {
				case doc := <-h.shared.queue:
					batch = append(batch, doc)
				default:
					send()
					return
				}
			}
		}
	}
}

// Shutdown sends queued records and stops the background goroutine.
func (h *Handler) Shutdown() {
	h.shared.once.Do(func() { close(h.shared.done) })
	h.shared.wg.Wait()
}
