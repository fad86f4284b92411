package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// prettyHandler writes one line per record:
//
//	<time> <LEVEL> [component] job 7/quantification slot 2 PC 34:1 [M+H]+ - message key=value ...
//
// The header fields are lifted out of the attributes so long batches stay
// scannable by job, slot and work item.
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// header holds the attributes rendered ahead of the message.
type header struct {
	component string
	jobID     string
	stage     string
	slot      string
	workItem  string
}

// take claims key for the header. Only the first occurrence counts.
func (hd *header) take(key string, value slog.Value) bool {
	var dst *string
	switch key {
	case FieldComponent:
		dst = &hd.component
	case FieldJobID:
		dst = &hd.jobID
	case FieldStage:
		dst = &hd.stage
	case FieldSlot:
		dst = &hd.slot
	case FieldWorkItem:
		dst = &hd.workItem
	default:
		return false
	}
	if *dst == "" {
		*dst = strings.TrimSpace(attrString(value))
	}
	return true
}

func (hd *header) subject() string {
	var parts []string
	switch {
	case hd.jobID != "" && hd.stage != "":
		parts = append(parts, "job "+hd.jobID+"/"+hd.stage)
	case hd.jobID != "":
		parts = append(parts, "job "+hd.jobID)
	case hd.stage != "":
		parts = append(parts, hd.stage)
	}
	if hd.slot != "" {
		parts = append(parts, "slot "+hd.slot)
	}
	if hd.workItem != "" {
		parts = append(parts, hd.workItem)
	}
	return strings.Join(parts, " ")
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	fields := make([]field, 0, record.NumAttrs()+len(h.attrs))
	for _, attr := range h.attrs {
		fields = appendField(fields, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.groups, attr)
		return true
	})

	var hd header
	rest := fields[:0]
	for _, f := range fields {
		if !hd.take(f.key, f.value) {
			rest = append(rest, f)
		}
	}

	stamp := record.Time
	if stamp.IsZero() {
		stamp = time.Now()
	}

	var buf bytes.Buffer
	buf.Grow(160 + len(rest)*24)
	buf.WriteString(stamp.UTC().Format(consoleTimeFormat))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if hd.component != "" {
		buf.WriteString(" [" + hd.component + "]")
	}
	if subject := hd.subject(); subject != "" {
		buf.WriteString(" " + subject)
	}
	buf.WriteString(" - ")
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(msg)

	if h.addSource {
		if src := record.Source(); src != nil {
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	for _, f := range rest {
		if f.key == "" {
			continue
		}
		buf.WriteString(" " + f.key + "=" + formatValue(f.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

type field struct {
	key   string
	value slog.Value
}

// appendField flattens attr into dotted keys below prefix.
func appendField(dst []field, prefix []string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			dst = appendField(dst, next, member)
		}
		return dst
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(append([]string(nil), prefix...), key), ".")
		key = strings.TrimSuffix(key, ".")
	}
	return append(dst, field{key: key, value: attr.Value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
