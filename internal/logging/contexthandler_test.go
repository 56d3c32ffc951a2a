package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHandler_NoGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), "", func() []slog.Attr {
		return []slog.Attr{slog.String("role", "authority")}
	})

	slog.New(h).Info("hello")
	assert.Contains(t, buf.String(), "role=authority")
}

func TestContextHandler_EmptyAttrsAddNoGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), "race", func() []slog.Attr { return nil })

	slog.New(h).Info("hello")
	assert.NotContains(t, buf.String(), "race")
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), "race", nil)

	slog.New(h).Info("plain")
	assert.Contains(t, buf.String(), "plain")
}

func TestContextHandler_WithAttrsAndGroupKeepProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), "race", func() []slog.Attr {
		return []slog.Attr{slog.String("name", "Cup")}
	})

	slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "worker")})).Info("a")
	assert.Contains(t, buf.String(), "component=worker")
	assert.Contains(t, buf.String(), "race.name=Cup")

	assert.Equal(t, h, h.WithGroup(""))
	buf.Reset()
	slog.New(h.WithGroup("g")).Info("b", "k", "v")
	assert.Contains(t, buf.String(), "g.k=v")
	assert.Contains(t, buf.String(), "g.race.name=Cup")
}
