package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

// restoreMeterProvider undoes the global install New performs.
func restoreMeterProvider(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NotNil(t, p.Meter("racetrack"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutOutputs(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "racetrack"})
	assert.ErrorContains(t, err, "no log writer or endpoint")
}

func TestNew_FileExporter(t *testing.T) {
	restoreMeterProvider(t)

	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "racetrack",
		ServiceVersion: "1.2.3",
		Role:           "authority",
		BatchTimeout:   time.Second,
		MetricInterval: time.Hour,
		LogWriter:      &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())
	assert.True(t, p.Enabled())

	counter, err := otel.Meter("racetrack/test").Int64Counter("race.finishes")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "race.finishes")
	assert.Contains(t, buf.String(), "authority")

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EndpointOnly(t *testing.T) {
	restoreMeterProvider(t)

	p, err := New(Config{
		Enabled:     true,
		ServiceName: "racetrack",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.Nil(t, p.metrics, "metrics are only exported to the log writer")
	assert.NotNil(t, p.Meter("racetrack"))
	require.NoError(t, p.Shutdown(context.Background()))
}
