package race

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/racetrack/internal/race"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
