package navigator

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pathnav/navigator/internal/navigator"

type instruments struct {
	edgesCompleted metric.Int64Counter
	controlFaults  metric.Int64Counter
	efficiency     metric.Float64Histogram
	trackingError  metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	m := otel.Meter(instrumentationName)
	var (
		in  instruments
		err error
	)

	in.edgesCompleted, err = m.Int64Counter(
		"navigator.edges.completed",
		metric.WithDescription("Edges flown to the end of their recording"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating edges counter: %w", err)
	}

	in.controlFaults, err = m.Int64Counter(
		"navigator.control.faults",
		metric.WithDescription("Control cycles aborted on a non-finite correction"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating faults counter: %w", err)
	}

	in.efficiency, err = m.Float64Histogram(
		"navigator.recording.efficiency",
		metric.WithDescription("Share of recorded ticks that needed no sample"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating efficiency histogram: %w", err)
	}

	in.trackingError, err = m.Float64Histogram(
		"navigator.tracking.error",
		metric.WithDescription("Distance between reference and actual position"),
		metric.WithUnit("m"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tracking histogram: %w", err)
	}

	return &in, nil
}
