// Package navigator owns the graph of recorded edges and flies routes over it.
//
// All methods except LogAttrs must be called from the goroutine that calls Tick.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pathnav/navigator/internal/queue"
	"github.com/pathnav/navigator/internal/storage"
	"github.com/pathnav/navigator/internal/tick"
	"github.com/pathnav/navigator/internal/trajectory"
	"github.com/pathnav/navigator/internal/vehicle"
	"github.com/pathnav/navigator/pkg/core"
)

var (
	// ErrTooFewWaypoints is returned for a route with fewer than two waypoints.
	ErrTooFewWaypoints = errors.New("route needs at least two waypoints")
	// ErrSelfLoop is returned for an edge that starts where it ends.
	ErrSelfLoop = errors.New("edge starts and ends at the same waypoint")
	// ErrMissingEdge is returned when a route uses an edge that was never recorded.
	ErrMissingEdge = errors.New("edge not recorded")
)

// Dependencies holds everything the navigator drives or reports to.
type Dependencies struct {
	Provider   vehicle.Provider
	Propulsion vehicle.Propulsion
	Attitude   vehicle.Attitude
	Logger     *slog.Logger
	// FlightLog receives events, tracking frames and recorded tracks. Nil discards.
	FlightLog storage.Backend
	SessionID uint
	// FrameEvery samples the tracking error every n ticks while flying. Zero disables.
	FrameEvery int
	// Now stamps flight-log records. Defaults to time.Now.
	Now func() time.Time
}

// Navigator is the path-graph orchestrator.
type Navigator struct {
	telemetry  vehicle.Telemetry
	propulsion vehicle.Propulsion
	attitude   vehicle.Attitude
	logger     *slog.Logger
	flightLog  storage.Backend
	sessionID  uint
	frameEvery int
	now        func() time.Time
	metrics    *instruments

	clock         tick.Clock
	paths         map[EdgeKey]*trajectory.Path
	route         *queue.Queue[EdgeKey]
	mode          TraversalMode
	recording     *trajectory.Path
	recordingEdge EdgeKey

	// published for log enrichment from other goroutines
	pubTick     atomic.Int64
	pubActivity atomic.Value
}

// New creates an idle navigator with no recorded edges.
func New(deps Dependencies) (*Navigator, error) {
	switch {
	case deps.Provider == nil:
		return nil, errors.New("navigator: vehicle provider is required")
	case deps.Propulsion == nil:
		return nil, errors.New("navigator: propulsion controller is required")
	case deps.Attitude == nil:
		return nil, errors.New("navigator: attitude controller is required")
	}

	metrics, err := newInstruments()
	if err != nil {
		return nil, err
	}

	n := &Navigator{
		telemetry:  deps.Provider.Primary(),
		propulsion: deps.Propulsion,
		attitude:   deps.Attitude,
		logger:     deps.Logger,
		flightLog:  deps.FlightLog,
		sessionID:  deps.SessionID,
		frameEvery: deps.FrameEvery,
		now:        deps.Now,
		metrics:    metrics,
		paths:      make(map[EdgeKey]*trajectory.Path),
		route:      queue.New[EdgeKey](),
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.flightLog == nil {
		n.flightLog = storage.Discard{}
	}
	if n.now == nil {
		n.now = time.Now
	}
	n.publish()
	return n, nil
}

// Mode returns the traversal mode of the last route started.
func (n *Navigator) Mode() TraversalMode { return n.mode }

// Recording reports the edge being recorded, if any.
func (n *Navigator) Recording() (EdgeKey, bool) {
	return n.recordingEdge, n.recording != nil
}

// Route returns the queued edges, the one being flown first.
func (n *Navigator) Route() []EdgeKey { return n.route.Snapshot() }

// Path returns the recording of key.
func (n *Navigator) Path(key EdgeKey) (*trajectory.Path, bool) {
	p, ok := n.paths[key]
	return p, ok
}

// Edges returns every known edge in name order.
func (n *Navigator) Edges() []EdgeKey {
	out := make([]EdgeKey, 0, len(n.paths))
	for k := range n.paths {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// CompileRoute builds the edge sequence visiting names under mode. Circle closes the
// loop back to the first waypoint; Patrol appends the reverse traversal. Every edge
// must be a recorded non-self-loop. Nothing is modified.
func (n *Navigator) CompileRoute(names []string, mode TraversalMode) ([]EdgeKey, error) {
	if len(names) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewWaypoints, len(names))
	}

	edges := make([]EdgeKey, 0, 2*len(names))
	for i := 1; i < len(names); i++ {
		edges = append(edges, EdgeKey{Start: names[i-1], End: names[i]})
	}

	switch mode {
	case OneWay:
	case Circle:
		edges = append(edges, EdgeKey{Start: names[len(names)-1], End: names[0]})
	case Patrol:
		for i := len(edges) - 1; i >= 0; i-- {
			edges = append(edges, edges[i].Reverse())
		}
	default:
		return nil, fmt.Errorf("unknown traversal mode %s", mode)
	}

	for _, e := range edges {
		if !e.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrSelfLoop, e)
		}
		p, ok := n.paths[e]
		if !ok || !p.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrMissingEdge, e)
		}
	}
	return edges, nil
}

// StartRoute compiles names and, on success, stops any current activity and flies the
// new route. On failure nothing changes.
func (n *Navigator) StartRoute(names []string, mode TraversalMode) error {
	edges, err := n.CompileRoute(names, mode)
	if err != nil {
		return err
	}

	n.Stop()
	n.route.Replace(edges)
	n.mode = mode

	n.logger.Info("route started", "mode", mode.String(), "edges", len(edges))
	n.recordEvent(core.EventRouteStarted, EdgeKey{Start: names[0], End: names[len(names)-1]}, mode.String(), map[string]any{
		"waypoints": names,
		"edges":     len(edges),
	})

	err = n.ActivateNext()
	n.publish()
	return err
}

// ActivateNext starts playback of the queue head. It does nothing on an empty queue.
func (n *Navigator) ActivateNext() error {
	head, ok := n.route.Peek()
	if !ok {
		return nil
	}
	p := n.paths[head]
	if err := p.SetMode(trajectory.Playing); err != nil {
		return fmt.Errorf("activating %s: %w", head, err)
	}
	n.logger.Debug("edge started", "edge", head.String(), "duration", int64(p.Duration()))
	n.recordEvent(core.EventEdgeStarted, head, n.mode.String(), nil)
	return nil
}

// CheckAdvance moves to the next edge once the head has played to its end. The
// finished edge goes back to the tail unless the mode is OneWay.
func (n *Navigator) CheckAdvance() {
	head, ok := n.route.Peek()
	if !ok || n.paths[head].Mode() != trajectory.Idle {
		return
	}

	n.resetControllers()
	n.metrics.edgesCompleted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("mode", n.mode.String())))
	n.recordEvent(core.EventEdgeCompleted, head, n.mode.String(), nil)

	if n.mode == OneWay {
		n.route.Pop()
	} else {
		n.route.Rotate()
	}

	if n.route.Empty() {
		n.logger.Info("route finished", "last", head.String())
		n.recordEvent(core.EventRouteFinished, head, n.mode.String(), nil)
		n.publish()
		return
	}
	if err := n.ActivateNext(); err != nil {
		n.logger.Error("cannot activate next edge", "error", err)
	}
}

// Record stops any current activity and starts recording the edge start->end,
// replacing an earlier recording of that edge.
func (n *Navigator) Record(start, end string) error {
	key := EdgeKey{Start: start, End: end}
	if !key.Valid() {
		return fmt.Errorf("%w: %s", ErrSelfLoop, key)
	}

	n.Stop()

	p := trajectory.New(n.telemetry)
	if err := p.SetMode(trajectory.Recording); err != nil {
		return fmt.Errorf("recording %s: %w", key, err)
	}
	n.paths[key] = p
	n.recording = p
	n.recordingEdge = key

	n.logger.Info("recording started", "edge", key.String())
	n.recordEvent(core.EventRecordingStarted, key, "", nil)
	n.publish()
	return nil
}

// Stop ends the recording and the active route, if any, and resets the controllers.
func (n *Navigator) Stop() {
	if n.recording != nil {
		p, key := n.recording, n.recordingEdge
		if p.Mode() == trajectory.Recording {
			_ = p.SetMode(trajectory.Idle)
		}
		n.recording = nil
		n.recordingEdge = EdgeKey{}
		n.finishRecording(key, p)
	}

	if head, ok := n.route.Peek(); ok {
		_ = n.paths[head].SetMode(trajectory.Idle)
		n.route.Clear()
		n.logger.Info("route stopped", "edge", head.String())
		n.recordEvent(core.EventRouteStopped, head, n.mode.String(), nil)
	}

	n.resetControllers()
	n.publish()
}

// Tick runs one scheduler tick: either one recording update or one control cycle of
// the active edge followed by CheckAdvance. A non-finite attitude correction aborts
// that cycle's actuator writes and is returned; playback timing continues.
func (n *Navigator) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer n.advance()

	if n.recording != nil {
		if n.recording.Mode() != trajectory.Recording {
			n.Stop()
			return nil
		}
		n.recording.Update()
		return nil
	}

	head, ok := n.route.Peek()
	if !ok {
		return nil
	}

	var err error
	if p := n.paths[head]; p.Mode() == trajectory.Playing {
		err = n.move(ctx, head, p)
	}
	n.CheckAdvance()
	return err
}

func (n *Navigator) move(ctx context.Context, key EdgeKey, p *trajectory.Path) error {
	ref, err := p.Reference()
	if err != nil {
		return fmt.Errorf("edge %s: %w", key, err)
	}

	actual := n.telemetry.Position()
	n.propulsion.SetVelocity(ref.Position.Sub(actual).Add(ref.Velocity))
	n.propulsion.Update()
	faceErr := n.attitude.FaceVectors(ref.Forward, ref.Up)

	pathTick := p.Now()
	p.Update()
	n.sampleFrame(ctx, key, pathTick, ref, actual)

	if faceErr != nil {
		n.metrics.controlFaults.Add(ctx, 1)
		n.logger.Error("attitude cycle aborted", "edge", key.String(), "tick", int64(pathTick), "error", faceErr)
		return fmt.Errorf("edge %s: %w", key, faceErr)
	}
	return nil
}

func (n *Navigator) resetControllers() {
	n.propulsion.Reset()
	n.attitude.Reset()
}

func (n *Navigator) advance() {
	n.clock.Advance()
	n.publish()
}

// publish stores the tick and activity read by LogAttrs.
func (n *Navigator) publish() {
	n.pubTick.Store(int64(n.clock.Now()))
	n.pubActivity.Store(n.activity())
}

func (n *Navigator) activity() string {
	if n.recording != nil {
		return "recording " + n.recordingEdge.String()
	}
	if head, ok := n.route.Peek(); ok {
		return n.mode.String() + " " + head.String()
	}
	return "idle"
}

// LogAttrs returns the current tick and activity. Safe from any goroutine.
func (n *Navigator) LogAttrs() []slog.Attr {
	activity, _ := n.pubActivity.Load().(string)
	return []slog.Attr{
		slog.Int64("tick", n.pubTick.Load()),
		slog.String("activity", activity),
	}
}

// Status is a snapshot of the navigator for diagnostics.
type Status struct {
	Tick                tick.Tick     `json:"tick"`
	Activity            string        `json:"activity"`
	Mode                TraversalMode `json:"mode"`
	Recording           *EdgeKey      `json:"recording,omitempty"`
	RecordingSamples    int           `json:"recordingSamples,omitempty"`
	RecordingEfficiency float64       `json:"recordingEfficiency,omitempty"`
	Route               []EdgeKey     `json:"route"`
	Edges               []EdgeKey     `json:"edges"`
}

// Status returns the current state.
func (n *Navigator) Status() Status {
	s := Status{
		Tick:     n.clock.Now(),
		Activity: n.activity(),
		Mode:     n.mode,
		Route:    n.route.Snapshot(),
		Edges:    n.Edges(),
	}
	if n.recording != nil {
		key := n.recordingEdge
		s.Recording = &key
		s.RecordingSamples = n.recording.Len()
		s.RecordingEfficiency = n.recording.Efficiency()
	}
	return s
}

func (n *Navigator) finishRecording(key EdgeKey, p *trajectory.Path) {
	eff := p.Efficiency()
	n.metrics.efficiency.Record(context.Background(), eff)
	n.logger.Info("recording stopped", "edge", key.String(),
		"duration", int64(p.Duration()), "samples", p.Len(), "efficiency", eff)

	n.recordEvent(core.EventRecordingStopped, key, "", map[string]any{
		"duration":   int64(p.Duration()),
		"samples":    p.Len(),
		"efficiency": eff,
	})

	track := &core.Track{
		SessionID:  n.sessionID,
		Time:       n.now(),
		Start:      key.Start,
		End:        key.End,
		Duration:   int64(p.Duration()),
		Efficiency: eff,
	}
	for _, pt := range p.Points() {
		if pt.Motion == nil {
			continue
		}
		track.Ticks = append(track.Ticks, int64(pt.Tick))
		track.Points = append(track.Points, core.FromR3(pt.Motion.Position))
	}
	if err := n.flightLog.RecordTrack(track); err != nil {
		n.logger.Warn("flight log track write failed", "edge", key.String(), "error", err)
	}
}

// errorReporter is implemented by attitude controllers that expose their last errors.
type errorReporter interface {
	LastErrors() r3.Vector
}

func (n *Navigator) sampleFrame(ctx context.Context, key EdgeKey, pathTick tick.Tick, ref trajectory.Reference, actual r3.Vector) {
	if n.frameEvery <= 0 || int64(n.clock.Now())%int64(n.frameEvery) != 0 {
		return
	}

	posErr := ref.Position.Sub(actual).Norm()
	n.metrics.trackingError.Record(ctx, posErr)

	f := &core.Frame{
		SessionID:         n.sessionID,
		Time:              n.now(),
		Tick:              int64(n.clock.Now()),
		Start:             key.Start,
		End:               key.End,
		PathTick:          int64(pathTick),
		Reference:         core.FromR3(ref.Position),
		Actual:            core.FromR3(actual),
		ReferenceVelocity: core.FromR3(ref.Velocity),
		ActualVelocity:    core.FromR3(n.telemetry.Velocity()),
		PositionError:     posErr,
	}
	if r, ok := n.attitude.(errorReporter); ok {
		f.AttitudeError = core.FromR3(r.LastErrors())
	}
	if err := n.flightLog.RecordFrame(f); err != nil {
		n.logger.Warn("flight log frame write failed", "edge", key.String(), "error", err)
	}
}

func (n *Navigator) recordEvent(kind core.EdgeEventKind, key EdgeKey, mode string, details map[string]any) {
	e := &core.EdgeEvent{
		SessionID: n.sessionID,
		Time:      n.now(),
		Tick:      int64(n.clock.Now()),
		Kind:      kind,
		Start:     key.Start,
		End:       key.End,
		Mode:      mode,
		Details:   details,
	}
	if err := n.flightLog.RecordEdgeEvent(e); err != nil {
		n.logger.Warn("flight log event write failed", "kind", string(kind), "error", err)
	}
}
