package navigator

import (
	"github.com/pathnav/navigator/internal/dispatcher"
)

// RegisterCommands wires the command surface into d. halt is invoked for the halt
// verb; honouring it is up to the scheduler.
//
//	halt
//	record;<start>;<end>
//	stop
//	oneway;<a>;<b>;...   patrol;<a>;<b>;...   circle;<a>;<b>;...
//	status
//
// Rejected commands return an error and leave the navigator untouched.
func (n *Navigator) RegisterCommands(d *dispatcher.Dispatcher, halt func()) {
	d.Register("halt", func(dispatcher.Event) (any, error) {
		if halt != nil {
			halt()
		}
		return "halting", nil
	}, dispatcher.Logged())

	d.Register("record", func(e dispatcher.Event) (any, error) {
		if err := n.Record(e.Args[0], e.Args[1]); err != nil {
			return nil, err
		}
		return "recording " + n.recordingEdge.String(), nil
	}, dispatcher.Args(2, 2), dispatcher.Logged())

	d.Register("stop", func(dispatcher.Event) (any, error) {
		n.Stop()
		return "stopped", nil
	}, dispatcher.Logged())

	for _, mode := range []TraversalMode{OneWay, Patrol, Circle} {
		d.Register(mode.String(), func(e dispatcher.Event) (any, error) {
			if err := n.StartRoute(e.Args, mode); err != nil {
				return nil, err
			}
			return n.Route(), nil
		}, dispatcher.Args(2, -1), dispatcher.Logged())
	}

	d.Register("status", func(dispatcher.Event) (any, error) {
		return n.Status(), nil
	})
}
