// Package demos holds small applications written against the runtime's
// public API. They are what the -demo flag runs.
package demos

import (
	"fmt"
	"sort"

	"gregoryjjb/pinloop/console"
	"gregoryjjb/pinloop/loop"
)

// App is a running demo.
type App interface {
	Stop() error
}

type Starter func(rt *loop.Runtime, con *console.Console) (App, error)

var registry = map[string]Starter{
	"blink": func(rt *loop.Runtime, con *console.Console) (App, error) {
		b, err := StartBlink(rt, con, BlinkPin, BlinkPeriod)
		if err != nil {
			return nil, err
		}
		return b, nil
	},
	"melody": func(rt *loop.Runtime, con *console.Console) (App, error) {
		p, err := StartPlayer(rt, con, BuzzerPin, Playlist, TempoMultiplier)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	"smartlight": func(rt *loop.Runtime, con *console.Console) (App, error) {
		s, err := StartSmartLight(rt, con)
		if err != nil {
			return nil, err
		}
		return s, nil
	},
	"intruder": func(rt *loop.Runtime, con *console.Console) (App, error) {
		a, err := StartIntruderAlarm(rt, con)
		if err != nil {
			return nil, err
		}
		return a, nil
	},
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Start(name string, rt *loop.Runtime, con *console.Console) (App, error) {
	start, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown demo %q", loop.ErrConfiguration, name)
	}
	return start(rt, con)
}

// closeAll closes every pin and returns the first error.
func closeAll(pins ...*loop.Pin) error {
	var first error
	for _, p := range pins {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
