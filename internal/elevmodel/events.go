package elevmodel

import "github.com/walkthru-earth/elevationd/internal/tile"

// EventKind classifies a Model observability event (spec §6
// "Observability", §9 "replace Swing marshalling with a plain apply-update
// message").
type EventKind int

const (
	// TileInstalled fires whenever a tile is decoded and placed into memory,
	// whether loaded from disk or freshly retrieved.
	TileInstalled EventKind = iota
	// RetrievalSucceeded fires specifically when a network fetch completed
	// and its bytes were written to the file store.
	RetrievalSucceeded
)

func (k EventKind) String() string {
	switch k {
	case TileInstalled:
		return "TileInstalled"
	case RetrievalSucceeded:
		return "RetrievalSucceeded"
	default:
		return "Unknown"
	}
}

// Event is the property-change notification a Model emits so that callers
// (a redraw loop, a metrics counter) can react without polling.
type Event struct {
	Kind EventKind
	Key  tile.Key
}

// Subscribe registers fn to be called, on the goroutine that detects the
// change, for every subsequent Model event. Subscribe mirrors the
// teacher's onQueueUpdate/onTaskProgress callback-injection pattern rather
// than a process-wide event bus (spec §9 "inject as explicit
// collaborators").
func (m *Model) Subscribe(fn func(Event)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Model) notify(e Event) {
	m.listenersMu.Lock()
	listeners := make([]func(Event), len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}
