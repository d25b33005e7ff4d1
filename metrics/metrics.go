package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	prometheus.Collector
}

type Metrics struct {
	// EventCount counts inbound room events by name.
	EventCount Observer
	// CommandCount counts command invocations by command.
	CommandCount Observer
	// DeleteCount counts deletes emitted by reason.
	DeleteCount Observer
	// CheckLatency observes the time to check new playlist items.
	CheckLatency Observer
	// ReplenishCount counts videos queued from the store.
	ReplenishCount Observer
	// BridgeMsgCount counts messages relayed through the chat bridge.
	BridgeMsgCount Observer
	// ConnectCount counts connections to the room.
	ConnectCount Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventCount,
		m.CommandCount,
		m.DeleteCount,
		m.CheckLatency,
		m.ReplenishCount,
		m.BridgeMsgCount,
		m.ConnectCount,
	}
}
