package domain

// RelayStats is a snapshot of the relay counters, sampled by the stats worker
// and exposed on the readiness endpoint.
type RelayStats struct {
	Rooms           int    `json:"rooms"`
	Sessions        int    `json:"sessions"`
	DroppedPresence uint64 `json:"droppedPresence"`
	Dispatched      uint64 `json:"dispatched"`
	FailedPushes    uint64 `json:"failedPushes"`
	NotIndexed      uint64 `json:"notIndexed"`
	SignalsRelayed  uint64 `json:"signalsRelayed"`
	SignalsDropped  uint64 `json:"signalsDropped"`
	Disconnects     uint64 `json:"disconnects"`
}
