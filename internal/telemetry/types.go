// Telemetry event and agent state types
package telemetry

// Heart rate and stamina bounds used by the update rule.
const (
	MinHeartRate     = 40.0
	MaxHeartRate     = 200.0
	BaseHeartRate    = 60.0
	InitialStamina   = 100.0
	InjectedBaseRate = 180.0
)

// Event is one telemetry sample emitted by an agent tick. It is also the wire
// format published to the transport and accepted by the ingestion endpoint.
type Event struct {
	SoldierID int64   `json:"soldier_id"`
	Timestamp float64 `json:"timestamp"`
	HeartRate float64 `json:"heart_rate"`
	Stamina   float64 `json:"stamina"`
}

// AgentState holds runtime state for a simulated soldier.
type AgentState struct {
	ID        int64
	HeartRate float64
	Stamina   float64
	// LastTick is the virtual time of the most recent update.
	LastTick int64
}

// Snapshot returns the event describing the agent's current state.
func (a *AgentState) Snapshot(ts float64) Event {
	return Event{
		SoldierID: a.ID,
		Timestamp: ts,
		HeartRate: a.HeartRate,
		Stamina:   a.Stamina,
	}
}
