package games

import "time"

// ConnectionStatus summarizes the health of the change channel subscription.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// ConnectionState is the per-view connection indicator exposed to consumers.
type ConnectionState struct {
	Status       ConnectionStatus `json:"status"`
	LastUpdateAt time.Time        `json:"lastUpdateAt"`
}

// LiveResponse is the payload returned by /games/live.
type LiveResponse struct {
	Games      []Game          `json:"games"`
	Connection ConnectionState `json:"connection"`
}
