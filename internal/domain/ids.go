// Package domain contains entity without logic, just meta-data
package domain

type (
	RoomID    string
	UserID    string
	ConnID    string
	RequestID string
	WorkerID  string
	GatewayID string
	EntityID  int64
)
