package domain

// Action is a gameplay verb carried inside a simulation request.
type Action string

const (
	ActionJoinRoom    Action = "join_room"
	ActionLeaveRoom   Action = "leave_room"
	ActionDropCoin    Action = "drop_coin"
	ActionCollectCoin Action = "collect_coin"
)
