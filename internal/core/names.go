package core

// Queue and topic names. Per-instance queues are derived from instance ids
// so responses and forwarded requests are addressed deliveries, not
// competing-consumer lotteries.
const (
	RequestQueue = "sim.requests"
	FramesTopic  = "sim.frames"
	WorkersTopic = "sim.workers"
)

func WorkerQueue(workerID string) string { return RequestQueue + "." + workerID }

func ReplyQueue(gatewayID string) string { return "sim.responses." + gatewayID }
