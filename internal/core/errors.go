package core

// Wire error codes. Every outbound error envelope carries one of these next
// to the human-readable message.
const (
	CodeBadRequest   = "E_BAD_REQUEST"
	CodeUnauthorized = "E_UNAUTHORIZED"
	CodeRateLimit    = "E_RATE_LIMIT"
	CodeCapacity     = "E_CAPACITY"
	CodeDomain       = "E_DOMAIN"
	CodeTimeout      = "E_TIMEOUT"
	CodeTransport    = "E_TRANSPORT"
	CodeInternal     = "E_INTERNAL"
)
