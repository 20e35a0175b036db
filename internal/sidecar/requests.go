package sidecar

// subscribeRequest is the wire shape of a subscribe control message.
type subscribeRequest struct {
	Expression string `json:"expression"`
	ClientID   string `json:"client_id"`
}

// subscribeReply is the wire shape of a successful subscribe reply.
type subscribeReply struct {
	ID              uint64 `json:"id"`
	Topic           string `json:"topic"`
	LeaseBucket     string `json:"lease_bucket"`
	LeaseKey        string `json:"lease_key"`
	LeaseTTLSeconds int    `json:"lease_ttl_seconds"`
}

// unsubscribeRequest is the wire shape of an unsubscribe control message.
type unsubscribeRequest struct {
	ID       uint64 `json:"id"`
	ClientID string `json:"client_id"`
}

// unsubscribeReply is the wire shape of a successful unsubscribe reply.
type unsubscribeReply struct {
	ID      uint64 `json:"id"`
	Removed bool   `json:"removed"`
}

// errorReply is the wire shape for any control-plane failure.
type errorReply struct {
	Error string `json:"error"`
}
