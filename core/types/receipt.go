package types

// ReceiptStatus reports whether a transaction committed.
type ReceiptStatus string

const (
	ReceiptSuccess ReceiptStatus = "success"
	ReceiptFailed  ReceiptStatus = "failed"
)

// Receipt reflects the final outcome of a submitted transaction. Failed
// transactions carry the error text and no events; their state changes were
// discarded.
type Receipt struct {
	TxHash    string        `json:"txHash"`
	Slot      uint64        `json:"slot"`
	Status    ReceiptStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	Logs      []string      `json:"logs"`
	Events    []Event       `json:"events"`
	StateRoot string        `json:"stateRoot,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// Succeeded reports whether the receipt represents a committed transaction.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptSuccess
}
