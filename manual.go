package payqueue

// ManualQueueProcessor is a queue payment processor whose ProcessPayments
// only enqueues: orders are not executed until a queue operator explicitly
// calls ExecutePaymentQueue. The decoupling lets a human or external
// scheduler batch and rate-limit settlement instead of every deposit
// triggering immediate payout.
//
// Storage, queueing, validation, cancellation, and claims are identical to
// QueueProcessor.
type ManualQueueProcessor struct {
	*QueueProcessor
}

// NewManualQueueProcessor creates a manual-execution queue processor.
func NewManualQueueProcessor(cfg ProcessorConfig) (*ManualQueueProcessor, error) {
	p, err := NewQueueProcessor(cfg)
	if err != nil {
		return nil, err
	}
	p.autoExecute = false
	return &ManualQueueProcessor{QueueProcessor: p}, nil
}
