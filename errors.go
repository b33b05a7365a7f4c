package payqueue

import "errors"

// Sentinel errors for payment queue operations.
var (
	// ErrInvalidAmount indicates a zero or missing payment amount.
	ErrInvalidAmount = errors.New("payqueue: amount must be nonzero")

	// ErrInvalidRecipient indicates a degenerate payment recipient (zero address,
	// the client itself, the processor, the orchestrator, or the collateral token).
	ErrInvalidRecipient = errors.New("payqueue: invalid recipient")

	// ErrInvalidToken indicates a zero or unresponsive payment token.
	ErrInvalidToken = errors.New("payqueue: invalid payment token")

	// ErrInvalidChainID indicates origin or target chain does not match the
	// processor's chain.
	ErrInvalidChainID = errors.New("payqueue: invalid chain id")

	// ErrInvalidFlags indicates a malformed flags/data encoding.
	ErrInvalidFlags = errors.New("payqueue: malformed flags or data")

	// ErrFlagWidthExceeded indicates a flag position beyond the bitset width.
	ErrFlagWidthExceeded = errors.New("payqueue: flag position exceeds bitset width")

	// ErrOrderNotFound indicates a lookup for a nonexistent order ID.
	ErrOrderNotFound = errors.New("payqueue: order not found")

	// ErrOrderExists indicates a client-supplied order ID that is already in use.
	ErrOrderExists = errors.New("payqueue: order id already in use")

	// ErrNotModule indicates the caller is not a module registered with the
	// orchestrator.
	ErrNotModule = errors.New("payqueue: caller is not a registered module")

	// ErrOnlyProcessor indicates a client operation reserved for the configured
	// payment processor.
	ErrOnlyProcessor = errors.New("payqueue: caller is not the payment processor")

	// ErrNotQueueOperator indicates the caller lacks the queue operator role.
	ErrNotQueueOperator = errors.New("payqueue: caller lacks queue operator role")

	// ErrInvalidStateTransition indicates an order state transition that is not
	// PROCESSING to COMPLETED or PROCESSING to CANCELLED.
	ErrInvalidStateTransition = errors.New("payqueue: invalid order state transition")

	// ErrQueueEmpty indicates a drain of an empty payment queue.
	ErrQueueEmpty = errors.New("payqueue: queue is empty")

	// ErrNothingToClaim indicates no unclaimable balance exists for the
	// requested client, token, and receiver.
	ErrNothingToClaim = errors.New("payqueue: nothing to claim")

	// ErrInsufficientFunding indicates the client's balance or allowance does
	// not cover an order being enqueued.
	ErrInsufficientFunding = errors.New("payqueue: insufficient balance or allowance")

	// ErrOutstandingUnderflow indicates a processor reported more paid than the
	// client's outstanding amount for a token. This is an invariant violation,
	// not a recoverable condition.
	ErrOutstandingUnderflow = errors.New("payqueue: outstanding amount underflow")

	// ErrTransferFailed indicates a token transfer call reverted, returned
	// false, or targeted an address with no code.
	ErrTransferFailed = errors.New("payqueue: token transfer failed")

	// ErrInvalidConfig indicates an invalid processor or client configuration.
	ErrInvalidConfig = errors.New("payqueue: invalid configuration")
)

// ErrorCode represents processor error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeInvalidOrder indicates an order that failed validation.
	ErrCodeInvalidOrder ErrorCode = "INVALID_ORDER"

	// ErrCodeUnauthorized indicates a caller that failed an authorization check.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeInvalidState indicates an illegal order state transition.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeQueueEmpty indicates a drain of an empty queue.
	ErrCodeQueueEmpty ErrorCode = "QUEUE_EMPTY"

	// ErrCodeTransferFailed indicates a failed token delivery.
	ErrCodeTransferFailed ErrorCode = "TRANSFER_FAILED"

	// ErrCodeStorage indicates a failure in the backing store.
	ErrCodeStorage ErrorCode = "STORAGE"
)

// ProcessorError provides structured error information.
type ProcessorError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProcessorError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// NewProcessorError creates a new ProcessorError with the given code and message.
func NewProcessorError(code ErrorCode, message string, err error) *ProcessorError {
	return &ProcessorError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *ProcessorError) WithDetails(key string, value interface{}) *ProcessorError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
