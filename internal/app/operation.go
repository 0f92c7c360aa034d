package app

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Operation tracks a CLI command that may mutate the catalog.
// Operations are created in memory with ID=0. Only mutating commands
// persist them, which gives them an id in the operations journal.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     statusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. The status is written when the app closes.
func (op *Operation) Fail() {
	op.Status = statusError
}
