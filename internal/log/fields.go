package log

import "sort"

// Field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldStudentID     = "student_id"
	FieldTransactionID = "transaction_id"
	FieldAmount        = "amount"
	FieldStatus        = "status"
	FieldPeriod        = "period"
	FieldSemester      = "semester"
	FieldBalance       = "balance"
	FieldAllowance     = "allowance"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentSemester  = "semester"
	ComponentReview    = "review"
	ComponentAllowance = "allowance"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentBackend   = "backend"
)

const (
	OpReconcile = "reconcile"
	OpAdvance   = "advance"
	OpApprove   = "approve"
	OpDeny      = "deny"
	OpSubmit    = "submit"
	OpResolve   = "resolve"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpExport    = "export"
	OpSweep     = "sweep"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// LogFields builds structured log attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithStudent(id string) LogFields {
	f[FieldStudentID] = id
	return f
}

func (f LogFields) WithTransaction(id string, amount int64) LogFields {
	f[FieldTransactionID] = id
	f[FieldAmount] = amount
	return f
}

func (f LogFields) WithHTTP(method, path string, status int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = status
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts the fields to slog key/value pairs in key order.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(f)*2)
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}
