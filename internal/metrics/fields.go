package metrics

// Common metric attribute keys to keep telemetry consistent/searchable.
const (
	AttrMethod     = "method"
	AttrPath       = "path"
	AttrStatus     = "status"
	AttrOp         = "op"
	AttrResult     = "result"
	AttrChangeType = "change_type"
	AttrState      = "state"
)

// Result values used with AttrResult.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultApplied   = "applied"
	ResultStale     = "stale"
	ResultIgnored   = "ignored"
	ResultNoop      = "noop"
	ResultNotFound  = "not_found"
	ResultCancelled = "cancelled"
)
