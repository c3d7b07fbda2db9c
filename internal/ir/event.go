package ir

// Invocation is a request to execute one action on a concept. Produced by
// the dispatcher, consumed by the target concept's transport adapter.
type Invocation struct {
	ID      string `json:"id"` // content-addressed
	Concept string `json:"concept"`
	Action  string `json:"action"`
	Input   Record `json:"input"`
	Flow    string `json:"flow"`
	Seq     int64  `json:"seq"` // logical clock
}

// Completion is the recorded result of an invocation: the echoed input,
// the tagged outcome variant, and the output payload. Produced externally,
// consumed by the engine. Timestamp is externally supplied unix
// milliseconds and is never used for ordering.
type Completion struct {
	ID        string `json:"id"`
	Concept   string `json:"concept"`
	Action    string `json:"action"`
	Input     Record `json:"input,omitempty"`
	Variant   string `json:"variant"`
	Output    Record `json:"output,omitempty"`
	Flow      string `json:"flow"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
}

// TriggerKey is the (concept, action) key used for candidate sync lookup.
func (c *Completion) TriggerKey() string {
	return c.Concept + "\x00" + c.Action
}

// Firing records one at-most-once dispatch: the sync, the flow, the
// completion that completed the match, and the hash of the binding
// environment that fired. Persisted with a UNIQUE constraint so a retried
// delivery of the same completion can never fire twice.
type Firing struct {
	SyncName     string `json:"sync_name"`
	Flow         string `json:"flow"`
	CompletionID string `json:"completion_id"`
	BindingHash  string `json:"binding_hash"`
	Seq          int64  `json:"seq"`
}

// PendingInvocation is an invocation held because its target concept was
// unavailable at dispatch time. Released FIFO per target concept.
type PendingInvocation struct {
	PendingID  string     `json:"pending_id"`
	Invocation Invocation `json:"invocation"`
	SyncName   string     `json:"sync_name"`
	Flow       string     `json:"flow"`
	Seq        int64      `json:"seq"`
}

// ConflictRecord surfaces two or more queued or recently dispatched
// invocations that mutate the same (concept, entity) from distinct flows.
// The engine reports conflicts; it never resolves them.
type ConflictRecord struct {
	Concept     string       `json:"concept"`
	Entity      string       `json:"entity"`
	Flows       []string     `json:"flows"`
	Invocations []Invocation `json:"invocations"`
}
