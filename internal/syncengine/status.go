package syncengine

// Status is the single aggregate sync signal the caller needs. It never
// contradicts the outbox: "saved" is not reported while events are pending.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusSaving        Status = "saving"
	StatusSaved         Status = "saved"
	StatusOfflineQueued Status = "offline-queued"
	StatusError         Status = "error"
)
