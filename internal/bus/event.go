package bus

import "time"

// Event kinds published by the database core.
const (
	KindStateChanged = "db.state_changed"
	KindBusyRetry    = "db.busy_retry"
	KindMigrated     = "db.migrated"
)

// Event represents something that happened inside the process, published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
