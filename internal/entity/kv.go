package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// KVEntry is a single persisted key of the sql store driver.
type KVEntry struct {
	bun.BaseModel `bun:"table:kv_entries"`

	Key       string    `bun:"entry_key,pk"`
	Value     []byte    `bun:"entry_value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
