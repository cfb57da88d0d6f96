package models

import (
	"time"

	"github.com/uptrace/bun"
)

type GateStaff struct {
	bun.BaseModel `bun:"table:gate_staff"`

	Identity  string    `bun:"identity,pk" json:"identity"`
	Name      string    `bun:"name,notnull" json:"name"`
	Active    bool      `bun:"active,notnull" json:"active"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
