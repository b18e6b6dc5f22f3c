package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the authoritative wallet record for a user. Balance is only
// mutated through ledger operations; it is never overwritten directly.
type Account struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	Email               string          `db:"email" json:"email"`
	Balance             decimal.Decimal `db:"balance" json:"balance"`
	Currency            string          `db:"currency" json:"currency"`
	Version             int64           `db:"version" json:"version"`
	LowBalanceThreshold decimal.Decimal `db:"low_balance_threshold" json:"low_balance_threshold"`
	PINHash             string          `db:"pin_hash" json:"-"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// LedgerEntryType classifies a balance mutation
type LedgerEntryType string

const (
	// EntryTypeReserve debits funds ahead of vendor confirmation
	EntryTypeReserve LedgerEntryType = "reserve"
	// EntryTypeRelease restores a reservation after vendor rejection
	EntryTypeRelease LedgerEntryType = "release"
	// EntryTypeExternalCredit credits confirmed external funding
	EntryTypeExternalCredit LedgerEntryType = "external_credit"
)

// LedgerEntry is one append-only audit record per balance mutation.
// SourceReference is set for external credits and is unique, which is what
// makes webhook-driven funding replay-safe.
type LedgerEntry struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AccountID       uuid.UUID       `db:"account_id" json:"account_id"`
	Delta           decimal.Decimal `db:"delta" json:"delta"`
	BalanceAfter    decimal.Decimal `db:"balance_after" json:"balance_after"`
	OrderID         *uuid.UUID      `db:"order_id" json:"order_id,omitempty"`
	EntryType       LedgerEntryType `db:"entry_type" json:"entry_type"`
	SourceReference *string         `db:"source_reference" json:"source_reference,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// BalanceResponse is the wallet balance payload returned to clients
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
}
