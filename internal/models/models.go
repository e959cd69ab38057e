package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type User struct {
	TelegramID int64     `gorm:"primaryKey;autoIncrement:false" json:"telegram_id"`
	Username   string    `json:"username"`
	Balance    int64     `gorm:"not null;default:0" json:"balance"`
	ReferrerID *int64    `gorm:"index" json:"referrer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Transactions []Transaction `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
}

type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionReferral   TransactionType = "referral"
	TransactionGeneration TransactionType = "generation"
	TransactionRefund     TransactionType = "refund"
	TransactionManual     TransactionType = "manual"
)

// Transaction is one immutable ledger row. Amount is a signed coin delta.
type Transaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       int64           `gorm:"index;not null" json:"user_id"`
	Amount       int64           `gorm:"not null" json:"amount"`
	Type         TransactionType `gorm:"type:varchar(32);not null;index" json:"type"`
	Description  string          `json:"description"`
	BalanceAfter int64           `json:"balance_after"`
	Metadata     datatypes.JSON  `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ProcessedOrder is the idempotency claim for a payment order id.
type ProcessedOrder struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"order_id"`
	TelegramID int64     `gorm:"index" json:"telegram_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type UserSession struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	SessionID string    `gorm:"type:varchar(64);not null" json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentEvent is the decoded webhook, never persisted as is.
type PaymentEvent struct {
	OrderID       string
	Amount        decimal.Decimal
	Status        string
	CustomerExtra string
	Signature     string
	Raw           map[string]any
}

const PaymentStatusSuccess = "success"

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Transaction{},
		&ProcessedOrder{},
		&UserSession{},
		&InstagramAccount{},
		&Post{},
		&PostMedia{},
		&PublishLog{},
	}
}
