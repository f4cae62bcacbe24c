package models

import "time"

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
)

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentPending   PaymentStatus = "pending"
	PaymentCancelled PaymentStatus = "cancelled"
)

type Payment struct {
	ID        int64         `db:"id" json:"id"`
	StudentID int64         `db:"student_id" json:"student_id"`
	ClassID   int64         `db:"class_id" json:"class_id"`
	Amount    int64         `db:"amount" json:"amount"`
	PaidAt    time.Time     `db:"paid_at" json:"paid_at"`
	Method    PaymentMethod `db:"method" json:"method"`
	Status    PaymentStatus `db:"status" json:"status"`
	ReceiptNo string        `db:"receipt_no" json:"receipt_no"`
	Note      string        `db:"note" json:"note,omitempty"`
	// PeriodNo — номер оплаченного периода (1..Periods), если платёж к нему привязан.
	PeriodNo *int `db:"period_no" json:"period_no,omitempty"`
}
