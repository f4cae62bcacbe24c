package tuition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/models"
)

// PaymentProvider — хранилище платежей. UpdatePayment возвращает apperr.ErrNotFound для
// неизвестного id. studentID == nil — все платежи.
type PaymentProvider interface {
	GetPayments(ctx context.Context, studentID *int64) ([]models.Payment, error)
	CreatePayment(ctx context.Context, p models.Payment) (models.Payment, error)
	UpdatePayment(ctx context.Context, id int64, p models.Payment) (models.Payment, error)
}

// PaymentInput — данные платежа от оператора.
type PaymentInput struct {
	StudentID int64                `validate:"gt=0"`
	ClassID   int64                `validate:"gt=0"`
	Amount    int64                `validate:"gt=0"`
	Method    models.PaymentMethod `validate:"required,oneof=cash transfer"`
	Status    models.PaymentStatus `validate:"omitempty,oneof=completed pending cancelled"`
	PaidAt    time.Time
	ReceiptNo string `validate:"omitempty,max=64"`
	Note      string `validate:"max=500"`
	PeriodNo  *int   `validate:"omitempty,gte=1,lte=24"`
}

type Payments struct {
	store    PaymentProvider
	validate *validator.Validate
	now      func() time.Time
	log      *zap.Logger
}

func NewPayments(store PaymentProvider, log *zap.Logger) *Payments {
	if log == nil {
		log = zap.NewNop()
	}
	return &Payments{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
		log:      log,
	}
}

// Create проверяет ввод до обращения к хранилищу, проставляет статус, дату и номер квитанции.
func (s *Payments) Create(ctx context.Context, in PaymentInput) (models.Payment, error) {
	if err := s.check(in); err != nil {
		return models.Payment{}, err
	}
	p := s.toPayment(in)

	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	created, err := s.store.CreatePayment(dbCtx, p)
	if err != nil {
		return models.Payment{}, apperr.Provider("payment.create", "receipt="+p.ReceiptNo, err)
	}
	s.log.Info("payment created",
		zap.Int64("payment_id", created.ID),
		zap.Int64("student_id", created.StudentID),
		zap.Int64("amount", created.Amount),
		zap.String("receipt", created.ReceiptNo),
	)
	return created, nil
}

// Update — явная корректировка платежа (удаления нет).
func (s *Payments) Update(ctx context.Context, id int64, in PaymentInput) (models.Payment, error) {
	if id <= 0 {
		return models.Payment{}, apperr.Invalid("id", "must be positive")
	}
	if err := s.check(in); err != nil {
		return models.Payment{}, err
	}
	p := s.toPayment(in)
	p.ID = id

	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	updated, err := s.store.UpdatePayment(dbCtx, id, p)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Payment{}, fmt.Errorf("payment %d: %w", id, apperr.ErrNotFound)
		}
		return models.Payment{}, apperr.Provider("payment.update", fmt.Sprintf("id=%d", id), err)
	}
	s.log.Info("payment corrected", zap.Int64("payment_id", id), zap.Int64("amount", updated.Amount))
	return updated, nil
}

func (s *Payments) List(ctx context.Context, studentID *int64) ([]models.Payment, error) {
	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	out, err := s.store.GetPayments(dbCtx, studentID)
	if err != nil {
		key := "all"
		if studentID != nil {
			key = fmt.Sprintf("student=%d", *studentID)
		}
		return nil, apperr.Provider("payment.list", key, err)
	}
	return out, nil
}

func (s *Payments) check(in PaymentInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Invalid(strings.ToLower(fe.Field()), "failed "+fe.Tag())
	}
	return apperr.Invalid("", err.Error())
}

func (s *Payments) toPayment(in PaymentInput) models.Payment {
	p := models.Payment{
		StudentID: in.StudentID,
		ClassID:   in.ClassID,
		Amount:    in.Amount,
		PaidAt:    in.PaidAt,
		Method:    in.Method,
		Status:    in.Status,
		ReceiptNo: strings.TrimSpace(in.ReceiptNo),
		Note:      strings.TrimSpace(in.Note),
		PeriodNo:  in.PeriodNo,
	}
	if p.Status == "" {
		p.Status = models.PaymentCompleted
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = s.now()
	}
	if p.ReceiptNo == "" {
		p.ReceiptNo = NewReceiptNo()
	}
	return p
}

// NewReceiptNo — уникальный номер квитанции: PT-XXXXXXXXXXXX.
func NewReceiptNo() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PT-" + strings.ToUpper(raw[:12])
}
