package domain

import "time"

// NoteType классифицирует заметки заказа.
type NoteType string

const (
	NoteTypeGeneral      NoteType = "general"
	NoteTypeCancellation NoteType = "cancellation"
	NoteTypeShipping     NoteType = "shipping"
	NoteTypeDiscount     NoteType = "discount"
	NoteTypePayment      NoteType = "payment"
)

// OrderNote — структурированная заметка к заказу.
type OrderNote struct {
	Type      NoteType
	Text      string
	Author    string
	CreatedAt time.Time
}

// MetadataPaymentStatus — ключ метаданных записи журнала со сменой статуса оплаты,
// случившейся в том же переходе, что и смена статуса заказа.
const MetadataPaymentStatus = "payment_status"

// FormatStatusChange возвращает пару статусов в виде "old->new".
func FormatStatusChange(from, to string) string {
	return from + "->" + to
}

// StatusHistoryEntry — неизменяемая запись об изменении статуса заказа.
type StatusHistoryEntry struct {
	ID             string
	OrderID        string
	Field          StatusField
	OldStatus      string
	NewStatus      string
	ChangedBy      string
	ChangedAt      time.Time
	Note           string
	IsSystemChange bool
	// Metadata хранит контекст вызова (ip, user_agent), если он доступен.
	Metadata map[string]string
}

// Validate проверяет обязательные поля записи истории.
// OldStatus может быть пустым только у записи о создании заказа.
func (e *StatusHistoryEntry) Validate() []error {
	var errs []error

	if e.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if e.NewStatus == "" {
		errs = append(errs, ErrStatusRequired)
	}
	if e.ChangedBy == "" {
		errs = append(errs, ErrActorRequired)
	}

	return errs
}

// Actor описывает инициатора изменения.
type Actor struct {
	ID       string
	System   bool
	Metadata map[string]string
}

// SystemActor возвращает актора для автоматических изменений.
func SystemActor(name string) Actor {
	if name == "" {
		name = "system"
	}
	return Actor{ID: name, System: true}
}
