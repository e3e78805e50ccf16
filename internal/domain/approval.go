package domain

import (
	"strings"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusForwarded ApprovalStatus = "forwarded" // Опциональный промежуточный статус (webhook.mark_forwarded)
	StatusApproved  ApprovalStatus = "approved"
	StatusDeclined  ApprovalStatus = "declined"
)

const (
	// DefaultSourceSystem проставляется, если отправитель не указал источник
	DefaultSourceSystem = "api"
	// DefaultActor используется, когда решение пришло без имени (автоматический callback)
	DefaultActor = "system"
)

// DecisionSource - канал, по которому пришло решение.
type DecisionSource string

const (
	SourceAPI      DecisionSource = "api"
	SourceCallback DecisionSource = "callback"
)

// DecidableStatuses - статусы, из которых разрешен переход в терминальный.
// Используется и доменом, и SQL-условием атомарного обновления.
var DecidableStatuses = []ApprovalStatus{StatusPending, StatusForwarded}

// ApprovalRequest - единственная персистентная сущность ретранслятора.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	RequestorName string         `json:"requestorName"`
	SystemName    string         `json:"systemName"`
	RequestType   string         `json:"requestType"`
	Reason        string         `json:"reason"`
	RequestedAt   time.Time      `json:"requestedAt"`
	SourceSystem  string         `json:"sourceSystem"`
	Status        ApprovalStatus `json:"status"`

	// Заполняются после успешного вызова webhook
	ExternalMessageID      *string `json:"externalMessageId"`
	ExternalConversationID *string `json:"externalConversationId,omitempty"`

	ActorName *string `json:"actorName,omitempty"`
	LastError *string `json:"lastError,omitempty"` // Только для диагностики, на статус не влияет

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal - решение уже принято
func (s ApprovalStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

// IsDecidable проверяет, можно ли из текущего статуса принять решение.
func (s ApprovalStatus) IsDecidable() bool {
	for _, st := range DecidableStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// ParseStatus разбирает фильтр статуса для выборок (List). Пустая строка - без фильтра.
func ParseStatus(raw string) (ApprovalStatus, error) {
	s := ApprovalStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case "", StatusPending, StatusForwarded, StatusApproved, StatusDeclined:
		return s, nil
	}
	return "", &InvalidStatusError{Token: raw}
}

// ParseDecision нормализует токен решения: approve/approved -> approved, decline/declined -> declined.
func ParseDecision(token string) (ApprovalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "approve", "approved":
		return StatusApproved, nil
	case "decline", "declined":
		return StatusDeclined, nil
	}
	return "", &InvalidStatusError{Token: token}
}

// CanTransitionTo проверяет правила конечного автомата.
// Переход pending -> forwarded делает только хранилище при сохранении результата пересылки.
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if !next.IsTerminal() {
		return &InvalidStatusError{Token: string(next)}
	}
	if !a.Status.IsDecidable() {
		return &AlreadyDecidedError{Status: a.Status}
	}
	return nil
}

// ResolveActor возвращает имя того, кто принял решение, или плейсхолдер.
func ResolveActor(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return DefaultActor
}

// Submission - входные данные для создания заявки.
type Submission struct {
	RequestorName string
	SystemName    string
	RequestType   string
	Reason        string
	RequestedAt   *time.Time
	SourceSystem  string
}

// Validate проверяет обязательные поля до любого обращения к хранилищу или сети.
func (s Submission) Validate() error {
	var missing []string
	if strings.TrimSpace(s.RequestorName) == "" {
		missing = append(missing, "requestorName")
	}
	if strings.TrimSpace(s.SystemName) == "" {
		missing = append(missing, "systemName")
	}
	if strings.TrimSpace(s.RequestType) == "" {
		missing = append(missing, "requestType")
	}
	if strings.TrimSpace(s.Reason) == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// NewApprovalRequest собирает запись в статусе pending. id и now передаются снаружи.
func NewApprovalRequest(id string, s Submission, now time.Time) *ApprovalRequest {
	requestedAt := now
	if s.RequestedAt != nil && !s.RequestedAt.IsZero() {
		requestedAt = *s.RequestedAt
	}
	source := strings.TrimSpace(s.SourceSystem)
	if source == "" {
		source = DefaultSourceSystem
	}
	return &ApprovalRequest{
		ID:            id,
		RequestorName: strings.TrimSpace(s.RequestorName),
		SystemName:    strings.TrimSpace(s.SystemName),
		RequestType:   strings.TrimSpace(s.RequestType),
		Reason:        strings.TrimSpace(s.Reason),
		RequestedAt:   requestedAt,
		SourceSystem:  source,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ForwardOutcome - результат пересылки, который оркестратор сохраняет в записи.
type ForwardOutcome struct {
	MessageID      string
	ConversationID string
	Err            string // пусто при успехе
	MarkForwarded  bool
}

// Summary - короткий ответ на Submit.
type Summary struct {
	ID                string         `json:"id"`
	Status            ApprovalStatus `json:"status"`
	ExternalMessageID *string        `json:"externalMessageId"`
	SourceSystem      string         `json:"sourceSystem"`
	CreatedAt         time.Time      `json:"createdAt"`
}

func (a *ApprovalRequest) Summary() Summary {
	return Summary{
		ID:                a.ID,
		Status:            a.Status,
		ExternalMessageID: a.ExternalMessageID,
		SourceSystem:      a.SourceSystem,
		CreatedAt:         a.CreatedAt,
	}
}
