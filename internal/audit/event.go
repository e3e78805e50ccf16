package audit

import "time"

// Виды событий жизненного цикла заявки
const (
	KindSubmitted     = "submitted"
	KindForwarded     = "forwarded"
	KindForwardFailed = "forward_failed"
	KindDecided       = "decided"
)

type LifecycleEvent struct {
	ID        string    `json:"id"`         // UUID события
	RequestID string    `json:"request_id"` // Заявка
	Kind      string    `json:"kind"`       // submitted, forwarded, forward_failed, decided
	Status    string    `json:"status"`     // Статус заявки после события
	Actor     string    `json:"actor"`      // Кто принял решение (только decided)
	Source    string    `json:"source"`     // api или callback
	Detail    string    `json:"detail"`     // message id или текст ошибки
	Timestamp time.Time `json:"timestamp"`
}
