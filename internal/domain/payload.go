package domain

import "time"

// WebhookPayload - тело запроса во внешний workflow.
// Внутренние поля (actorName, lastError) сюда не попадают никогда.
type WebhookPayload struct {
	ID            string `json:"id"`
	RequestorName string `json:"requestorName"`
	SystemName    string `json:"systemName"`
	RequestType   string `json:"requestType"`
	Reason        string `json:"reason"`
	RequestedAt   string `json:"requestedAt"`
	SourceSystem  string `json:"sourceSystem"`
}

// BuildPayload - чистая функция: запись -> payload. Запись не меняет.
func BuildPayload(rec *ApprovalRequest) WebhookPayload {
	ts := rec.RequestedAt
	if ts.IsZero() {
		ts = rec.CreatedAt
	}
	source := rec.SourceSystem
	if source == "" {
		source = DefaultSourceSystem
	}
	return WebhookPayload{
		ID:            rec.ID,
		RequestorName: rec.RequestorName,
		SystemName:    rec.SystemName,
		RequestType:   rec.RequestType,
		Reason:        rec.Reason,
		RequestedAt:   ts.UTC().Format(time.RFC3339),
		SourceSystem:  source,
	}
}
