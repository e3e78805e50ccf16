package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "relay"
)

const (
	// RedisKeyLockForward - префикс блокировки повторной пересылки: relay:lock:forward:{id}
	RedisKeyLockForward = RedisNamespace + ":lock:forward:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanApprovalDecisions - канал для трансляции принятых решений.
	RedisChanApprovalDecisions = RedisNamespace + ":approvals:decisions"
)

// ForwardLockKey ключ блокировки пересылки конкретной заявки
func ForwardLockKey(requestID string) string {
	return RedisKeyLockForward + requestID
}
