package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"
)

// Response - ответ webhook, по которому работают стратегии извлечения идентификаторов.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	once   sync.Once
	object map[string]any
	text   string
	isText bool
}

func (r *Response) parse() {
	r.once.Do(func() {
		body := bytes.TrimSpace(r.Body)
		if len(body) == 0 {
			return
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			// Не JSON - считаем телом простую строку
			r.text, r.isText = string(body), true
			return
		}
		switch v := doc.(type) {
		case map[string]any:
			r.object = v
		case string:
			r.text, r.isText = strings.TrimSpace(v), v != ""
		}
	})
}

// Object возвращает тело как JSON-объект, если это объект.
func (r *Response) Object() (map[string]any, bool) {
	r.parse()
	return r.object, r.object != nil
}

// Text возвращает тело, если это простая строка (JSON-строка или не-JSON текст).
func (r *Response) Text() (string, bool) {
	r.parse()
	return r.text, r.isText
}

// Extractor - одна стратегия получения идентификатора из ответа.
type Extractor interface {
	TryExtract(r *Response) (string, bool)
}

// Extract применяет стратегии по порядку, первое совпадение выигрывает.
// Пустой результат - не ошибка.
func Extract(r *Response, chain []Extractor) string {
	for _, e := range chain {
		if id, ok := e.TryExtract(r); ok {
			return id
		}
	}
	return ""
}

// FieldExtractor ищет идентификатор в полях верхнего уровня.
type FieldExtractor struct {
	Fields []string
}

func (e FieldExtractor) TryExtract(r *Response) (string, bool) {
	obj, ok := r.Object()
	if !ok {
		return "", false
	}
	for _, f := range e.Fields {
		if id, ok := scalar(obj[f]); ok {
			return id, true
		}
	}
	return "", false
}

// EnvelopeExtractor ищет идентификатор внутри известных конвертов, например message.id.
type EnvelopeExtractor struct {
	Paths [][]string
}

func (e EnvelopeExtractor) TryExtract(r *Response) (string, bool) {
	obj, ok := r.Object()
	if !ok {
		return "", false
	}
	for _, path := range e.Paths {
		if id, ok := scalar(lookup(obj, path)); ok {
			return id, true
		}
	}
	return "", false
}

// HeaderExtractor берет идентификатор из заголовков ответа.
type HeaderExtractor struct {
	Headers []string
}

func (e HeaderExtractor) TryExtract(r *Response) (string, bool) {
	for _, h := range e.Headers {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v, true
		}
	}
	return "", false
}

// PathSegmentExtractor разбирает тело-строку вида ".../messages/<id>".
type PathSegmentExtractor struct {
	Pattern *regexp.Regexp
}

func (e PathSegmentExtractor) TryExtract(r *Response) (string, bool) {
	text, ok := r.Text()
	if !ok {
		return "", false
	}
	m := e.Pattern.FindStringSubmatch(strings.TrimSpace(text))
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

var messagePathPattern = regexp.MustCompile(`(?i)/messages?/([^/?#\s"]+)/?$`)

// DefaultMessageExtractors - порядок: поле верхнего уровня, конверт, заголовок, строка-путь.
func DefaultMessageExtractors() []Extractor {
	return []Extractor{
		FieldExtractor{Fields: []string{"id", "messageId", "message_id", "activityId", "activity_id"}},
		EnvelopeExtractor{Paths: [][]string{
			{"message", "id"},
			{"data", "id"},
			{"data", "messageId"},
			{"body", "id"},
			{"result", "id"},
			{"activity", "id"},
		}},
		HeaderExtractor{Headers: []string{"X-Message-Id", "Message-Id", "X-Activity-Id"}},
		PathSegmentExtractor{Pattern: messagePathPattern},
	}
}

func DefaultConversationExtractors() []Extractor {
	return []Extractor{
		FieldExtractor{Fields: []string{"conversationId", "conversation_id"}},
		EnvelopeExtractor{Paths: [][]string{
			{"conversation", "id"},
			{"channelData", "conversationId"},
			{"data", "conversationId"},
		}},
		HeaderExtractor{Headers: []string{"X-Conversation-Id"}},
	}
}

func lookup(obj map[string]any, path []string) any {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case json.Number:
		return t.String(), true
	}
	return "", false
}
