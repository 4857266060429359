package signal

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/status-im/status-escrow/logutils"
)

// Envelope is a general signal sent upward from the escrow core to presentation adapters.
type Envelope struct {
	Type  string      `json:"type"`
	Event interface{} `json:"event"`
}

// NewEnvelope creates new envelope of given type and event payload.
func NewEnvelope(typ string, event interface{}) *Envelope {
	return &Envelope{
		Type:  typ,
		Event: event,
	}
}

// NodeNotificationHandler defines a handler able to process incoming events.
// Events are encoded as JSON strings.
type NodeNotificationHandler func(jsonEvent string)

var (
	mu                  sync.RWMutex
	notificationHandler NodeNotificationHandler
)

// send marshals the event and hands it to the handler, if any.
func send(typ string, event interface{}) {
	mu.RLock()
	handler := notificationHandler
	mu.RUnlock()

	if handler == nil {
		return
	}

	data, err := json.Marshal(NewEnvelope(typ, event))
	if err != nil {
		logutils.ZapLogger().Error("marshalling signal failed", zap.String("type", typ), zap.Error(err))
		return
	}
	handler(string(data))
}

// SetDefaultNodeNotificationHandler sets notification handler to invoke on send
func SetDefaultNodeNotificationHandler(fn NodeNotificationHandler) {
	mu.Lock()
	defer mu.Unlock()
	notificationHandler = fn
}

// ResetDefaultNodeNotificationHandler drops the notification handler
func ResetDefaultNodeNotificationHandler() {
	SetDefaultNodeNotificationHandler(nil)
}

// TriggerDefaultNodeNotificationHandler triggers default notification handler (helpful in tests)
func TriggerDefaultNodeNotificationHandler(jsonEvent string) {
	mu.RLock()
	handler := notificationHandler
	mu.RUnlock()
	if handler != nil {
		handler(jsonEvent)
	}
}
