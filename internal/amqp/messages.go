package amqp

import (
	"encoding/json"
	"time"

	"subtrack/internal/core"
)

// ReminderMessage is the wire form of a due renewal reminder.
type ReminderMessage struct {
	Key            string        `json:"key"`
	SubscriptionID string        `json:"subscriptionId"`
	LeadTime       core.LeadTime `json:"leadTime"`
	FireAt         time.Time     `json:"fireAt"`
	Title          string        `json:"title"`
	Body           string        `json:"body"`
	PublishedAt    time.Time     `json:"publishedAt"`
}

func NewReminderMessage(n core.Notification) *ReminderMessage {
	return &ReminderMessage{
		Key:            n.Key,
		SubscriptionID: n.SubscriptionID,
		LeadTime:       n.LeadTime,
		FireAt:         n.FireAt,
		Title:          n.Title,
		Body:           n.Body,
		PublishedAt:    time.Now(),
	}
}

// Notification converts the message back into the domain type.
func (m *ReminderMessage) Notification() core.Notification {
	return core.Notification{
		Key:            m.Key,
		SubscriptionID: m.SubscriptionID,
		LeadTime:       m.LeadTime,
		FireAt:         m.FireAt,
		Title:          m.Title,
		Body:           m.Body,
	}
}

func (m *ReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReminderMessageFromJSON(data []byte) (*ReminderMessage, error) {
	var msg ReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
