package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// StudentChangedMessage tells consumers that a student's record or
// transactions changed. Consumers re-read the store; the message carries no
// state of its own.
type StudentChangedMessage struct {
	StudentID string    `json:"student_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewStudentChangedMessage(studentID, reason string) *StudentChangedMessage {
	return &StudentChangedMessage{
		StudentID: studentID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *StudentChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StudentChangedMessageFromJSON decodes a message, rejecting ones without a
// student id.
func StudentChangedMessageFromJSON(data []byte) (*StudentChangedMessage, error) {
	var msg StudentChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.StudentID == "" {
		return nil, errors.New("message has no student_id")
	}
	return &msg, nil
}
