package schema

import (
	"fmt"

	"github.com/danmuck/gridmesh/internal/wire/tlv"
)

// Message type IDs.
const (
	MsgStudySubmit  uint32 = 1
	MsgSubmitAck    uint32 = 2
	MsgJobStatus    uint32 = 3
	MsgStatusReport uint32 = 4
	MsgJobResult    uint32 = 5
	MsgResultReport uint32 = 6
	MsgError        uint32 = 7
)

// Field IDs, grouped per concern.
const (
	FieldSubmitID uint16 = 1
	FieldJobID    uint16 = 2

	FieldStudyName uint16 = 100
	FieldStudy     uint16 = 101

	FieldStatus      uint16 = 200
	FieldDetail      uint16 = 201
	FieldSubmittedMS uint16 = 202
	FieldFinishedMS  uint16 = 203

	FieldResult    uint16 = 300
	FieldTotalCost uint16 = 301
	FieldElapsedMS uint16 = 302

	FieldErrorCode    uint16 = 400
	FieldErrorMessage uint16 = 401
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgStudySubmit: {
		{FieldSubmitID, tlv.TypeString},
		{FieldStudyName, tlv.TypeString},
		{FieldStudy, tlv.TypeBytes},
	},
	MsgSubmitAck: {
		{FieldSubmitID, tlv.TypeString},
		{FieldJobID, tlv.TypeString},
		{FieldStatus, tlv.TypeString},
	},
	MsgJobStatus: {
		{FieldJobID, tlv.TypeString},
	},
	MsgStatusReport: {
		{FieldJobID, tlv.TypeString},
		{FieldStatus, tlv.TypeString},
	},
	MsgJobResult: {
		{FieldJobID, tlv.TypeString},
	},
	MsgResultReport: {
		{FieldJobID, tlv.TypeString},
		{FieldResult, tlv.TypeBytes},
		{FieldTotalCost, tlv.TypeI64},
	},
	MsgError: {
		{FieldErrorCode, tlv.TypeU32},
		{FieldErrorMessage, tlv.TypeString},
	},
}

var names = map[uint32]string{
	MsgStudySubmit:  "study.submit",
	MsgSubmitAck:    "submit.ack",
	MsgJobStatus:    "job.status",
	MsgStatusReport: "status.report",
	MsgJobResult:    "job.result",
	MsgResultReport: "result.report",
	MsgError:        "error",
}

// Name returns the dotted label for a message type.
func Name(messageType uint32) string {
	if n, ok := names[messageType]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", messageType)
}

// Validate enforces required fields and their types for a message type.
// Unknown fields are ignored so revisions can add optional fields.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.Get(fields, req.ID)
		if !found {
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
