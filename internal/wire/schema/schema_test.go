package schema

import (
	"testing"

	"github.com/danmuck/gridmesh/internal/testutil/testlog"
	"github.com/danmuck/gridmesh/internal/wire/tlv"
)

func TestValidateStudySubmitRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldSubmitID, "submit-1"),
		tlv.String(FieldStudyName, "mesh"),
		tlv.Bytes(FieldStudy, []byte(`{"name":"mesh"}`)),
	}
	if err := Validate(MsgStudySubmit, fields); err != nil {
		t.Fatalf("validate study.submit: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldJobID, "job-1"),
		tlv.String(FieldStatus, "running"),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(MsgStatusReport, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.String(FieldSubmitID, "submit-1")}
	err := Validate(MsgStudySubmit, fields)
	if err == nil {
		t.Fatalf("expected error")
	}
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldStudyName || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldJobID, "job-1"),
		tlv.Bytes(FieldResult, []byte(`{}`)),
		tlv.U64(FieldTotalCost, 120),
	}
	err := Validate(MsgResultReport, fields)
	if err == nil {
		t.Fatalf("expected error")
	}
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldTotalCost || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(99, nil)
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestNameLabels(t *testing.T) {
	testlog.Start(t)
	if Name(MsgStudySubmit) != "study.submit" || Name(MsgError) != "error" {
		t.Fatalf("unexpected labels: %s %s", Name(MsgStudySubmit), Name(MsgError))
	}
	if Name(99) != "unknown(99)" {
		t.Fatalf("unexpected unknown label: %s", Name(99))
	}
}
