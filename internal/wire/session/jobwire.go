package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/gridmesh/internal/wire/frame"
	"github.com/danmuck/gridmesh/internal/wire/schema"
	"github.com/danmuck/gridmesh/internal/wire/tlv"
)

// Error frame codes.
const (
	CodeBadRequest   uint32 = 1
	CodeUnauthorized uint32 = 2
	CodeUnknownJob   uint32 = 3
	CodeJobNotDone   uint32 = 4
	CodeJobFailed    uint32 = 5
	CodeInternal     uint32 = 6
)

var ErrUnexpectedMessage = errors.New("session: unexpected message type")

// SubmitRequest carries one study to the daemon. Study is the study JSON.
type SubmitRequest struct {
	SubmitID string
	Name     string
	Study    []byte
}

func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.SubmitID) == "" {
		return fmt.Errorf("submit missing submit_id")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("submit missing name")
	}
	if len(r.Study) == 0 {
		return fmt.Errorf("submit missing study payload")
	}
	return nil
}

// SubmitAck reports the job id minted for a submission.
type SubmitAck struct {
	SubmitID string
	JobID    string
	Status   string
}

func (a SubmitAck) Validate() error {
	if strings.TrimSpace(a.SubmitID) == "" {
		return fmt.Errorf("submit.ack missing submit_id")
	}
	if strings.TrimSpace(a.JobID) == "" {
		return fmt.Errorf("submit.ack missing job_id")
	}
	if strings.TrimSpace(a.Status) == "" {
		return fmt.Errorf("submit.ack missing status")
	}
	return nil
}

// StatusRequest asks for one job's state.
type StatusRequest struct {
	JobID string
}

func (r StatusRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("job.status missing job_id")
	}
	return nil
}

// StatusReport answers a status request. Detail carries the failure text for
// failed jobs.
type StatusReport struct {
	JobID       string
	Status      string
	Detail      string
	SubmittedMS uint64
	FinishedMS  uint64
}

func (r StatusReport) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("status.report missing job_id")
	}
	if strings.TrimSpace(r.Status) == "" {
		return fmt.Errorf("status.report missing status")
	}
	return nil
}

// ResultRequest asks for one finished job's result.
type ResultRequest struct {
	JobID string
}

func (r ResultRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("job.result missing job_id")
	}
	return nil
}

// ResultReport carries a settled result. Result is the result JSON;
// TotalCost mirrors its headline number for callers that skip parsing.
type ResultReport struct {
	JobID     string
	Result    []byte
	TotalCost int64
	ElapsedMS uint64
}

func (r ResultReport) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("result.report missing job_id")
	}
	if len(r.Result) == 0 {
		return fmt.Errorf("result.report missing result payload")
	}
	return nil
}

// WireError is the error frame payload. It doubles as a Go error so callers
// can surface daemon-side failures directly.
type WireError struct {
	Code    uint32
	Message string
}

func (e WireError) Error() string {
	return fmt.Sprintf("solver error %d: %s", e.Code, e.Message)
}

func (e WireError) Validate() error {
	if e.Code == 0 {
		return fmt.Errorf("error frame missing code")
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("error frame missing message")
	}
	return nil
}

func EncodeSubmitFrame(messageID uint64, req SubmitRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldSubmitID, req.SubmitID),
		tlv.String(schema.FieldStudyName, req.Name),
		tlv.Bytes(schema.FieldStudy, req.Study),
	}
	return encodeFrame(messageID, schema.MsgStudySubmit, 0, fields)
}

func DecodeSubmitFrame(f frame.Frame) (SubmitRequest, error) {
	fields, err := decodeFields(f, schema.MsgStudySubmit)
	if err != nil {
		return SubmitRequest{}, err
	}
	req := SubmitRequest{
		SubmitID: requiredString(fields, schema.FieldSubmitID),
		Name:     requiredString(fields, schema.FieldStudyName),
	}
	study, _ := tlv.Get(fields, schema.FieldStudy)
	req.Study, err = study.AsBytes()
	if err != nil {
		return SubmitRequest{}, err
	}
	return req, nil
}

func EncodeSubmitAckFrame(messageID uint64, ack SubmitAck) ([]byte, error) {
	if err := ack.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldSubmitID, ack.SubmitID),
		tlv.String(schema.FieldJobID, ack.JobID),
		tlv.String(schema.FieldStatus, ack.Status),
	}
	return encodeFrame(messageID, schema.MsgSubmitAck, frame.FlagIsResponse, fields)
}

func DecodeSubmitAckFrame(f frame.Frame) (SubmitAck, error) {
	fields, err := decodeFields(f, schema.MsgSubmitAck)
	if err != nil {
		return SubmitAck{}, err
	}
	return SubmitAck{
		SubmitID: requiredString(fields, schema.FieldSubmitID),
		JobID:    requiredString(fields, schema.FieldJobID),
		Status:   requiredString(fields, schema.FieldStatus),
	}, nil
}

func EncodeStatusRequestFrame(messageID uint64, req StatusRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{tlv.String(schema.FieldJobID, req.JobID)}
	return encodeFrame(messageID, schema.MsgJobStatus, 0, fields)
}

func DecodeStatusRequestFrame(f frame.Frame) (StatusRequest, error) {
	fields, err := decodeFields(f, schema.MsgJobStatus)
	if err != nil {
		return StatusRequest{}, err
	}
	return StatusRequest{JobID: requiredString(fields, schema.FieldJobID)}, nil
}

func EncodeStatusReportFrame(messageID uint64, report StatusReport) ([]byte, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldJobID, report.JobID),
		tlv.String(schema.FieldStatus, report.Status),
	}
	if strings.TrimSpace(report.Detail) != "" {
		fields = append(fields, tlv.String(schema.FieldDetail, report.Detail))
	}
	if report.SubmittedMS != 0 {
		fields = append(fields, tlv.U64(schema.FieldSubmittedMS, report.SubmittedMS))
	}
	if report.FinishedMS != 0 {
		fields = append(fields, tlv.U64(schema.FieldFinishedMS, report.FinishedMS))
	}
	return encodeFrame(messageID, schema.MsgStatusReport, frame.FlagIsResponse, fields)
}

func DecodeStatusReportFrame(f frame.Frame) (StatusReport, error) {
	fields, err := decodeFields(f, schema.MsgStatusReport)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{
		JobID:  requiredString(fields, schema.FieldJobID),
		Status: requiredString(fields, schema.FieldStatus),
		Detail: optionalString(fields, schema.FieldDetail),
	}
	if report.SubmittedMS, err = optionalU64(fields, schema.FieldSubmittedMS); err != nil {
		return StatusReport{}, err
	}
	if report.FinishedMS, err = optionalU64(fields, schema.FieldFinishedMS); err != nil {
		return StatusReport{}, err
	}
	return report, nil
}

func EncodeResultRequestFrame(messageID uint64, req ResultRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{tlv.String(schema.FieldJobID, req.JobID)}
	return encodeFrame(messageID, schema.MsgJobResult, 0, fields)
}

func DecodeResultRequestFrame(f frame.Frame) (ResultRequest, error) {
	fields, err := decodeFields(f, schema.MsgJobResult)
	if err != nil {
		return ResultRequest{}, err
	}
	return ResultRequest{JobID: requiredString(fields, schema.FieldJobID)}, nil
}

func EncodeResultReportFrame(messageID uint64, report ResultReport) ([]byte, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldJobID, report.JobID),
		tlv.Bytes(schema.FieldResult, report.Result),
		tlv.I64(schema.FieldTotalCost, report.TotalCost),
	}
	if report.ElapsedMS != 0 {
		fields = append(fields, tlv.U64(schema.FieldElapsedMS, report.ElapsedMS))
	}
	return encodeFrame(messageID, schema.MsgResultReport, frame.FlagIsResponse, fields)
}

func DecodeResultReportFrame(f frame.Frame) (ResultReport, error) {
	fields, err := decodeFields(f, schema.MsgResultReport)
	if err != nil {
		return ResultReport{}, err
	}
	report := ResultReport{JobID: requiredString(fields, schema.FieldJobID)}
	result, _ := tlv.Get(fields, schema.FieldResult)
	if report.Result, err = result.AsBytes(); err != nil {
		return ResultReport{}, err
	}
	cost, _ := tlv.Get(fields, schema.FieldTotalCost)
	if report.TotalCost, err = cost.AsI64(); err != nil {
		return ResultReport{}, err
	}
	if report.ElapsedMS, err = optionalU64(fields, schema.FieldElapsedMS); err != nil {
		return ResultReport{}, err
	}
	return report, nil
}

func EncodeErrorFrame(messageID uint64, wireErr WireError) ([]byte, error) {
	if err := wireErr.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.U32(schema.FieldErrorCode, wireErr.Code),
		tlv.String(schema.FieldErrorMessage, wireErr.Message),
	}
	return encodeFrame(messageID, schema.MsgError, frame.FlagIsResponse|frame.FlagIsError, fields)
}

func DecodeErrorFrame(f frame.Frame) (WireError, error) {
	fields, err := decodeFields(f, schema.MsgError)
	if err != nil {
		return WireError{}, err
	}
	code, _ := tlv.Get(fields, schema.FieldErrorCode)
	wireErr := WireError{Message: requiredString(fields, schema.FieldErrorMessage)}
	if wireErr.Code, err = code.AsU32(); err != nil {
		return WireError{}, err
	}
	return wireErr, nil
}

// ReadFrame reads one framed message from the stream.
func ReadFrame(r io.Reader, limits frame.Limits) (frame.Frame, error) {
	return frame.ReadFrame(r, limits)
}

func encodeFrame(messageID uint64, messageType, flags uint32, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFields(f frame.Frame, messageType uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("%w: got %s want %s",
			ErrUnexpectedMessage, schema.Name(f.Header.MessageType), schema.Name(messageType))
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func requiredString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.Get(fields, id)
	return string(f.Value)
}

func optionalString(fields []tlv.Field, id uint16) string {
	f, ok := tlv.Get(fields, id)
	if !ok {
		return ""
	}
	return string(f.Value)
}

func optionalU64(fields []tlv.Field, id uint16) (uint64, error) {
	f, ok := tlv.Get(fields, id)
	if !ok {
		return 0, nil
	}
	return f.AsU64()
}
