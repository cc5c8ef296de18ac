package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/jobstore"
	"github.com/danmuck/gridmesh/internal/simulation"
	"github.com/danmuck/gridmesh/internal/wire/frame"
	"github.com/danmuck/gridmesh/internal/wire/schema"
	"github.com/danmuck/gridmesh/internal/wire/session"
)

// serveSolver accepts framed solver sessions on an existing listener.
func (s *Service) serveSolver(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleSolverConn(ctx, conn)
	}
}

// handleSolverConn runs the hello handshake, then answers one frame at a time.
func (s *Service) handleSolverConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()
	active := s.solverClients.Add(1)
	s.logger.Info().Str("remote", remote).Int64("active_clients", active).Msg("solver.client connected")
	defer func() {
		remaining := s.solverClients.Add(-1)
		s.logger.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("solver.client disconnected")
	}()

	reader := bufio.NewReader(conn)
	if !s.handshake(conn, reader, remote) {
		return
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.session.ReadTimeout))
		fr, err := session.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			if !errors.Is(err, frame.ErrShortHeader) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Str("remote", remote).Err(err).Msg("solver.read frame failed")
			}
			return
		}
		reply := s.dispatchFrame(ctx, fr)
		if reply == nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.session.WriteTimeout))
		if _, err := conn.Write(reply); err != nil {
			s.logger.Warn().Str("remote", remote).Err(err).Msg("solver.write reply failed")
			return
		}
	}
}

func (s *Service) handshake(conn net.Conn, reader *bufio.Reader, remote string) bool {
	_ = conn.SetDeadline(time.Now().Add(s.session.HandshakeTimeout))
	hello, err := session.ReadHello(reader)
	if err != nil {
		s.logger.Warn().Str("remote", remote).Err(err).Msg("solver.handshake read failed")
		return false
	}

	now := uint64(time.Now().UnixMilli())
	if hello.Version != frame.ProtocolVersion {
		s.logger.Warn().Str("remote", remote).Uint16("version", hello.Version).Msg("solver.handshake version rejected")
		_ = session.WriteHelloAck(conn, session.HelloAck{
			Status:      session.AckStatusRejected,
			Code:        session.CodeBadRequest,
			Message:     fmt.Sprintf("unsupported protocol version %d", hello.Version),
			Server:      s.cfg.Name,
			TimestampMS: now,
		})
		return false
	}
	if err := s.tokens.Validate(hello.Token); err != nil {
		s.logger.Warn().Str("remote", remote).Str("client", hello.Client).Msg("solver.handshake token rejected")
		_ = session.WriteHelloAck(conn, session.HelloAck{
			Status:      session.AckStatusRejected,
			Code:        session.CodeUnauthorized,
			Message:     "invalid token",
			Server:      s.cfg.Name,
			TimestampMS: now,
		})
		return false
	}

	ack := session.HelloAck{Status: session.AckStatusAccepted, Server: s.cfg.Name, TimestampMS: now}
	if err := session.WriteHelloAck(conn, ack); err != nil {
		s.logger.Warn().Str("remote", remote).Err(err).Msg("solver.handshake write failed")
		return false
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		s.logger.Warn().Str("remote", remote).Err(err).Msg("solver.handshake clear deadline failed")
	}
	s.logger.Info().Str("remote", remote).Str("client", hello.Client).Msg("solver.handshake accepted")
	return true
}

// dispatchFrame answers one request frame. A nil reply closes the session.
func (s *Service) dispatchFrame(ctx context.Context, fr frame.Frame) []byte {
	switch fr.Header.MessageType {
	case schema.MsgStudySubmit:
		return s.handleSubmit(ctx, fr)
	case schema.MsgJobStatus:
		return s.handleStatus(ctx, fr)
	case schema.MsgJobResult:
		return s.handleResult(ctx, fr)
	default:
		return s.errorReply(fr, session.CodeBadRequest,
			fmt.Sprintf("unexpected message %s", schema.Name(fr.Header.MessageType)))
	}
}

func (s *Service) handleSubmit(ctx context.Context, fr frame.Frame) []byte {
	req, err := session.DecodeSubmitFrame(fr)
	if err != nil {
		return s.errorReply(fr, session.CodeBadRequest, err.Error())
	}
	if _, err := config.ParseStudyJSON(req.Study); err != nil {
		return s.errorReply(fr, session.CodeBadRequest, err.Error())
	}

	id := uuid.New()
	job, err := s.store.Create(ctx, id, req.Name, req.Study)
	if err != nil {
		s.logger.Error().Err(err).Msg("solver.create job failed")
		return s.errorReply(fr, session.CodeInternal, "could not persist job")
	}
	s.wakeWorkers()
	s.logger.Info().Str("job_id", id.String()).Str("name", req.Name).Msg("solver.job accepted")

	payload, err := session.EncodeSubmitAckFrame(fr.Header.MessageID, session.SubmitAck{
		SubmitID: req.SubmitID,
		JobID:    id.String(),
		Status:   job.Status,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("solver.encode submit.ack failed")
		return nil
	}
	return payload
}

func (s *Service) handleStatus(ctx context.Context, fr frame.Frame) []byte {
	req, err := session.DecodeStatusRequestFrame(fr)
	if err != nil {
		return s.errorReply(fr, session.CodeBadRequest, err.Error())
	}
	job, reply := s.lookupJob(ctx, fr, req.JobID)
	if reply != nil {
		return reply
	}

	payload, err := session.EncodeStatusReportFrame(fr.Header.MessageID, session.StatusReport{
		JobID:       job.ID.String(),
		Status:      job.Status,
		Detail:      job.Error,
		SubmittedMS: uint64(job.SubmittedMS),
		FinishedMS:  uint64(job.FinishedMS),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("solver.encode status.report failed")
		return nil
	}
	return payload
}

func (s *Service) handleResult(ctx context.Context, fr frame.Frame) []byte {
	req, err := session.DecodeResultRequestFrame(fr)
	if err != nil {
		return s.errorReply(fr, session.CodeBadRequest, err.Error())
	}
	job, reply := s.lookupJob(ctx, fr, req.JobID)
	if reply != nil {
		return reply
	}

	switch job.Status {
	case jobstore.StatusDone:
		var result simulation.Result
		if err := json.Unmarshal(job.Result, &result); err != nil {
			s.logger.Error().Str("job_id", job.ID.String()).Err(err).Msg("solver.stored result unreadable")
			return s.errorReply(fr, session.CodeInternal, "stored result unreadable")
		}
		payload, err := session.EncodeResultReportFrame(fr.Header.MessageID, session.ResultReport{
			JobID:     job.ID.String(),
			Result:    job.Result,
			TotalCost: result.TotalCost(),
			ElapsedMS: uint64(result.ElapsedMillis),
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("solver.encode result.report failed")
			return nil
		}
		return payload
	case jobstore.StatusFailed:
		cause := job.Error
		if strings.TrimSpace(cause) == "" {
			cause = "job failed"
		}
		return s.errorReply(fr, session.CodeJobFailed, cause)
	default:
		return s.errorReply(fr, session.CodeJobNotDone,
			fmt.Sprintf("job %s is %s", job.ID, job.Status))
	}
}

// lookupJob resolves a wire job id; a non-nil reply is the error frame to send.
func (s *Service) lookupJob(ctx context.Context, fr frame.Frame, rawID string) (jobstore.Job, []byte) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return jobstore.Job{}, s.errorReply(fr, session.CodeBadRequest, fmt.Sprintf("invalid job id %q", rawID))
	}
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, jobstore.ErrUnknownJob) {
		return jobstore.Job{}, s.errorReply(fr, session.CodeUnknownJob, fmt.Sprintf("no such job %s", id))
	}
	if err != nil {
		s.logger.Error().Str("job_id", id.String()).Err(err).Msg("solver.job lookup failed")
		return jobstore.Job{}, s.errorReply(fr, session.CodeInternal, "job lookup failed")
	}
	return job, nil
}

func (s *Service) errorReply(fr frame.Frame, code uint32, message string) []byte {
	payload, err := session.EncodeErrorFrame(fr.Header.MessageID, session.WireError{Code: code, Message: message})
	if err != nil {
		s.logger.Error().Err(err).Msg("solver.encode error frame failed")
		return nil
	}
	return payload
}
