package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/wire/frame"
	"github.com/danmuck/gridmesh/internal/wire/schema"
	"github.com/danmuck/gridmesh/internal/wire/session"
)

var (
	ErrAddressRequired    = errors.New("client: solver address required")
	ErrClientNameRequired = errors.New("client: client name required")
	ErrHandshakeRejected  = errors.New("client: handshake rejected")
	ErrSessionClosed      = errors.New("client: solver session closed")
)

type Config struct {
	Address            string
	ClientName         string
	Token              string
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
	}
}

type Client struct {
	cfg    Config
	logger zerolog.Logger
	rng    *rand.Rand
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(cfg.ClientName) == "" {
		return nil, ErrClientNameRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Client{
		cfg:    cfg,
		logger: log.With().Str("component", "client").Str("solver", cfg.Address).Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Connect dials the daemon, performs the hello handshake, and returns a live
// session. Dial failures retry with backoff; a rejected handshake does not.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	var attempt int
	for {
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn().Int("attempt", attempt).Err(err).Msg("client.connect dial failed")
			if !c.shouldRetry(attempt) {
				return nil, err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		sess, err := c.handshake(conn)
		if err == nil {
			return sess, nil
		}
		_ = conn.Close()
		if errors.Is(err, ErrHandshakeRejected) || !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", c.cfg.Address)
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextDelay(c.cfg.Session.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) handshake(conn net.Conn) (*Session, error) {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	hello := session.Hello{
		Client:  c.cfg.ClientName,
		Version: frame.ProtocolVersion,
		Token:   c.cfg.Token,
	}
	if err := session.WriteHello(conn, hello); err != nil {
		return nil, err
	}
	ack, err := session.ReadHelloAck(reader)
	if err != nil {
		return nil, err
	}
	if !ack.Accepted() {
		return nil, fmt.Errorf("%w: code=%d message=%q", ErrHandshakeRejected, ack.Code, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})
	s := &Session{
		conn:   conn,
		reader: reader,
		cfg:    c.cfg.Session,
		server: ack.Server,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.nextMessageID.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Session is one authenticated connection to a solver daemon. Methods are
// safe for concurrent use; requests serialize on the wire.
type Session struct {
	conn          net.Conn
	reader        *bufio.Reader
	cfg           session.Config
	server        string
	nextMessageID atomic.Uint64
	rng           *rand.Rand
	mu            sync.Mutex
}

// Server names the daemon that accepted the handshake.
func (s *Session) Server() string {
	return s.server
}

func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Submit sends one study and returns the job id minted for it. Study is the
// study JSON.
func (s *Session) Submit(ctx context.Context, name string, study []byte) (string, error) {
	req := session.SubmitRequest{
		SubmitID: uuid.NewString(),
		Name:     strings.TrimSpace(name),
		Study:    study,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	payload, err := session.EncodeSubmitFrame(s.nextMessageID.Add(1), req)
	if err != nil {
		return "", err
	}
	fr, err := s.roundTrip(ctx, payload)
	if err != nil {
		return "", err
	}
	if err := replyError(fr); err != nil {
		return "", err
	}
	ack, err := session.DecodeSubmitAckFrame(fr)
	if err != nil {
		return "", err
	}
	if ack.SubmitID != req.SubmitID {
		return "", fmt.Errorf("client: ack/submit mismatch submit_id=%q ack_submit_id=%q", req.SubmitID, ack.SubmitID)
	}
	return ack.JobID, nil
}

// Status asks the daemon for one job's state.
func (s *Session) Status(ctx context.Context, jobID string) (session.StatusReport, error) {
	req := session.StatusRequest{JobID: strings.TrimSpace(jobID)}
	if err := req.Validate(); err != nil {
		return session.StatusReport{}, err
	}
	payload, err := session.EncodeStatusRequestFrame(s.nextMessageID.Add(1), req)
	if err != nil {
		return session.StatusReport{}, err
	}
	fr, err := s.roundTrip(ctx, payload)
	if err != nil {
		return session.StatusReport{}, err
	}
	if err := replyError(fr); err != nil {
		return session.StatusReport{}, err
	}
	report, err := session.DecodeStatusReportFrame(fr)
	if err != nil {
		return session.StatusReport{}, err
	}
	if report.JobID != req.JobID {
		return session.StatusReport{}, fmt.Errorf("client: report/job mismatch job_id=%q report_job_id=%q", req.JobID, report.JobID)
	}
	return report, nil
}

// Result fetches a settled job's result. Jobs still in flight come back as a
// CodeJobNotDone wire error.
func (s *Session) Result(ctx context.Context, jobID string) (session.ResultReport, error) {
	req := session.ResultRequest{JobID: strings.TrimSpace(jobID)}
	if err := req.Validate(); err != nil {
		return session.ResultReport{}, err
	}
	payload, err := session.EncodeResultRequestFrame(s.nextMessageID.Add(1), req)
	if err != nil {
		return session.ResultReport{}, err
	}
	fr, err := s.roundTrip(ctx, payload)
	if err != nil {
		return session.ResultReport{}, err
	}
	if err := replyError(fr); err != nil {
		return session.ResultReport{}, err
	}
	report, err := session.DecodeResultReportFrame(fr)
	if err != nil {
		return session.ResultReport{}, err
	}
	if report.JobID != req.JobID {
		return session.ResultReport{}, fmt.Errorf("client: report/job mismatch job_id=%q report_job_id=%q", req.JobID, report.JobID)
	}
	return report, nil
}

// WaitResult polls Result with backoff until the job settles or ctx expires.
// Failed jobs surface as the CodeJobFailed wire error the daemon sends.
func (s *Session) WaitResult(ctx context.Context, jobID string) (session.ResultReport, error) {
	var attempt int
	for {
		attempt++
		report, err := s.Result(ctx, jobID)
		if err == nil {
			return report, nil
		}
		var wireErr session.WireError
		if !errors.As(err, &wireErr) || wireErr.Code != session.CodeJobNotDone {
			return session.ResultReport{}, err
		}
		delay := session.NextDelay(s.cfg.Backoff, attempt, s.rng)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return session.ResultReport{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Session) roundTrip(ctx context.Context, payload []byte) (frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return frame.Frame{}, ErrSessionClosed
	}
	if err := s.setWriteDeadline(ctx); err != nil {
		return frame.Frame{}, err
	}
	if _, err := s.conn.Write(payload); err != nil {
		return frame.Frame{}, err
	}
	if err := s.setReadDeadline(ctx); err != nil {
		return frame.Frame{}, err
	}
	return session.ReadFrame(s.reader, frame.DefaultLimits())
}

func (s *Session) setWriteDeadline(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return s.conn.SetWriteDeadline(deadline)
}

func (s *Session) setReadDeadline(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return s.conn.SetReadDeadline(deadline)
}

// replyError surfaces an error frame as the WireError it carries.
func replyError(fr frame.Frame) error {
	if fr.Header.MessageType != schema.MsgError {
		return nil
	}
	wireErr, err := session.DecodeErrorFrame(fr)
	if err != nil {
		return err
	}
	return wireErr
}
