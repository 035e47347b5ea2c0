package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/sweeney/pulse-meter/internal/attr"
	"github.com/sweeney/pulse-meter/internal/logging"
	"github.com/sweeney/pulse-meter/internal/meter"
)

// writeTimeout bounds how long a slow client can hold a connection.
const writeTimeout = 5 * time.Second

// Reader reads attribute values by name. attr.Set satisfies it.
type Reader interface {
	Read(name string) (string, error)
}

// Server answers each connection with the current Record.
type Server struct {
	addr   string
	reader Reader
	scale  float64
	logger logging.Logger

	requests atomic.Uint64
	failures atomic.Uint64
	closed   atomic.Bool

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer creates a report server reading values through reader.
func NewServer(addr string, reader Reader, scale float64, logger logging.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if scale <= 0 {
		scale = meter.DefaultScale
	}
	return &Server{addr: addr, reader: reader, scale: scale, logger: logger}
}

// Sample reads the attributes and builds the current record.
func (s *Server) Sample() (Record, error) {
	iv, err := s.reader.Read(attr.LastInterval)
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", attr.LastInterval, err)
	}
	interval, err := attr.ParseInterval(iv)
	if err != nil {
		return Record{}, fmt.Errorf("parse %s: %w", attr.LastInterval, err)
	}

	cv, err := s.reader.Read(attr.Count)
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", attr.Count, err)
	}
	count, err := attr.ParseCount(cv)
	if err != nil {
		return Record{}, fmt.Errorf("parse %s: %w", attr.Count, err)
	}

	return NewRecord(interval, count, s.scale), nil
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.addr)
}

// ListenAndServe binds the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close is called. It returns nil
// after Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.failures.Inc()
			s.logger.Warnf("report: accept: %v", err)
			continue
		}
		s.requests.Inc()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	err := s.respond(conn)
	err = multierr.Append(err, conn.Close())
	if err != nil {
		s.failures.Inc()
		s.logger.Warnf("report: %s: %v", conn.RemoteAddr(), err)
		return
	}
	s.logger.Debugf("report: requests=%d fails=%d", s.requests.Load(), s.failures.Load())
}

func (s *Server) respond(conn net.Conn) error {
	rec, err := s.Sample()
	if err != nil {
		return err
	}
	b, _ := rec.MarshalBinary()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	n, err := conn.Write(b)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("write: %w", io.ErrShortWrite)
	}
	return nil
}

// Requests returns the number of accepted connections.
func (s *Server) Requests() uint64 {
	return s.requests.Load()
}

// Failures returns the number of failed accepts and responses.
func (s *Server) Failures() uint64 {
	return s.failures.Load()
}

// Close stops accepting and waits for in-flight responses.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	s.logger.Infof("report: served %d requests, %d failures", s.requests.Load(), s.failures.Load())
	return err
}

// Fetch connects to addr and reads one record.
func Fetch(ctx context.Context, addr string) (Record, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Record{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	b := make([]byte, RecordSize)
	if _, err := io.ReadFull(conn, b); err != nil {
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	var rec Record
	if err := rec.UnmarshalBinary(b); err != nil {
		return Record{}, err
	}
	return rec, nil
}
