// Package server implements the line-framed TCP transport in front of the
// broker core: it accepts connections, buffers bytes until a newline,
// decodes one request per line, and writes back the broker's response
// line. Framing and per-connection bookkeeping are grounded in the
// reference implementation's TcpClient (original_source/golang/lib/lib.go),
// reworked around goroutines and channels instead of a custom buffered
// reader type.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/brokerhq/jobcentre/pkg/broker"
	"github.com/brokerhq/jobcentre/pkg/codec"
	"github.com/brokerhq/jobcentre/pkg/logging"
	"github.com/google/uuid"
)

// DefaultAddr is the protocol's compile-time listening address. The wire
// protocol takes no configuration, per spec; only ambient tooling around it
// (the dashboard, log verbosity) is flag-driven.
const DefaultAddr = ":50000"

const readBufferSize = 4096

var newline = []byte("\n")

// Server accepts connections and feeds parsed requests to a Broker.
type Server struct {
	addr   string
	broker *broker.Broker
	log    *logging.Logger
}

func New(addr string, b *broker.Broker, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New(nil, logging.LevelInfo)
	}
	return &Server{addr: addr, broker: b, log: logger}
}

// ListenAndServe binds addr and serves connections until ctx is cancelled.
// An accept error is logged and does not stop the loop. A bind failure
// here is returned, and is fatal to the
// process (the protocol listener is the broker's critical path), unlike a
// dashboard bind failure.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Infof("listening on %s", s.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warnf("accept error: %v", err)
			continue
		}
		go s.serveConn(conn)
	}
}

// serveConn owns one connection's lifecycle. The read loop never blocks on
// a broker reply (so it can always notice the socket closing, even while a
// blocking get is outstanding); each parsed line's response is written by a
// dedicated goroutine through a single-writer outbox so concurrent
// responses can never interleave mid-line on the wire.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	clientID := s.broker.Connect()
	trace := uuid.NewString()[:8]
	s.log.Infof("[%s] client %d connected from %s", trace, clientID, conn.RemoteAddr())

	outbox := make(chan []byte, 8)
	writerDone := make(chan struct{})
	go runWriter(conn, outbox, writerDone)

	var wg sync.WaitGroup
	reader := bufio.NewReaderSize(conn, readBufferSize)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A dangling chunk with no terminating '\n' (e.g. the peer
			// closed mid-line) is not a complete request per spec.md §6
			// and must be discarded, not dispatched — checked before any
			// use of line below, matching the reference ReadLine/ReadUntil,
			// which only ever yields a line once it has actually found the
			// delimiter.
			if !errors.Is(err, io.EOF) {
				s.log.Warnf("[%s] client %d read error: %v", trace, clientID, err)
			}
			break
		}
		// Only the delimiter itself is stripped; a leading/trailing '\r'
		// is part of the line's content per spec.md §6 ("carriage returns
		// are not stripped; a well-formed client sends \n only").
		line = bytes.TrimSuffix(line, newline)
		if len(line) > 0 {
			s.dispatch(&wg, trace, clientID, line, outbox)
		}
	}

	s.broker.Disconnect(clientID)
	wg.Wait()
	close(outbox)
	<-writerDone
	s.log.Infof("[%s] client %d disconnected", trace, clientID)
}

func (s *Server) dispatch(wg *sync.WaitGroup, trace string, clientID int64, line []byte, outbox chan<- []byte) {
	req, err := codec.Decode(line)
	var reply <-chan codec.Response
	if err != nil {
		s.log.Warnf("[%s] client %d malformed request: %v", trace, clientID, err)
		immediate := make(chan codec.Response, 1)
		immediate <- codec.NewError()
		reply = immediate
	} else {
		s.log.Debugf("[%s] client %d request: %s", trace, clientID, req.Op)
		reply = s.broker.Handle(clientID, req)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, ok := <-reply
		if !ok {
			// Request was dropped (client blocked) or the connection was
			// already torn down; nothing to write back.
			return
		}
		encoded, err := codec.Encode(resp)
		if err != nil {
			s.log.Warnf("[%s] client %d encode error: %v", trace, clientID, err)
			return
		}
		outbox <- encoded
	}()
}

func runWriter(conn net.Conn, outbox <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for line := range outbox {
		if _, err := conn.Write(line); err != nil {
			// A broken pipe here just ends this connection's writer; Go
			// never delivers a process-terminating SIGPIPE for socket
			// writes, so no signal handling is needed to keep the broker
			// itself alive.
			return
		}
	}
}
