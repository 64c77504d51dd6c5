package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/Agate-DB/Carnelia-Collab/internal/protocol"
)

var newline = []byte{'\n'}

// writeTimeout bounds a single outbound write so a peer that stopped
// reading cannot park the session's writer goroutine forever.
const writeTimeout = 10 * time.Second

// Serve accepts TCP connections until ctx is cancelled or the listener
// fails, handing each connection its own handler goroutine.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.log.Info("connection accepted", "remote", conn.RemoteAddr().String())
		go r.HandleStream(ctx, NewTCPStream(conn))
	}
}

type tcpStream struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// NewTCPStream frames a raw connection into newline-delimited protocol
// lines, bounded at protocol.MaxLineBytes.
func NewTCPStream(conn net.Conn) Stream {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64*1024), protocol.MaxLineBytes)
	return &tcpStream{conn: conn, scanner: sc}
}

func (t *tcpStream) ReadLine() ([]byte, error) {
	if t.scanner.Scan() {
		return t.scanner.Bytes(), nil
	}
	if err := t.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrLineTooLong
		}
		return nil, err
	}
	return nil, io.EOF
}

func (t *tcpStream) WriteLine(line []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := t.conn.Write(line); err != nil {
		return err
	}
	_, err := t.conn.Write(newline)
	return err
}

func (t *tcpStream) Close() error { return t.conn.Close() }

func (t *tcpStream) RemoteAddr() string { return t.conn.RemoteAddr().String() }
