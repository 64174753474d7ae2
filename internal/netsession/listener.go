package netsession

import (
	"fmt"
	"net"
)

// Listener accepts incoming TCP connections and wraps each as a Session.
type Listener struct {
	ln  net.Listener
	cfg Config
}

// Listen starts accepting connections on addr.
func Listen(addr string, cfg Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netsession: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next incoming connection and wraps it.
func (l *Listener) Accept() (*Session, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newSession(conn, l.cfg), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }
