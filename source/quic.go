package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/esdemux/internal/certs"
)

// QUICProtocol is the ALPN protocol spoken by QUIC ingest peers.
const QUICProtocol = "esdemux-ts"

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// QUICListener accepts transport streams pushed over QUIC. Each connection
// carries one stream on its first unidirectional QUIC stream.
type QUICListener struct {
	log *slog.Logger
	ln  *quic.Listener
}

// ListenQUIC listens on addr presenting cert. If log is nil, slog.Default()
// is used.
func ListenQUIC(addr string, cert *certs.CertInfo, log *slog.Logger) (*QUICListener, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := quic.ListenAddr(addr, cert.ServerTLS(QUICProtocol), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("source: quic listen on %s: %w", addr, err)
	}
	l := &QUICListener{log: log.With("component", "quic-listener"), ln: ln}
	l.log.Info("listening", "addr", ln.Addr(), "fingerprint", cert.FingerprintBase64())
	return l, nil
}

// Addr returns the bound UDP address.
func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

// Accept waits for a publisher and returns its transport stream as a
// streaming Source. Closing the Source closes the connection.
func (l *QUICListener) Accept(ctx context.Context) (*Stream, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("source: quic accept: %w", err)
	}
	str, err := conn.AcceptUniStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, fmt.Errorf("source: quic accept stream: %w", err)
	}
	l.log.Info("publish", "remote", conn.RemoteAddr())
	return newStream(str, &quicCloser{conn: conn, str: str}, conn.RemoteAddr().String()), nil
}

// Close stops accepting connections. Accepted streams stay open.
func (l *QUICListener) Close() error {
	return l.ln.Close()
}

type quicCloser struct {
	conn quic.Connection
	str  quic.ReceiveStream
}

func (c *quicCloser) Close() error {
	c.str.CancelRead(0)
	return c.conn.CloseWithError(0, "closed")
}

// PushQUIC sends r to a QUICListener at addr whose certificate has the given
// fingerprint. It returns once the receiver has closed the connection or
// ctx is done.
func PushQUIC(ctx context.Context, addr string, fingerprint [32]byte, r io.Reader) (int64, error) {
	conn, err := quic.DialAddr(ctx, addr, certs.ClientTLS(fingerprint, QUICProtocol), quicConfig())
	if err != nil {
		return 0, fmt.Errorf("source: quic dial %s: %w", addr, err)
	}
	defer conn.CloseWithError(0, "")

	str, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return 0, fmt.Errorf("source: quic open stream: %w", err)
	}
	n, err := io.Copy(str, r)
	if err != nil {
		str.CancelWrite(0)
		return n, fmt.Errorf("source: quic push: %w", err)
	}
	if err := str.Close(); err != nil {
		return n, fmt.Errorf("source: quic push: %w", err)
	}

	select {
	case <-conn.Context().Done():
	case <-ctx.Done():
		return n, ctx.Err()
	}
	return n, nil
}
