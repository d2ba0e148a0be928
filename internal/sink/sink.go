// Package sink implements the sink multiplexer: a
// record is either appended to a file or sent over a stream socket
// and drained synchronously before the call returns. Grounded on
// gravwell's ingest.IngestConnection (ingest/ingestConnection.go),
// which is likewise a thin connect/write/drain wrapper one layer
// under the full IngestMuxer — the same relationship this package has
// to the identity+record machinery above it.
package sink

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/clade-build/clade/internal/envvars"
)

// Config selects a sink from the recognized environment variables, in
// the precedence order: PREPROCESS set -> socket (UNIX
// preferred over TCP); otherwise the named file.
type Config struct {
	Preprocess  bool
	UnixAddress string
	InetHost    string
	InetPort    string
	FilePath    string
}

// ConfigFromEnv builds a Config from the process environment for the
// record kind named by fileVar (INTERCEPT_EXEC or INTERCEPT_OPEN).
func ConfigFromEnv(fileVar string) Config {
	_, preprocess := os.LookupEnv(envvars.Preprocess)
	return Config{
		Preprocess:  preprocess,
		UnixAddress: os.Getenv(envvars.UnixAddress),
		InetHost:    os.Getenv(envvars.InetHost),
		InetPort:    os.Getenv(envvars.InetPort),
		FilePath:    os.Getenv(fileVar),
	}
}

// Send dispatches one record per Config's precedence rules. On the
// socket path this blocks until the peer has drained the connection,
// which is how a hung sink ends up hanging the observed process, the
// suspension point is implemented.
func Send(cfg Config, record string) error {
	if cfg.Preprocess {
		if cfg.UnixAddress != "" {
			return sendUnix(cfg.UnixAddress, record)
		}
		if cfg.InetHost != "" && cfg.InetPort != "" {
			return sendTCP(cfg.InetHost, cfg.InetPort, record)
		}
		return fmt.Errorf("sink: PREPROCESS is set but neither UNIX_ADDRESS nor INET_HOST/INET_PORT is")
	}
	if cfg.FilePath == "" {
		return fmt.Errorf("sink: no output file configured")
	}
	return appendFile(cfg.FilePath, record)
}

func appendFile(path, record string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sink: opening %s: %w", path, err)
	}
	defer f.Close()

	// A single Write under O_APPEND is atomic at the OS level for
	// typical line sizes; the caller's fslock provides ordering across
	// processes.
	if _, err := f.WriteString(record); err != nil {
		return fmt.Errorf("sink: writing %s: %w", path, err)
	}
	return nil
}

func sendUnix(address, record string) error {
	conn, err := net.Dial("unix", address)
	if err != nil {
		return fmt.Errorf("sink: dialing unix socket %s: %w", address, err)
	}
	return sendAndDrain(conn, record)
}

func sendTCP(host, port, record string) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("sink: dialing tcp %s:%s: %w", host, port, err)
	}
	return sendAndDrain(conn, record)
}

// sendAndDrain implements the wire protocol: write the
// full record in one call, half-close the write side, then read and
// discard until the peer closes.
func sendAndDrain(conn net.Conn, record string) error {
	defer conn.Close()

	n, err := conn.Write([]byte(record))
	if err != nil {
		return fmt.Errorf("sink: writing record: %w", err)
	}
	if n != len(record) {
		return fmt.Errorf("sink: short write: wrote %d of %d bytes", n, len(record))
	}

	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := hc.CloseWrite(); err != nil {
			return fmt.Errorf("sink: half-closing write side: %w", err)
		}
	}

	if _, err := io.Copy(io.Discard, conn); err != nil {
		return fmt.Errorf("sink: draining response: %w", err)
	}
	return nil
}
