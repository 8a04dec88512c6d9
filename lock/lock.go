// Package lock sends control datagrams to an ESP smart lock.
//
// The lock listens for raw UDP payloads; there is no acknowledgement and no
// response. Each Send is a single fire-and-forget datagram over IPv4.
package lock

import (
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// DefaultEndpoint and DefaultPayload match the lock's stock firmware.
var (
	DefaultEndpoint = Endpoint{Host: "172.16.0.148", Port: 2333}
	DefaultPayload  = []byte("unlock")
)

// Endpoint identifies the lock on the network.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// resolve maps the endpoint to a concrete IPv4 UDP address.
func (e Endpoint) resolve() (*net.UDPAddr, error) {
	if e.Port == 0 {
		return nil, fmt.Errorf("invalid port %d", e.Port)
	}

	addr, err := net.ResolveUDPAddr("udp4", e.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve endpoint %q: %w", e.String(), err)
	}

	return addr, nil
}

// Sender transmits single datagrams to a lock endpoint.
type Sender struct {
	log *zap.Logger
}

// NewSender creates a Sender which logs through the given logger.  A nil
// logger disables logging.
func NewSender(log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}

	return &Sender{log: log}
}

// Send transmits payload to the endpoint as one datagram, returning the
// number of bytes accepted by the transport.  The socket is opened for this
// call only and is always closed before Send returns, whether or not the
// write succeeded.  Delivery is best-effort: a nil error means the local
// transport accepted the datagram, not that the lock received it.
func (s *Sender) Send(ep Endpoint, payload []byte) (int, error) {
	addr, err := ep.resolve()
	if err != nil {
		return 0, err
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to open socket to %s: %w", ep.String(), err)
	}

	defer func() {
		if err := conn.Close(); err != nil {
			s.log.Error("failed to close socket",
				zap.String("endpoint", ep.String()),
				zap.Error(err),
			)
		}
	}()

	s.log.Debug("sending datagram",
		zap.String("endpoint", ep.String()),
		zap.Int("size", len(payload)),
	)

	n, err := conn.Write(payload)
	if err != nil {
		return n, fmt.Errorf("failed to send datagram to %s: %w", ep.String(), err)
	}

	s.log.Info("datagram sent",
		zap.String("endpoint", ep.String()),
		zap.Int("bytes", n),
	)

	return n, nil
}
