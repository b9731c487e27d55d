package udp

import (
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"github.com/ringkv/dhtp/types"
)

var _logger zerolog.Logger = zerolog.New(
	zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr },
		func(w *zerolog.ConsoleWriter) { w.TimeFormat = "15:04:05.000" })).
	With().Str("mod", "UDPSock").Timestamp().Logger()

const bufSize = 9200 // macos max udp datagram is 9216 bytes

// Socket sends and receives DHTP packets over a UDP socket. It owns the tag
// counter for server-originated packets: Send assigns the next tag to any
// packet that has none.
type Socket struct {
	conn    net.PacketConn
	log     zerolog.Logger
	sendTag int32
}

// CreateSocket binds a UDP socket on address. With debug set, a copy of
// every packet received and sent is echoed to the log.
func CreateSocket(address string, debug bool) (*Socket, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, xerrors.Errorf("cannot create udp socket: %w", err)
	}
	log := _logger.With().Str("adr", conn.LocalAddr().String()).Logger()
	if !debug {
		log = log.Level(zerolog.InfoLevel)
	}
	return &Socket{conn: conn, log: log}, nil
}

// GetAddress returns the bound address. Useful when the socket was created
// with port 0 and the system picked a free port.
func (s *Socket) GetAddress() string {
	return s.conn.LocalAddr().String()
}

// Close closes the socket; a blocked Recv returns with an error.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// SetRecvDeadline bounds the next Recv calls. The zero time means no limit.
func (s *Socket) SetRecvDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Recv blocks until a datagram arrives, then parses it. It returns the
// packet together with the sender's address.
func (s *Socket) Recv() (*types.Packet, string, error) {
	buf := make([]byte, bufSize)
	n, from, err := s.conn.ReadFrom(buf)
	if err != nil {
		return nil, "", xerrors.Errorf("UDP recv error: %w", err)
	}
	pkt, err := types.Unmarshal(buf[:n])
	if err != nil {
		return nil, from.String(), xerrors.Errorf("UDP recv error: %w", err)
	}
	s.log.Debug().Str("from", from.String()).Str("pkt", pkt.String()).Msg("received packet")
	return pkt, from.String(), nil
}

// Send assigns a tag if none is set, serializes the packet and transmits it
// to dest. Best effort: UDP gives no delivery guarantee.
func (s *Socket) Send(dest string, pkt *types.Packet) error {
	if pkt.Tag == nil {
		tag := atomic.AddInt32(&s.sendTag, 1)
		pkt.Tag = &tag
	}
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return xerrors.Errorf("UDP send error: %w", err)
	}
	if _, err := s.conn.WriteTo(pkt.Marshal(), addr); err != nil {
		return xerrors.Errorf("UDP send error: %w", err)
	}
	s.log.Debug().Str("to", dest).Str("pkt", pkt.String()).Msg("sent packet")
	return nil
}
