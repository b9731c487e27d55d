package client

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"github.com/ringkv/dhtp/logging"
	"github.com/ringkv/dhtp/transport/udp"
	"github.com/ringkv/dhtp/types"
)

// ErrNoReply is returned when every attempt of a request timed out.
var ErrNoReply = xerrors.New("no reply from DHT")

// Client issues get/put requests to one entry node of the DHT. Replies are
// matched to requests by tag; lost packets are retried.
type Client struct {
	zerolog.Logger

	sock    *udp.Socket
	server  string
	timeout time.Duration
	retries int
}

// New creates a client talking to the node at server ("ip:port").
func New(server string, timeout time.Duration, retries int) (*Client, error) {
	sock, err := udp.CreateSocket(":0", false)
	if err != nil {
		return nil, err
	}
	return &Client{
		Logger:  logging.RootLogger.With().Str("mod", "client").Logger(),
		sock:    sock,
		server:  server,
		timeout: timeout,
		retries: retries,
	}, nil
}

// Close releases the client's socket.
func (c *Client) Close() error {
	return c.sock.Close()
}

// Get looks a key up anywhere on the ring. found is false when the owner
// reported no match.
func (c *Client) Get(key string) (val string, found bool, err error) {
	k := key
	reply, err := c.request(&types.Packet{Type: types.TypeGet, Key: &k})
	if err != nil {
		return "", false, err
	}
	switch reply.Type {
	case types.TypeSuccess:
		if reply.Val == nil {
			return "", false, xerrors.New("success reply without val")
		}
		return *reply.Val, true, nil
	case types.TypeNoMatch:
		return "", false, nil
	case types.TypeFailure:
		return "", false, xerrors.Errorf("request failed: %s", reasonOf(reply))
	}
	return "", false, xerrors.Errorf("unexpected reply type %q", reply.Type)
}

func reasonOf(p *types.Packet) string {
	if p.Reason == nil {
		return "unspecified"
	}
	return *p.Reason
}

// Put stores a key/value pair on its owner.
func (c *Client) Put(key, val string) error {
	k, v := key, val
	reply, err := c.request(&types.Packet{Type: types.TypePut, Key: &k, Val: &v})
	if err != nil {
		return err
	}
	if reply.Type == types.TypeFailure {
		return xerrors.Errorf("request failed: %s", reasonOf(reply))
	}
	if reply.Type != types.TypeSuccess {
		return xerrors.Errorf("unexpected reply type %q", reply.Type)
	}
	return nil
}

// Del removes a key: a put without a value.
func (c *Client) Del(key string) error {
	k := key
	reply, err := c.request(&types.Packet{Type: types.TypePut, Key: &k})
	if err != nil {
		return err
	}
	if reply.Type == types.TypeFailure {
		return xerrors.Errorf("request failed: %s", reasonOf(reply))
	}
	if reply.Type != types.TypeSuccess {
		return xerrors.Errorf("unexpected reply type %q", reply.Type)
	}
	return nil
}

// request sends the packet and waits for the reply carrying the same tag.
// Replies with foreign tags (late retries) are discarded.
func (c *Client) request(p *types.Packet) (*types.Packet, error) {
	for attempt := 0; attempt <= c.retries; attempt++ {
		req := p.Clone()
		if err := c.sock.Send(c.server, req); err != nil {
			return nil, err
		}
		tag := *req.Tag
		deadline := time.Now().Add(c.timeout)
		if err := c.sock.SetRecvDeadline(deadline); err != nil {
			return nil, err
		}
		for time.Now().Before(deadline) {
			reply, _, err := c.sock.Recv()
			if err != nil {
				break // timeout or socket error, retry
			}
			if reply.Tag == nil || *reply.Tag != tag {
				c.Debug().Str("pkt", reply.String()).Msg("discarding reply with foreign tag")
				continue
			}
			c.sock.SetRecvDeadline(time.Time{})
			return reply, nil
		}
		c.Debug().Int("attempt", attempt+1).Msg("request timed out")
	}
	c.sock.SetRecvDeadline(time.Time{})
	return nil, ErrNoReply
}
