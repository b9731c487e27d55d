package dht

import (
	"errors"
	"math"
	"net"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/ringkv/dhtp/logging"
	"github.com/ringkv/dhtp/transport/udp"
	"github.com/ringkv/dhtp/types"
)

// Config carries the startup options of a node.
type Config struct {
	IP        string // bind address of the UDP socket
	NumRoutes int    // routing table capacity, typically lg(numNodes)
	CfgFile   string // file to write "<ip> <port>" bootstrap info to
	Cache     bool   // enable the read-through reply cache
	Debug     bool   // echo every received/sent packet and table change
	PredFile  string // optional cfg file of the predecessor to join through
	LogFile   string // optional rotating log file
}

type inbound struct {
	pkt    *types.Packet
	sender string
}

// Node is one DHT server. All ring state is owned by the dispatcher
// goroutine; the mutex serializes it against the leave command path and the
// read accessors.
type Node struct {
	zerolog.Logger

	conf Config
	sock *udp.Socket

	mu        sync.Mutex
	myInfo    types.NodeInfo
	predInfo  types.NodeInfo
	succInfo  types.NodeInfo
	hashRange types.HashRange
	rteTbl    []types.NodeInfo

	store *Store
	cache *Store

	ins       chan inbound
	leaveCh   chan chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	leaveDone chan struct{}
	stopped   bool
}

// New binds the node's socket and writes the bootstrap file. The node does
// not touch the ring until Start.
func New(conf Config) (*Node, error) {
	if conf.NumRoutes < 1 {
		return nil, errors.New("numRoutes must be positive")
	}
	sock, err := udp.CreateSocket(conf.IP+":0", conf.Debug)
	if err != nil {
		return nil, err
	}
	if conf.CfgFile != "" {
		if err := writeCfgFile(conf.CfgFile, sock.GetAddress()); err != nil {
			sock.Close()
			return nil, err
		}
	}
	root := logging.RootLogger
	if conf.LogFile != "" {
		root = logging.WithFile(conf.LogFile)
	}
	if conf.Debug {
		root = root.Level(zerolog.DebugLevel)
	}
	n := &Node{
		conf:    conf,
		sock:    sock,
		store:   NewStore(),
		ins:     make(chan inbound, 100),
		leaveCh: make(chan chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if conf.Cache {
		n.cache = NewStore()
	}
	n.Logger = root.With().
		Str("node", xid.New().String()).
		Str("adr", sock.GetAddress()).Logger()
	return n, nil
}

// Start brings the node onto the ring: solo bootstrap when no predecessor is
// configured, otherwise a join through it. It then starts the receive loop
// and the dispatcher.
func (n *Node) Start() error {
	self := types.NodeInfo{Adr: n.addr(), FirstHash: 0}
	n.myInfo = self
	if n.conf.PredFile == "" {
		n.predInfo = self
		n.succInfo = self
		n.hashRange = types.HashRange{Low: 0, High: math.MaxInt32}
		n.Info().Str("hashRange", n.hashRange.String()).Msg("bootstrapped solo ring")
	} else {
		predAdr, err := ReadCfgFile(n.conf.PredFile)
		if err != nil {
			return err
		}
		if err := n.join(predAdr); err != nil {
			return err
		}
	}
	go n.recvLoop()
	go n.run()
	return nil
}

// Stop shuts the node down without leaving the ring.
func (n *Node) Stop() {
	n.closeOnce.Do(func() { close(n.quit) })
	n.sock.Close()
}

// Leave gracefully leaves the ring and blocks until the leave packet has
// circled back and all keys have been handed to the predecessor.
func (n *Node) Leave() {
	done := make(chan struct{})
	select {
	case n.leaveCh <- done:
		<-done
	case <-n.done:
		return
	}
	n.Stop()
}

// recvLoop feeds received packets to the dispatcher. Transport and parse
// errors are logged and skipped.
func (n *Node) recvLoop() {
	for {
		pkt, sender, err := n.sock.Recv()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.Warn().Err(err).Msg("received packet failure")
			continue
		}
		select {
		case n.ins <- inbound{pkt: pkt, sender: sender}:
		case <-n.done:
			return
		}
	}
}

// run is the dispatcher: the single task that owns all ring state.
func (n *Node) run() {
	defer close(n.done)
	for {
		select {
		case in := <-n.ins:
			n.mu.Lock()
			n.dispatch(in.pkt, in.sender)
			n.mu.Unlock()
		case done := <-n.leaveCh:
			n.mu.Lock()
			n.startLeave(done)
			n.mu.Unlock()
		case <-n.quit:
			return
		}
		n.mu.Lock()
		stopped := n.stopped
		n.mu.Unlock()
		if stopped {
			n.sock.Close()
			return
		}
	}
}

// dispatch classifies one packet and invokes its handler.
func (n *Node) dispatch(p *types.Packet, sender string) {
	if err := p.Check(); err != nil {
		n.Info().Err(err).Str("from", sender).Msg("packet failed check")
		if !p.IsReply() { // a node never replies to a reply
			reason := err.Error()
			n.send(&types.Packet{
				Type:   types.TypeFailure,
				Reason: &reason,
				Tag:    p.Tag,
				TTL:    p.TTL,
			}, sender)
		}
		return
	}
	// learn the sender's ring position, except from a leave (the sender is
	// going away) or a join (the joiner has no assigned position yet)
	if p.SenderInfo != nil && p.Type != types.TypeLeave && p.Type != types.TypeJoin {
		n.addRoute(*p.SenderInfo)
	}
	switch p.Type {
	case types.TypeGet:
		n.handleGet(p, sender)
	case types.TypePut:
		n.handlePut(p, sender)
	case types.TypeTransfer:
		n.handleXfer(p)
	case types.TypeSuccess, types.TypeNoMatch, types.TypeFailure:
		n.handleReply(p, sender)
	case types.TypeJoin:
		n.handleJoin(p, sender)
	case types.TypeUpdate:
		n.handleUpdate(p)
	case types.TypeLeave:
		n.handleLeave(p)
	}
}

// send transmits best-effort; transient failures are logged and the node
// keeps operating.
func (n *Node) send(p *types.Packet, dest string) {
	if err := n.sock.Send(dest, p); err != nil {
		n.Warn().Err(err).Str("dest", dest).Msg("send failure")
	}
}

func (n *Node) addr() string {
	return n.sock.GetAddress()
}

// Addr returns the node's UDP socket address.
func (n *Node) Addr() string {
	return n.addr()
}

// Self returns the node's identity on the ring.
func (n *Node) Self() types.NodeInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.myInfo
}

// Successor returns the current successor.
func (n *Node) Successor() types.NodeInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.succInfo
}

// Predecessor returns the current predecessor.
func (n *Node) Predecessor() types.NodeInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.predInfo
}

// Range returns the currently owned hash range.
func (n *Node) Range() types.HashRange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hashRange
}

// Routes returns a snapshot of the routing table.
func (n *Node) Routes() []types.NodeInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.NodeInfo, len(n.rteTbl))
	copy(out, n.rteTbl)
	return out
}

// StoreEntries returns a copy of the authoritative key/value map.
func (n *Node) StoreEntries() map[string]string {
	return n.store.Entries()
}

// CacheEntries returns a copy of the reply cache, or nil when disabled.
func (n *Node) CacheEntries() map[string]string {
	if n.cache == nil {
		return nil
	}
	return n.cache.Entries()
}
