package types

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Magic is the identifying first line required in every DHTP packet.
const Magic = "CSE473 DHTPv0.1"

// DefaultTTL is the hop budget assumed when a packet carries no ttl line.
const DefaultTTL = 100

// Packet types.
const (
	TypeGet      = "get"
	TypePut      = "put"
	TypeSuccess  = "success"
	TypeNoMatch  = "no match"
	TypeFailure  = "failure"
	TypeJoin     = "join"
	TypeLeave    = "leave"
	TypeUpdate   = "update"
	TypeTransfer = "transfer"
)

// NodeInfo identifies a node by its UDP socket address together with the
// first hash of the range it owns, i.e. its position on the ring.
type NodeInfo struct {
	Adr       string
	FirstHash int32
}

func (ni NodeInfo) String() string {
	return fmt.Sprintf("%s:%d", ni.Adr, ni.FirstHash)
}

// ParseNodeInfo parses the "ip:port:firstHash" wire form.
func ParseNodeInfo(s string) (NodeInfo, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return NodeInfo{}, xerrors.Errorf("malformed node info %q", s)
	}
	hash, err := strconv.ParseInt(s[i+1:], 10, 32)
	if err != nil {
		return NodeInfo{}, xerrors.Errorf("malformed node info %q: %w", s, err)
	}
	adr := s[:i]
	if !strings.Contains(adr, ":") {
		return NodeInfo{}, xerrors.Errorf("malformed node info %q", s)
	}
	return NodeInfo{Adr: adr, FirstHash: int32(hash)}, nil
}

// HashRange is an inclusive interval of hash values owned by one node.
type HashRange struct {
	Low  int32
	High int32
}

func (hr HashRange) String() string {
	return fmt.Sprintf("%d:%d", hr.Low, hr.High)
}

// Contains reports whether h falls inside the range.
func (hr HashRange) Contains(h int32) bool {
	return hr.Low <= h && h <= hr.High
}

// ParseHashRange parses the "low:high" wire form.
func ParseHashRange(s string) (HashRange, error) {
	i := strings.Index(s, ":")
	if i < 0 {
		return HashRange{}, xerrors.Errorf("malformed hash range %q", s)
	}
	low, err := strconv.ParseInt(s[:i], 10, 32)
	if err != nil {
		return HashRange{}, xerrors.Errorf("malformed hash range %q: %w", s, err)
	}
	high, err := strconv.ParseInt(s[i+1:], 10, 32)
	if err != nil {
		return HashRange{}, xerrors.Errorf("malformed hash range %q: %w", s, err)
	}
	return HashRange{Low: int32(low), High: int32(high)}, nil
}

// Packet is one DHTP datagram. Optional fields are pointers (or empty
// strings for addresses); an absent field simply omits its line on the wire.
type Packet struct {
	Type       string
	Key        *string
	Val        *string
	Reason     *string
	Tag        *int32
	TTL        *int32
	ClientAdr  string
	RelayAdr   string
	HashRange  *HashRange
	SuccInfo   *NodeInfo
	PredInfo   *NodeInfo
	SenderInfo *NodeInfo
}

// Ttl returns the packet's remaining hop budget, defaulting when unset.
func (p *Packet) Ttl() int32 {
	if p.TTL == nil {
		return DefaultTTL
	}
	return *p.TTL
}

// Clone returns a deep copy, so handlers can derive a packet without
// aliasing the original's optional fields.
func (p *Packet) Clone() *Packet {
	q := &Packet{Type: p.Type, ClientAdr: p.ClientAdr, RelayAdr: p.RelayAdr}
	if p.Key != nil {
		k := *p.Key
		q.Key = &k
	}
	if p.Val != nil {
		v := *p.Val
		q.Val = &v
	}
	if p.Reason != nil {
		r := *p.Reason
		q.Reason = &r
	}
	if p.Tag != nil {
		t := *p.Tag
		q.Tag = &t
	}
	if p.TTL != nil {
		t := *p.TTL
		q.TTL = &t
	}
	if p.HashRange != nil {
		hr := *p.HashRange
		q.HashRange = &hr
	}
	if p.SuccInfo != nil {
		ni := *p.SuccInfo
		q.SuccInfo = &ni
	}
	if p.PredInfo != nil {
		ni := *p.PredInfo
		q.PredInfo = &ni
	}
	if p.SenderInfo != nil {
		ni := *p.SenderInfo
		q.SenderInfo = &ni
	}
	return q
}

// Marshal serializes the packet into its line-oriented wire form.
func (p *Packet) Marshal() []byte {
	var b strings.Builder
	b.WriteString(Magic)
	b.WriteByte('\n')
	line := func(k, v string) {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if p.Type != "" {
		line("type", p.Type)
	}
	if p.Key != nil {
		line("key", *p.Key)
	}
	if p.Val != nil {
		line("val", *p.Val)
	}
	if p.Tag != nil {
		line("tag", strconv.FormatInt(int64(*p.Tag), 10))
	}
	if p.TTL != nil {
		line("ttl", strconv.FormatInt(int64(*p.TTL), 10))
	}
	if p.Reason != nil {
		line("reason", *p.Reason)
	}
	if p.ClientAdr != "" {
		line("clientAdr", p.ClientAdr)
	}
	if p.RelayAdr != "" {
		line("relayAdr", p.RelayAdr)
	}
	if p.HashRange != nil {
		line("hashRange", p.HashRange.String())
	}
	if p.SuccInfo != nil {
		line("succInfo", p.SuccInfo.String())
	}
	if p.PredInfo != nil {
		line("predInfo", p.PredInfo.String())
	}
	if p.SenderInfo != nil {
		line("senderInfo", p.SenderInfo.String())
	}
	return []byte(b.String())
}

// Unmarshal parses a datagram payload. It validates the magic header and the
// syntax of every recognized field; unrecognized lines are ignored so newer
// peers can add fields.
func Unmarshal(buf []byte) (*Packet, error) {
	lines := strings.Split(string(buf), "\n")
	if len(lines) == 0 || lines[0] != Magic {
		return nil, xerrors.Errorf("bad magic header")
	}
	p := &Packet{}
	for _, ln := range lines[1:] {
		if ln == "" {
			continue
		}
		i := strings.Index(ln, ":")
		if i < 0 {
			return nil, xerrors.Errorf("malformed line %q", ln)
		}
		field, rest := ln[:i], ln[i+1:]
		var err error
		switch field {
		case "type":
			p.Type = rest
		case "key":
			k := rest
			p.Key = &k
		case "val":
			v := rest
			p.Val = &v
		case "reason":
			r := rest
			p.Reason = &r
		case "tag":
			var t int64
			if t, err = strconv.ParseInt(rest, 10, 32); err == nil {
				tag := int32(t)
				p.Tag = &tag
			}
		case "ttl":
			var t int64
			if t, err = strconv.ParseInt(rest, 10, 32); err == nil {
				ttl := int32(t)
				p.TTL = &ttl
			}
		case "clientAdr":
			p.ClientAdr = rest
		case "relayAdr":
			p.RelayAdr = rest
		case "hashRange":
			var hr HashRange
			if hr, err = ParseHashRange(rest); err == nil {
				p.HashRange = &hr
			}
		case "succInfo":
			var ni NodeInfo
			if ni, err = ParseNodeInfo(rest); err == nil {
				p.SuccInfo = &ni
			}
		case "predInfo":
			var ni NodeInfo
			if ni, err = ParseNodeInfo(rest); err == nil {
				p.PredInfo = &ni
			}
		case "senderInfo":
			var ni NodeInfo
			if ni, err = ParseNodeInfo(rest); err == nil {
				p.SenderInfo = &ni
			}
		}
		if err != nil {
			return nil, xerrors.Errorf("field %s: %w", field, err)
		}
	}
	return p, nil
}

// Check validates the semantic preconditions of the packet per its type.
// The returned error text doubles as the reason of a failure reply.
func (p *Packet) Check() error {
	needKey := func() error {
		if p.Key == nil || *p.Key == "" {
			return xerrors.Errorf("%s requires key", p.Type)
		}
		return nil
	}
	switch p.Type {
	case TypeGet:
		return needKey()
	case TypePut:
		return needKey()
	case TypeSuccess:
		if p.HashRange == nil {
			return xerrors.New("success requires hashRange")
		}
	case TypeNoMatch:
		if err := needKey(); err != nil {
			return err
		}
		if p.HashRange == nil {
			return xerrors.New("no match requires hashRange")
		}
	case TypeFailure:
		if p.Reason == nil {
			return xerrors.New("failure requires reason")
		}
	case TypeJoin:
		if p.SenderInfo == nil {
			return xerrors.New("join requires senderInfo")
		}
		if p.PredInfo == nil {
			return xerrors.New("join requires predInfo")
		}
	case TypeLeave:
		if p.SenderInfo == nil {
			return xerrors.New("leave requires senderInfo")
		}
	case TypeUpdate:
		if p.PredInfo == nil && p.SuccInfo == nil && p.HashRange == nil {
			return xerrors.New("update requires predInfo, succInfo or hashRange")
		}
	case TypeTransfer:
		if err := needKey(); err != nil {
			return err
		}
		if p.Val == nil {
			return xerrors.New("transfer requires val")
		}
		if p.SenderInfo == nil {
			return xerrors.New("transfer requires senderInfo")
		}
	default:
		return xerrors.Errorf("unknown packet type %q", p.Type)
	}
	return nil
}

// IsReply reports whether the packet is a reply type. A node never replies
// to a reply.
func (p *Packet) IsReply() bool {
	return p.Type == TypeSuccess || p.Type == TypeNoMatch || p.Type == TypeFailure
}

// String renders the payload on one line for log output.
func (p *Packet) String() string {
	return strings.TrimRight(strings.ReplaceAll(string(p.Marshal()), "\n", " | "), " | ")
}
