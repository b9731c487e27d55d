package dht

import (
	"github.com/ringkv/dhtp/types"
)

// handleGet answers from the store (or the cache) when this node can, and
// forwards toward the owner otherwise. When the request came through a
// relay, the reply goes back to the relay, which delivers it to the client.
func (n *Node) handleGet(p *types.Packet, sender string) {
	hash := types.Hashit(*p.Key)
	cacheVal, inCache := "", false
	if n.cache != nil {
		cacheVal, inCache = n.cache.Get(*p.Key)
	}
	if n.hashRange.Contains(hash) || inCache {
		hr := n.hashRange
		reply := &types.Packet{
			Type:      types.TypeSuccess,
			Key:       p.Key,
			Tag:       p.Tag,
			TTL:       p.TTL,
			HashRange: &hr,
			ClientAdr: p.ClientAdr,
			RelayAdr:  p.RelayAdr,
		}
		if val, ok := n.store.Get(*p.Key); ok {
			v := val
			reply.Val = &v
		} else if inCache {
			v := cacheVal
			reply.Val = &v
		} else {
			reply.Type = types.TypeNoMatch
		}
		dest := sender
		if p.RelayAdr != "" {
			dest = p.RelayAdr
			self := n.myInfo
			reply.SenderInfo = &self
		}
		n.send(reply, dest)
		return
	}
	fwd := p.Clone()
	if fwd.RelayAdr == "" {
		fwd.RelayAdr = n.addr()
		fwd.ClientAdr = sender
	}
	n.forward(fwd, hash)
}

// handlePut applies an insert, overwrite or delete when the key hashes into
// this node's range, replying straight to the client, and forwards toward
// the owner otherwise.
func (n *Node) handlePut(p *types.Packet, sender string) {
	hash := types.Hashit(*p.Key)
	if n.hashRange.Contains(hash) {
		if p.Val == nil {
			n.store.Remove(*p.Key)
		} else {
			n.store.Put(*p.Key, *p.Val)
		}
		hr := n.hashRange
		self := n.myInfo
		reply := &types.Packet{
			Type:       types.TypeSuccess,
			Key:        p.Key,
			Val:        p.Val,
			Tag:        p.Tag,
			TTL:        p.TTL,
			HashRange:  &hr,
			SenderInfo: &self,
		}
		dest := sender
		if p.ClientAdr != "" {
			dest = p.ClientAdr
		}
		n.send(reply, dest)
		return
	}
	fwd := p.Clone()
	if fwd.RelayAdr == "" {
		fwd.RelayAdr = n.addr()
		fwd.ClientAdr = sender
	}
	n.forward(fwd, hash)
}

// handleXfer absorbs one key/value pair handed over by a joining or leaving
// neighbor. Inserts are idempotent, so reordered transfers are harmless.
func (n *Node) handleXfer(p *types.Packet) {
	n.store.Put(*p.Key, *p.Val)
}

// handleReply runs at the relay when the owner's answer comes back: learn
// the responder's ring position as a shortcut, feed the cache, then strip
// the addressing fields and deliver the reply to the client.
func (n *Node) handleReply(p *types.Packet, sender string) {
	if p.HashRange != nil {
		n.addRoute(types.NodeInfo{Adr: sender, FirstHash: p.HashRange.Low})
	}
	if n.cache != nil && p.Key != nil && p.Val != nil {
		n.cache.Put(*p.Key, *p.Val)
	}
	clientAdr := p.ClientAdr
	if clientAdr == "" {
		n.Debug().Str("from", sender).Msg("reply without clientAdr, dropping")
		return
	}
	out := p.Clone()
	out.ClientAdr = ""
	out.RelayAdr = ""
	out.SenderInfo = nil
	n.send(out, clientAdr)
}
