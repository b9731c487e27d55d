package dht

import (
	"github.com/ringkv/dhtp/types"
)

// join contacts the configured predecessor and blocks until the ring has
// accepted this node. Transfer packets arriving before the success carry the
// keys of the range being handed over.
func (n *Node) join(predAdr string) error {
	pred := types.NodeInfo{Adr: predAdr, FirstHash: 0}
	n.predInfo = pred
	n.succInfo = pred
	self := n.myInfo
	joinPkt := &types.Packet{
		Type:       types.TypeJoin,
		SenderInfo: &self,
		PredInfo:   &pred,
	}
	if err := n.sock.Send(predAdr, joinPkt); err != nil {
		return err
	}
	n.Info().Str("pred", predAdr).Msg("joining ring")
	for {
		p, sender, err := n.sock.Recv()
		if err != nil {
			n.Warn().Err(err).Msg("received packet failure during join")
			continue
		}
		switch p.Type {
		case types.TypeTransfer:
			if p.Key != nil && p.Val != nil {
				n.store.Put(*p.Key, *p.Val)
			}
		case types.TypeSuccess:
			if p.HashRange == nil || p.SuccInfo == nil || p.PredInfo == nil {
				n.Warn().Str("from", sender).Msg("incomplete success during join, ignoring")
				continue
			}
			n.hashRange = *p.HashRange
			n.succInfo = *p.SuccInfo
			n.predInfo = *p.PredInfo
			n.myInfo.FirstHash = n.hashRange.Low
			n.addRoute(n.succInfo)
			n.Info().
				Str("hashRange", n.hashRange.String()).
				Str("succ", n.succInfo.String()).
				Str("pred", n.predInfo.String()).
				Msg("joined ring")
			return nil
		default:
			n.Warn().Str("type", p.Type).Str("from", sender).Msg("unexpected packet during join")
		}
	}
}

// handleJoin splits this node's range and hands the upper half to the
// joining node: transfer the keys that move, point the old successor's
// predecessor at the joiner, then confirm with a success packet.
func (n *Node) handleJoin(p *types.Packet, sender string) {
	low, high := n.hashRange.Low, n.hashRange.High
	mid := 1 + (high+low)/2
	if mid < 0 {
		mid = -mid + 1
	}
	self := n.myInfo
	oldSucc := n.succInfo
	successPkt := &types.Packet{
		Type:      types.TypeSuccess,
		PredInfo:  &self,
		SuccInfo:  &oldSucc,
		HashRange: &types.HashRange{Low: mid, High: high},
	}

	n.succInfo = types.NodeInfo{Adr: sender, FirstHash: mid}
	n.addRoute(n.succInfo)
	n.hashRange = types.HashRange{Low: low, High: mid - 1}

	newSucc := n.succInfo
	n.send(&types.Packet{
		Type:       types.TypeUpdate,
		SenderInfo: &self,
		PredInfo:   &newSucc,
	}, oldSucc.Adr)

	for key, val := range n.store.Entries() {
		if types.Hashit(key) >= mid {
			k, v := key, val
			n.send(&types.Packet{
				Type:       types.TypeTransfer,
				Key:        &k,
				Val:        &v,
				SenderInfo: &self,
			}, sender)
			n.store.Remove(key)
		}
	}
	n.send(successPkt, sender)
	n.Info().
		Str("joiner", n.succInfo.String()).
		Str("hashRange", n.hashRange.String()).
		Msg("split range for joining node")
}

// handleUpdate applies any present subset of predInfo, succInfo, hashRange.
func (n *Node) handleUpdate(p *types.Packet) {
	if p.PredInfo != nil {
		n.predInfo = *p.PredInfo
	}
	if p.SuccInfo != nil {
		n.succInfo = *p.SuccInfo
		n.addRoute(n.succInfo)
	}
	if p.HashRange != nil {
		n.hashRange = *p.HashRange
		n.myInfo.FirstHash = n.hashRange.Low
	}
}

// handleLeave detects this node's own leave circling back; any other leave
// is forgotten from the routing table and forwarded along the ring.
func (n *Node) handleLeave(p *types.Packet) {
	if p.SenderInfo.Adr == n.myInfo.Adr {
		if n.leaveDone == nil {
			n.Warn().Msg("own leave packet received without a pending leave")
			return
		}
		n.finishLeave()
		return
	}
	n.removeRoute(*p.SenderInfo)
	n.send(p, n.succInfo.Adr)
}

// startLeave originates the leave packet. The rest of the procedure runs in
// finishLeave once the packet has circled back.
func (n *Node) startLeave(done chan struct{}) {
	if n.leaveDone != nil {
		close(done)
		return
	}
	n.leaveDone = done
	self := n.myInfo
	n.send(&types.Packet{
		Type:       types.TypeLeave,
		SenderInfo: &self,
	}, n.succInfo.Adr)
	n.Info().Str("succ", n.succInfo.String()).Msg("leaving ring")
}

// finishLeave hands every stored pair to the predecessor, stitches the
// predecessor and successor together, and clears all local state.
func (n *Node) finishLeave() {
	self := n.myInfo
	for key, val := range n.store.Entries() {
		k, v := key, val
		n.send(&types.Packet{
			Type:       types.TypeTransfer,
			Key:        &k,
			Val:        &v,
			SenderInfo: &self,
		}, n.predInfo.Adr)
	}
	succ := n.succInfo
	n.send(&types.Packet{
		Type:       types.TypeUpdate,
		SenderInfo: &self,
		SuccInfo:   &succ,
		HashRange:  &types.HashRange{Low: n.predInfo.FirstHash, High: n.hashRange.High},
	}, n.predInfo.Adr)
	pred := n.predInfo
	n.send(&types.Packet{
		Type:       types.TypeUpdate,
		SenderInfo: &self,
		PredInfo:   &pred,
	}, n.succInfo.Adr)

	n.store.Clear()
	if n.cache != nil {
		n.cache.Clear()
	}
	n.rteTbl = nil
	n.stopped = true
	close(n.leaveDone)
	n.Info().Msg("left ring")
}
