package dht

import (
	"fmt"
	"math"

	"github.com/ringkv/dhtp/types"
)

// addRoute records a node in the routing table. The node itself and exact
// duplicates are ignored. When the table is full, the first entry that is
// not the successor is evicted, so the successor always stays routable.
func (n *Node) addRoute(route types.NodeInfo) {
	if route.Adr == n.myInfo.Adr {
		return
	}
	for _, r := range n.rteTbl {
		if r == route {
			return
		}
	}
	if len(n.rteTbl) < n.conf.NumRoutes {
		n.rteTbl = append(n.rteTbl, route)
	} else {
		evicted := false
		for i, r := range n.rteTbl {
			if r != n.succInfo {
				n.rteTbl = append(n.rteTbl[:i], n.rteTbl[i+1:]...)
				n.rteTbl = append(n.rteTbl, route)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
	n.logRoutes()
}

// removeRoute deletes every entry with the given node's address, scanning
// back to front so deletion keeps the remaining indices valid.
func (n *Node) removeRoute(route types.NodeInfo) {
	changed := false
	for i := len(n.rteTbl) - 1; i >= 0; i-- {
		if n.rteTbl[i].Adr == route.Adr {
			n.rteTbl = append(n.rteTbl[:i], n.rteTbl[i+1:]...)
			changed = true
		}
	}
	if changed {
		n.logRoutes()
	}
}

func (n *Node) logRoutes() {
	n.Debug().Str("rteTbl", fmt.Sprintf("%v", n.rteTbl)).Msg("routing table changed")
}

// closestRoute picks the table entry minimizing the clockwise ring distance
// from the entry's firstHash to the target hash. The modulus is 2^31-1, not
// 2^31: deployed peers compute it that way, and interop wins over symmetry.
// Ties keep the last scanned minimum.
func (n *Node) closestRoute(hash int32) (types.NodeInfo, bool) {
	var best types.NodeInfo
	found := false
	min := int32(math.MaxInt32)
	for _, route := range n.rteTbl {
		d := floorMod(hash-route.FirstHash, math.MaxInt32)
		if d <= min {
			min = d
			best = route
			found = true
		}
	}
	return best, found
}

func floorMod(a, m int32) int32 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// forward sends a get/put onward toward the key's owner, charging one hop of
// ttl. An exhausted ttl turns into a failure reply to the client.
func (n *Node) forward(p *types.Packet, hash int32) {
	if p.Ttl() <= 0 {
		reason := "time to live expired"
		ttl := p.Ttl()
		n.send(&types.Packet{
			Type:   types.TypeFailure,
			Reason: &reason,
			Tag:    p.Tag,
			TTL:    &ttl,
		}, p.ClientAdr)
		return
	}
	next, ok := n.closestRoute(hash)
	if !ok {
		n.Warn().Int32("hash", hash).Msg("no route to forward, dropping packet")
		return
	}
	ttl := p.Ttl() - 1
	p.TTL = &ttl
	n.send(p, next.Adr)
}
