package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Unmarshal_GetRequest(t *testing.T) {
	payload := "CSE473 DHTPv0.1\ntype:get\nkey:dungeons\ntag:12345\nttl:100\n"
	p, err := Unmarshal([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, TypeGet, p.Type)
	require.Equal(t, "dungeons", *p.Key)
	require.Equal(t, int32(12345), *p.Tag)
	require.Equal(t, int32(100), *p.TTL)
	require.Nil(t, p.Val)
	require.NoError(t, p.Check())
}

func Test_Unmarshal_BadMagic(t *testing.T) {
	_, err := Unmarshal([]byte("HTTP/1.1 200 OK\ntype:get\n"))
	require.Error(t, err)
}

func Test_Unmarshal_ValWithColons(t *testing.T) {
	payload := "CSE473 DHTPv0.1\ntype:put\nkey:k\nval:http://a:b/c\n"
	p, err := Unmarshal([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, "http://a:b/c", *p.Val)
}

func Test_Unmarshal_AddressFields(t *testing.T) {
	payload := "CSE473 DHTPv0.1\n" +
		"type:success\n" +
		"tag:7\n" +
		"clientAdr:123.45.67.89:51349\n" +
		"relayAdr:10.0.0.1:4000\n" +
		"hashRange:0:2147483647\n" +
		"succInfo:123.45.6.7:5678:987654321\n"
	p, err := Unmarshal([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, "123.45.67.89:51349", p.ClientAdr)
	require.Equal(t, "10.0.0.1:4000", p.RelayAdr)
	require.Equal(t, HashRange{Low: 0, High: 2147483647}, *p.HashRange)
	require.Equal(t, NodeInfo{Adr: "123.45.6.7:5678", FirstHash: 987654321}, *p.SuccInfo)
}

func Test_Marshal_RoundTrip(t *testing.T) {
	key, val := "dungeons", "dragons"
	tag, ttl := int32(42), int32(95)
	p := &Packet{
		Type:       TypeSuccess,
		Key:        &key,
		Val:        &val,
		Tag:        &tag,
		TTL:        &ttl,
		HashRange:  &HashRange{Low: 1073741824, High: 2147483647},
		SenderInfo: &NodeInfo{Adr: "127.0.0.1:5000", FirstHash: 1073741824},
	}
	buf := p.Marshal()
	require.True(t, strings.HasPrefix(string(buf), Magic+"\n"))
	q, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, p, q)
}

func Test_Marshal_OmitsAbsentFields(t *testing.T) {
	key := "k"
	p := &Packet{Type: TypeGet, Key: &key}
	out := string(p.Marshal())
	require.NotContains(t, out, "val:")
	require.NotContains(t, out, "clientAdr:")
	require.NotContains(t, out, "relayAdr:")
	require.NotContains(t, out, "reason:")
}

func Test_Check_RequiredFields(t *testing.T) {
	key, val := "k", "v"
	self := NodeInfo{Adr: "127.0.0.1:1234", FirstHash: 0}

	cases := []struct {
		name string
		pkt  Packet
		ok   bool
	}{
		{"get ok", Packet{Type: TypeGet, Key: &key}, true},
		{"get missing key", Packet{Type: TypeGet}, false},
		{"put ok", Packet{Type: TypePut, Key: &key}, true},
		{"put missing key", Packet{Type: TypePut}, false},
		{"join ok", Packet{Type: TypeJoin, SenderInfo: &self, PredInfo: &self}, true},
		{"join missing senderInfo", Packet{Type: TypeJoin, PredInfo: &self}, false},
		{"join missing predInfo", Packet{Type: TypeJoin, SenderInfo: &self}, false},
		{"leave ok", Packet{Type: TypeLeave, SenderInfo: &self}, true},
		{"leave missing senderInfo", Packet{Type: TypeLeave}, false},
		{"update ok", Packet{Type: TypeUpdate, SuccInfo: &self}, true},
		{"update empty", Packet{Type: TypeUpdate}, false},
		{"transfer ok", Packet{Type: TypeTransfer, Key: &key, Val: &val, SenderInfo: &self}, true},
		{"transfer missing val", Packet{Type: TypeTransfer, Key: &key, SenderInfo: &self}, false},
		{"success missing hashRange", Packet{Type: TypeSuccess}, false},
		{"failure missing reason", Packet{Type: TypeFailure}, false},
		{"unknown type", Packet{Type: "bogus"}, false},
	}
	for _, c := range cases {
		err := c.pkt.Check()
		if c.ok {
			require.NoError(t, err, c.name)
		} else {
			require.Error(t, err, c.name)
		}
	}
}

func Test_Ttl_Default(t *testing.T) {
	p := &Packet{Type: TypeGet}
	require.Equal(t, int32(DefaultTTL), p.Ttl())
	ttl := int32(3)
	p.TTL = &ttl
	require.Equal(t, int32(3), p.Ttl())
}

func Test_Clone_NoAliasing(t *testing.T) {
	key, val := "k", "v"
	ttl := int32(10)
	p := &Packet{Type: TypeGet, Key: &key, Val: &val, TTL: &ttl}
	q := p.Clone()
	*q.TTL = 9
	q.ClientAdr = "1.2.3.4:5"
	require.Equal(t, int32(10), *p.TTL)
	require.Equal(t, "", p.ClientAdr)
}

func Test_ParseNodeInfo_Malformed(t *testing.T) {
	for _, s := range []string{"", "127.0.0.1", "127.0.0.1:80", "127.0.0.1:80:zzz"} {
		_, err := ParseNodeInfo(s)
		require.Error(t, err, s)
	}
}

func Test_ParseHashRange_Malformed(t *testing.T) {
	for _, s := range []string{"", "17", "a:b", "1:"} {
		_, err := ParseHashRange(s)
		require.Error(t, err, s)
	}
}
