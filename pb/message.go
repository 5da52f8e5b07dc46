// Package pb implements the wire schema from spec.md §6.1: the six DHT RPC
// message variants, framed as protobuf. There is no protoc code-generation
// step here (out of scope for this exercise); Marshal/Unmarshal are
// written by hand in the shape protoc-gen-go would emit, built on
// google.golang.org/protobuf's low-level wire helpers
// (google.golang.org/protobuf/encoding/protowire) the same way
// go-libp2p-kad-dht's own generated pb/dht.pb.go does it.
package pb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType enumerates the six RPCs (spec.md §6.1).
type MessageType int32

const (
	PUT_VALUE      MessageType = 0
	GET_VALUE      MessageType = 1
	ADD_PROVIDER   MessageType = 2
	GET_PROVIDERS  MessageType = 3
	FIND_NODE      MessageType = 4
	PING           MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case PUT_VALUE:
		return "PUT_VALUE"
	case GET_VALUE:
		return "GET_VALUE"
	case ADD_PROVIDER:
		return "ADD_PROVIDER"
	case GET_PROVIDERS:
		return "GET_PROVIDERS"
	case FIND_NODE:
		return "FIND_NODE"
	case PING:
		return "PING"
	default:
		return fmt.Sprintf("MessageType(%d)", int32(t))
	}
}

// Connectedness mirrors spec.md §6.1's Peer.connection enum.
type Connectedness int32

const (
	NOT_CONNECTED Connectedness = 0
	CONNECTED     Connectedness = 1
	CAN_CONNECT   Connectedness = 2
	CANNOT_CONNECT Connectedness = 3
)

// Peer is the wire form of a peer + its known addresses.
type Peer struct {
	ID         []byte
	Addrs      [][]byte
	Connection Connectedness
}

// Record is the wire form of a stored DHT record (spec.md §3 "Record").
type Record struct {
	Key          []byte
	Value        []byte
	Author       []byte
	Signature    []byte
	TimeReceived string
}

// Message is the single wire envelope for every RPC (spec.md §6.1).
type Message struct {
	Type            MessageType
	Key             []byte
	Record          *Record
	CloserPeers     []*Peer
	ProviderPeers   []*Peer
	ClusterLevelRaw int32
}

// Field numbers, chosen to match spec.md §6.1's logical schema one-to-one.
const (
	fieldMessageType      = 1
	fieldMessageKey       = 2
	fieldMessageRecord    = 3
	fieldMessageCloser    = 4
	fieldMessageProvider  = 5
	fieldMessageClusterLv = 6

	fieldRecordKey     = 1
	fieldRecordValue   = 2
	fieldRecordAuthor  = 3
	fieldRecordSig     = 4
	fieldRecordTime    = 5

	fieldPeerID    = 1
	fieldPeerAddrs = 2
	fieldPeerConn  = 3
)

// Marshal encodes m as a length-prefix-free protobuf message, suitable for
// a single stream write (the host's framing codec handles delimiting).
func (m *Message) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldMessageType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	if len(m.Key) > 0 {
		b = protowire.AppendTag(b, fieldMessageKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
	}
	if m.Record != nil {
		rb, err := m.Record.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldMessageRecord, protowire.BytesType)
		b = protowire.AppendBytes(b, rb)
	}
	for _, p := range m.CloserPeers {
		pb, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldMessageCloser, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}
	for _, p := range m.ProviderPeers {
		pb, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldMessageProvider, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}
	if m.ClusterLevelRaw != 0 {
		b = protowire.AppendTag(b, fieldMessageClusterLv, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.ClusterLevelRaw)))
	}
	return b, nil
}

// Unmarshal decodes a single Message from b. It is forgiving of unknown
// fields (skips them) so a future field addition doesn't break older
// peers, matching protobuf's own forward-compatibility contract.
func (m *Message) Unmarshal(b []byte) error {
	*m = Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldMessageType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Type = MessageType(v)
			b = b[n:]
		case fieldMessageKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Key = append([]byte(nil), v...)
			b = b[n:]
		case fieldMessageRecord:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			rec := &Record{}
			if err := rec.Unmarshal(v); err != nil {
				return err
			}
			m.Record = rec
			b = b[n:]
		case fieldMessageCloser:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p := &Peer{}
			if err := p.Unmarshal(v); err != nil {
				return err
			}
			m.CloserPeers = append(m.CloserPeers, p)
			b = b[n:]
		case fieldMessageProvider:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p := &Peer{}
			if err := p.Unmarshal(v); err != nil {
				return err
			}
			m.ProviderPeers = append(m.ProviderPeers, p)
			b = b[n:]
		case fieldMessageClusterLv:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ClusterLevelRaw = int32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// Marshal encodes r.
func (r *Record) Marshal() ([]byte, error) {
	var b []byte
	if len(r.Key) > 0 {
		b = protowire.AppendTag(b, fieldRecordKey, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Key)
	}
	if len(r.Value) > 0 {
		b = protowire.AppendTag(b, fieldRecordValue, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Value)
	}
	if len(r.Author) > 0 {
		b = protowire.AppendTag(b, fieldRecordAuthor, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Author)
	}
	if len(r.Signature) > 0 {
		b = protowire.AppendTag(b, fieldRecordSig, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Signature)
	}
	if r.TimeReceived != "" {
		b = protowire.AppendTag(b, fieldRecordTime, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(r.TimeReceived))
	}
	return b, nil
}

// Unmarshal decodes a single Record from b.
func (r *Record) Unmarshal(b []byte) error {
	*r = Record{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldRecordKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Key = append([]byte(nil), v...)
			b = b[n:]
		case fieldRecordValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Value = append([]byte(nil), v...)
			b = b[n:]
		case fieldRecordAuthor:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Author = append([]byte(nil), v...)
			b = b[n:]
		case fieldRecordSig:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Signature = append([]byte(nil), v...)
			b = b[n:]
		case fieldRecordTime:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.TimeReceived = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// Marshal encodes p.
func (p *Peer) Marshal() ([]byte, error) {
	var b []byte
	if len(p.ID) > 0 {
		b = protowire.AppendTag(b, fieldPeerID, protowire.BytesType)
		b = protowire.AppendBytes(b, p.ID)
	}
	for _, a := range p.Addrs {
		b = protowire.AppendTag(b, fieldPeerAddrs, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	if p.Connection != NOT_CONNECTED {
		b = protowire.AppendTag(b, fieldPeerConn, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Connection))
	}
	return b, nil
}

// Unmarshal decodes a single Peer from b.
func (p *Peer) Unmarshal(b []byte) error {
	*p = Peer{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldPeerID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.ID = append([]byte(nil), v...)
			b = b[n:]
		case fieldPeerAddrs:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Addrs = append(p.Addrs, append([]byte(nil), v...))
			b = b[n:]
		case fieldPeerConn:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Connection = Connectedness(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
