// Package wireproto is the wire format for operations dispatched across the
// network. It is the one piece of "the serialization framework" this core
// actually needs: a small envelope carrying an Operation's routing metadata
// plus an opaque payload, and the concrete IsStillExecuting probe message.
//
// The original clusterrpc repository generates its proto.RPCRequest /
// proto.RPCResponse types from a .proto file that wasn't retrieved into
// this pack; the structs below are hand-written in the same generated-code
// idiom (struct tags consumed by github.com/gogo/protobuf/proto's
// reflection-based Marshal/Unmarshal, with nil-safe GetXxx accessors) so no
// protoc step is required to build this module.
package wireproto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	gogoproto "github.com/gogo/protobuf/proto"
)

// Envelope is the routing-metadata wrapper every dispatched Operation
// travels the wire inside. Payload carries the operation-specific
// serialized fields (e.g. a marshaled IsStillExecutingPayload).
type Envelope struct {
	ServiceName    *string `protobuf:"bytes,1,opt,name=service_name,json=serviceName" json:"service_name,omitempty"`
	PartitionId    *int32  `protobuf:"varint,2,opt,name=partition_id,json=partitionId" json:"partition_id,omitempty"`
	ReplicaIndex   *int32  `protobuf:"varint,3,opt,name=replica_index,json=replicaIndex" json:"replica_index,omitempty"`
	CallerAddress  *string `protobuf:"bytes,4,opt,name=caller_address,json=callerAddress" json:"caller_address,omitempty"`
	CallId         *int64  `protobuf:"varint,5,opt,name=call_id,json=callId" json:"call_id,omitempty"`
	InvocationTime *int64  `protobuf:"varint,6,opt,name=invocation_time,json=invocationTime" json:"invocation_time,omitempty"`
	CallTimeout    *int64  `protobuf:"varint,7,opt,name=call_timeout,json=callTimeout" json:"call_timeout,omitempty"`
	Payload        []byte  `protobuf:"bytes,8,opt,name=payload" json:"payload,omitempty"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return gogoproto.CompactTextString(m) }
func (*Envelope) ProtoMessage()    {}

func (m *Envelope) GetServiceName() string {
	if m != nil && m.ServiceName != nil {
		return *m.ServiceName
	}
	return ""
}

func (m *Envelope) GetPartitionId() int32 {
	if m != nil && m.PartitionId != nil {
		return *m.PartitionId
	}
	return 0
}

func (m *Envelope) GetReplicaIndex() int32 {
	if m != nil && m.ReplicaIndex != nil {
		return *m.ReplicaIndex
	}
	return 0
}

func (m *Envelope) GetCallerAddress() string {
	if m != nil && m.CallerAddress != nil {
		return *m.CallerAddress
	}
	return ""
}

func (m *Envelope) GetCallId() int64 {
	if m != nil && m.CallId != nil {
		return *m.CallId
	}
	return 0
}

func (m *Envelope) GetInvocationTime() int64 {
	if m != nil && m.InvocationTime != nil {
		return *m.InvocationTime
	}
	return 0
}

func (m *Envelope) GetCallTimeout() int64 {
	if m != nil && m.CallTimeout != nil {
		return *m.CallTimeout
	}
	return 0
}

func (m *Envelope) GetPayload() []byte {
	if m != nil {
		return m.Payload
	}
	return nil
}

// Marshal serializes the envelope with gogo/protobuf's reflection-based
// marshaler (no generated Marshal method needed for a message this small).
func Marshal(e *Envelope) ([]byte, error) {
	return gogoproto.Marshal(e)
}

// Unmarshal parses bytes produced by Marshal back into e.
func Unmarshal(b []byte, e *Envelope) error {
	return gogoproto.Unmarshal(b, e)
}

// lengthToSizebuf and sizebufToLength are ported from clusterrpc's
// encode.go length-prefix framing, reused here to frame an Envelope for
// transports (e.g. IPC pipes) that don't provide their own message
// boundaries.
func lengthToSizebuf(l uint64) [8]byte {
	var sizebuf [8]byte
	binary.BigEndian.PutUint64(sizebuf[:], l)
	return sizebuf
}

func sizebufToLength(b [8]byte) uint64 {
	return binary.BigEndian.Uint64(b[:])
}

// FrameBytes prefixes b with its own big-endian 64-bit length.
func FrameBytes(b []byte) []byte {
	buf := new(bytes.Buffer)
	sizebuf := lengthToSizebuf(uint64(len(b)))
	buf.Write(sizebuf[:])
	buf.Write(b)
	return buf.Bytes()
}

// ReadFramed reads one length-prefixed message from r.
func ReadFramed(r io.Reader) ([]byte, error) {
	var sizebuf [8]byte
	if _, err := io.ReadFull(r, sizebuf[:]); err != nil {
		return nil, err
	}
	length := sizebufToLength(sizebuf)
	result := make([]byte, length)
	if _, err := io.ReadFull(r, result); err != nil {
		return nil, errors.New("wireproto: could not read promised length: " + err.Error())
	}
	return result, nil
}
