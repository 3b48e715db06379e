package wireproto

import gogoproto "github.com/gogo/protobuf/proto"

// IsStillExecutingPayload is the liveness-probe wire payload: one 64-bit
// call id, framed by the surrounding Envelope. It round-trips:
// Unmarshal(Marshal(x)).CallId == x.CallId.
type IsStillExecutingPayload struct {
	CallId *int64 `protobuf:"varint,1,opt,name=call_id,json=callId" json:"call_id,omitempty"`
}

func (m *IsStillExecutingPayload) Reset()         { *m = IsStillExecutingPayload{} }
func (m *IsStillExecutingPayload) String() string { return gogoproto.CompactTextString(m) }
func (*IsStillExecutingPayload) ProtoMessage()    {}

func (m *IsStillExecutingPayload) GetCallId() int64 {
	if m != nil && m.CallId != nil {
		return *m.CallId
	}
	return 0
}

// MarshalIsStillExecuting encodes callID into the IsStillExecuting wire
// payload.
func MarshalIsStillExecuting(callID int64) ([]byte, error) {
	return gogoproto.Marshal(&IsStillExecutingPayload{CallId: &callID})
}

// UnmarshalIsStillExecuting decodes a payload produced by
// MarshalIsStillExecuting back into a call id.
func UnmarshalIsStillExecuting(b []byte) (int64, error) {
	p := &IsStillExecutingPayload{}
	if err := gogoproto.Unmarshal(b, p); err != nil {
		return 0, err
	}
	return p.GetCallId(), nil
}

// IsStillExecutingResponse is the boolean answer to a liveness probe,
// routed back through the probe's own Invocation Future.
type IsStillExecutingResponse struct {
	Executing *bool `protobuf:"varint,1,opt,name=executing" json:"executing,omitempty"`
}

func (m *IsStillExecutingResponse) Reset()         { *m = IsStillExecutingResponse{} }
func (m *IsStillExecutingResponse) String() string { return gogoproto.CompactTextString(m) }
func (*IsStillExecutingResponse) ProtoMessage()    {}

func (m *IsStillExecutingResponse) GetExecuting() bool {
	if m != nil && m.Executing != nil {
		return *m.Executing
	}
	return false
}

func MarshalIsStillExecutingResponse(executing bool) ([]byte, error) {
	return gogoproto.Marshal(&IsStillExecutingResponse{Executing: &executing})
}

func UnmarshalIsStillExecutingResponse(b []byte) (bool, error) {
	p := &IsStillExecutingResponse{}
	if err := gogoproto.Unmarshal(b, p); err != nil {
		return false, err
	}
	return p.GetExecuting(), nil
}
