package wireproto

import gogoproto "github.com/gogo/protobuf/proto"

// ResponseStatus classifies a Response the way clusterrpc's
// RPCResponse_Status enum does, collapsed to the three outcomes the
// invocation engine actually distinguishes when classifying an inbox
// value: a clean result, a retryable failure, or a terminal error.
type ResponseStatus int32

const (
	StatusOK        ResponseStatus = 0
	StatusRetryable ResponseStatus = 1
	StatusError     ResponseStatus = 2
)

// Response is the payload carried back inside an Envelope replying to a
// dispatched operation. Status OK payload carries either the operation's
// raw result bytes (decoded by whatever collaborator understands that
// service) or, for the reserved liveness probe, a marshaled
// IsStillExecutingResponse.
type Response struct {
	Status       *int32 `protobuf:"varint,1,opt,name=status" json:"status,omitempty"`
	ErrorMessage *string `protobuf:"bytes,2,opt,name=error_message,json=errorMessage" json:"error_message,omitempty"`
	Payload      []byte  `protobuf:"bytes,3,opt,name=payload" json:"payload,omitempty"`
}

func (m *Response) Reset()         { *m = Response{} }
func (m *Response) String() string { return gogoproto.CompactTextString(m) }
func (*Response) ProtoMessage()    {}

func (m *Response) GetStatus() ResponseStatus {
	if m != nil && m.Status != nil {
		return ResponseStatus(*m.Status)
	}
	return StatusOK
}

func (m *Response) GetErrorMessage() string {
	if m != nil && m.ErrorMessage != nil {
		return *m.ErrorMessage
	}
	return ""
}

func (m *Response) GetPayload() []byte {
	if m != nil {
		return m.Payload
	}
	return nil
}

// NewOKResponse builds a successful Response carrying payload.
func NewOKResponse(payload []byte) *Response {
	status := int32(StatusOK)
	return &Response{Status: &status, Payload: payload}
}

// NewRetryableResponse builds a Response the caller should classify as a
// RetryableError, e.g. "wrong target", "overloaded".
func NewRetryableResponse(reason string) *Response {
	status := int32(StatusRetryable)
	return &Response{Status: &status, ErrorMessage: &reason}
}

// NewErrorResponse builds a Response the caller should classify as a
// terminal ExecutionError.
func NewErrorResponse(reason string) *Response {
	status := int32(StatusError)
	return &Response{Status: &status, ErrorMessage: &reason}
}

// MarshalResponse encodes r for placement in an Envelope's Payload field.
func MarshalResponse(r *Response) ([]byte, error) {
	return gogoproto.Marshal(r)
}

// UnmarshalResponse decodes an Envelope payload previously produced by
// MarshalResponse.
func UnmarshalResponse(b []byte, r *Response) error {
	return gogoproto.Unmarshal(b, r)
}
