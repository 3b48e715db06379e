package wireproto

import "testing"

func TestResponseRoundTripOK(t *testing.T) {
	r := NewOKResponse([]byte{9, 9, 9})
	b, err := MarshalResponse(r)
	if err != nil {
		t.Fatalf("MarshalResponse: %v", err)
	}
	got := &Response{}
	if err := UnmarshalResponse(b, got); err != nil {
		t.Fatalf("UnmarshalResponse: %v", err)
	}
	if got.GetStatus() != StatusOK {
		t.Fatalf("status = %v, want StatusOK", got.GetStatus())
	}
	if string(got.GetPayload()) != string([]byte{9, 9, 9}) {
		t.Fatalf("payload = %v", got.GetPayload())
	}
}

func TestResponseRoundTripRetryable(t *testing.T) {
	r := NewRetryableResponse("wrong target")
	b, _ := MarshalResponse(r)
	got := &Response{}
	if err := UnmarshalResponse(b, got); err != nil {
		t.Fatalf("UnmarshalResponse: %v", err)
	}
	if got.GetStatus() != StatusRetryable {
		t.Fatalf("status = %v, want StatusRetryable", got.GetStatus())
	}
	if got.GetErrorMessage() != "wrong target" {
		t.Fatalf("error message = %q", got.GetErrorMessage())
	}
}

func TestResponseRoundTripError(t *testing.T) {
	r := NewErrorResponse("boom")
	b, _ := MarshalResponse(r)
	got := &Response{}
	if err := UnmarshalResponse(b, got); err != nil {
		t.Fatalf("UnmarshalResponse: %v", err)
	}
	if got.GetStatus() != StatusError {
		t.Fatalf("status = %v, want StatusError", got.GetStatus())
	}
	if got.GetErrorMessage() != "boom" {
		t.Fatalf("error message = %q", got.GetErrorMessage())
	}
}
