package wireproto

import (
	"bytes"
	"testing"
)

func TestIsStillExecutingRoundTrip(t *testing.T) {
	ids := []int64{0, 1, 42, 1 << 40, 1<<63 - 1}

	for _, id := range ids {
		b, err := MarshalIsStillExecuting(id)
		if err != nil {
			t.Fatalf("Marshal(%d): %v", id, err)
		}
		got, err := UnmarshalIsStillExecuting(b)
		if err != nil {
			t.Fatalf("Unmarshal(%d): %v", id, err)
		}
		if got != id {
			t.Fatalf("round trip %d -> %d", id, got)
		}
	}
}

func TestIsStillExecutingResponseRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		b, err := MarshalIsStillExecutingResponse(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		got, err := UnmarshalIsStillExecutingResponse(b)
		if err != nil {
			t.Fatalf("Unmarshal(%v): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %v -> %v", v, got)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	svc := "LockService"
	caller := "10.0.0.1:9000"
	e := &Envelope{
		ServiceName:    &svc,
		PartitionId:    int32Ptr(7),
		ReplicaIndex:   int32Ptr(0),
		CallerAddress:  &caller,
		CallId:         int64Ptr(123456),
		InvocationTime: int64Ptr(99),
		CallTimeout:    int64Ptr(5000),
		Payload:        []byte{1, 2, 3},
	}

	b, err := Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got := &Envelope{}
	if err := Unmarshal(b, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.GetServiceName() != svc || got.GetPartitionId() != 7 || got.GetCallId() != 123456 ||
		got.GetCallTimeout() != 5000 || !bytes.Equal(got.GetPayload(), []byte{1, 2, 3}) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("hello, grid")
	framed := FrameBytes(payload)

	got, err := ReadFramed(bytes.NewReader(framed))
	if err != nil {
		t.Fatalf("ReadFramed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadFramed = %q, want %q", got, payload)
	}
}

func int32Ptr(v int32) *int32 { return &v }
func int64Ptr(v int64) *int64 { return &v }
