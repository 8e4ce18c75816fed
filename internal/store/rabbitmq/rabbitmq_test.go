package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestTokenMessageRoundTrip(t *testing.T) {
	body, err := encodeToken("pending-request:abc")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeToken(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "pending-request:abc" {
		t.Fatalf("token = %q", got)
	}
}

func TestDecodeTokenRejectsBadBodies(t *testing.T) {
	for _, body := range []string{``, `{}`, `{"job_id":"x"}`, `not json`} {
		if _, err := decodeToken([]byte(body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
	if _, err := encodeToken(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestRetryCount(t *testing.T) {
	if n := retryCount(nil); n != 0 {
		t.Fatalf("nil headers = %d", n)
	}
	if n := retryCount(amqp.Table{retryHeader: int32(2)}); n != 2 {
		t.Fatalf("int32 header = %d", n)
	}
	if n := retryCount(amqp.Table{retryHeader: int64(3)}); n != 3 {
		t.Fatalf("int64 header = %d", n)
	}
	if retryQueue("generation_jobs") != "generation_jobs.retry" {
		t.Fatalf("retry queue name")
	}
}
