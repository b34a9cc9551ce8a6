package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/vodworks/pipeline/pkg/models"
)

type fakeQueue struct {
	deleted int
}

func (f *fakeQueue) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeQueue) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted++
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeLauncher struct {
	keys []string
	err  error
}

func (f *fakeLauncher) Launch(ctx context.Context, inputKey string) error {
	f.keys = append(f.keys, inputKey)
	return f.err
}

type insertCall struct {
	userID  string
	videoID string
	status  models.VideoStatus
}

type fakeLedger struct {
	inserts []insertCall
	seen    map[string]bool
	err     error
}

func (f *fakeLedger) Insert(ctx context.Context, userID, videoID string, status models.VideoStatus) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserts = append(f.inserts, insertCall{userID, videoID, status})
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[videoID] {
		// Conflict skip, matching the upsert contract.
		return 0, nil
	}
	f.seen[videoID] = true
	return int64(len(f.seen)), nil
}

type fakeDeduper struct {
	marked map[string]bool
	err    error
}

func (f *fakeDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.marked == nil {
		f.marked = make(map[string]bool)
	}
	seen := f.marked[key]
	f.marked[key] = true
	return seen, nil
}

func newTestWorker(l *fakeLauncher, led *fakeLedger, d Deduper) *Worker {
	return New(&fakeQueue{}, l, led, d, "https://sqs.test/q", slog.Default())
}

func message(body string) types.Message {
	return types.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("rh1"),
		Body:          aws.String(body),
	}
}

const uploadBody = `{"Records":[{"s3":{"bucket":{"name":"raw"},"object":{"key":"u1/abc123.mp4"}}}]}`

func TestHandleMessage_ValidUpload(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, nil)

	ack := w.HandleMessage(context.Background(), message(uploadBody))
	if !ack {
		t.Fatal("HandleMessage() = false, want ack")
	}

	if len(ledger.inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(ledger.inserts))
	}
	got := ledger.inserts[0]
	if got.userID != "u1" || got.videoID != "abc123" || got.status != models.StatusProcessing {
		t.Errorf("insert = %+v, want {u1 abc123 PROCESSING}", got)
	}

	if len(launcher.keys) != 1 || launcher.keys[0] != "u1/abc123.mp4" {
		t.Errorf("launched keys = %v, want [u1/abc123.mp4]", launcher.keys)
	}
}

func TestHandleMessage_TestEvent(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, nil)

	body := `{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"raw"}`
	ack := w.HandleMessage(context.Background(), message(body))
	if !ack {
		t.Fatal("HandleMessage() = false, want ack for test event")
	}

	if len(ledger.inserts) != 0 {
		t.Errorf("inserts = %d, want 0", len(ledger.inserts))
	}
	if len(launcher.keys) != 0 {
		t.Errorf("launched keys = %v, want none", launcher.keys)
	}
}

func TestHandleMessage_MalformedKey(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, nil)

	body := `{"Records":[{"s3":{"bucket":{"name":"raw"},"object":{"key":"no-separator.mp4"}}}]}`
	ack := w.HandleMessage(context.Background(), message(body))
	if ack {
		t.Fatal("HandleMessage() = true, want no ack for malformed key")
	}

	if len(ledger.inserts) != 0 {
		t.Errorf("inserts = %d, want 0", len(ledger.inserts))
	}
}

func TestHandleMessage_UndecodableBody(t *testing.T) {
	w := newTestWorker(&fakeLauncher{}, &fakeLedger{}, nil)

	ack := w.HandleMessage(context.Background(), message("not json"))
	if ack {
		t.Error("HandleMessage() = true, want no ack for undecodable body")
	}
}

func TestHandleMessage_NilBody(t *testing.T) {
	w := newTestWorker(&fakeLauncher{}, &fakeLedger{}, nil)

	ack := w.HandleMessage(context.Background(), types.Message{MessageId: aws.String("m1")})
	if ack {
		t.Error("HandleMessage() = true, want no ack for nil body")
	}
}

func TestHandleMessage_LaunchFailureStillAcks(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("cluster unavailable")}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, nil)

	ack := w.HandleMessage(context.Background(), message(uploadBody))
	if !ack {
		t.Fatal("HandleMessage() = false, want ack despite launch failure")
	}

	// The record is still persisted; a row stuck in PROCESSING is the
	// accepted symptom of a swallowed launch failure.
	if len(ledger.inserts) != 1 {
		t.Errorf("inserts = %d, want 1", len(ledger.inserts))
	}
}

func TestHandleMessage_LedgerFailureBlocksAck(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{err: errors.New("connection refused")}
	w := newTestWorker(launcher, ledger, nil)

	ack := w.HandleMessage(context.Background(), message(uploadBody))
	if ack {
		t.Error("HandleMessage() = true, want no ack on ledger failure")
	}
}

func TestHandleMessage_RedeliveryIsIdempotent(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, &fakeDeduper{})

	msg := message(uploadBody)
	if ack := w.HandleMessage(context.Background(), msg); !ack {
		t.Fatal("first delivery: HandleMessage() = false, want ack")
	}
	if ack := w.HandleMessage(context.Background(), msg); !ack {
		t.Fatal("redelivery: HandleMessage() = false, want ack")
	}

	if len(ledger.seen) != 1 {
		t.Errorf("distinct ledger rows = %d, want 1", len(ledger.seen))
	}
	if len(launcher.keys) != 1 {
		t.Errorf("job launches = %d, want 1 (redelivery deduplicated)", len(launcher.keys))
	}
}

func TestHandleMessage_DeduperErrorDegradesToLaunch(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, &fakeDeduper{err: errors.New("redis down")})

	ack := w.HandleMessage(context.Background(), message(uploadBody))
	if !ack {
		t.Fatal("HandleMessage() = false, want ack")
	}
	if len(launcher.keys) != 1 {
		t.Errorf("job launches = %d, want 1 when dedup is unavailable", len(launcher.keys))
	}
}

func TestHandleMessage_MultipleRecords(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, nil)

	body := `{"Records":[
		{"s3":{"bucket":{"name":"raw"},"object":{"key":"u1/first.mp4"}}},
		{"s3":{"bucket":{"name":"raw"},"object":{"key":"u2/second.mp4"}}}
	]}`
	ack := w.HandleMessage(context.Background(), message(body))
	if !ack {
		t.Fatal("HandleMessage() = false, want ack")
	}

	if len(ledger.inserts) != 2 {
		t.Fatalf("inserts = %d, want 2", len(ledger.inserts))
	}
	if ledger.inserts[0].videoID != "first" || ledger.inserts[1].videoID != "second" {
		t.Errorf("inserted videoIDs = %v", ledger.inserts)
	}
}

func TestHandleMessage_OneBadRecordBlocksAck(t *testing.T) {
	launcher := &fakeLauncher{}
	ledger := &fakeLedger{}
	w := newTestWorker(launcher, ledger, nil)

	body := `{"Records":[
		{"s3":{"bucket":{"name":"raw"},"object":{"key":"u1/good.mp4"}}},
		{"s3":{"bucket":{"name":"raw"},"object":{"key":"badkey"}}}
	]}`
	ack := w.HandleMessage(context.Background(), message(body))
	if ack {
		t.Fatal("HandleMessage() = true, want no ack when a record fails")
	}

	// The good record was still processed before the failure surfaced.
	if len(ledger.inserts) != 1 {
		t.Errorf("inserts = %d, want 1", len(ledger.inserts))
	}
}
