package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockS3Client struct {
	err error
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &s3.HeadBucketOutput{}, nil
}

type mockSQSClient struct {
	err error
}

func (m *mockSQSClient) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

func TestChecker_Check_Shallow(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := DefaultConfig("test-service", logger)
	checker := NewChecker(config)

	status := checker.Check(context.Background(), false)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if status.Service != "test-service" {
		t.Errorf("Service = %s, want test-service", status.Service)
	}
	if len(status.Checks) != 0 {
		t.Errorf("Checks should be empty for shallow check, got %d", len(status.Checks))
	}
}

func TestChecker_Check_Deep_AllHealthy(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := &Config{
		ServiceName:     "test-service",
		S3Client:        &mockS3Client{},
		SQSClient:       &mockSQSClient{},
		DB:              &mockPinger{},
		RawBucket:       "raw-bucket",
		ProcessedBucket: "processed-bucket",
		SQSQueueURL:     "https://sqs.test",
		Logger:          logger,
		CacheTTL:        time.Second,
		CheckTimeout:    time.Second,
		DeepCheckLimit:  time.Millisecond,
	}
	checker := NewChecker(config)

	status := checker.Check(context.Background(), true)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if len(status.Checks) != 4 {
		t.Errorf("Checks should have 4 entries, got %d", len(status.Checks))
	}
	for _, name := range []string{"s3_raw", "s3_processed", "sqs", "database"} {
		if status.Checks[name].Status != "healthy" {
			t.Errorf("%s check status = %s, want healthy", name, status.Checks[name].Status)
		}
	}
}

func TestChecker_Check_Deep_Degraded(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := &Config{
		ServiceName:    "test-service",
		S3Client:       &mockS3Client{err: errors.New("s3 error")},
		SQSClient:      &mockSQSClient{},
		RawBucket:      "raw-bucket",
		SQSQueueURL:    "https://sqs.test",
		Logger:         logger,
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)

	status := checker.Check(context.Background(), true)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["s3_raw"].Status != "unhealthy" {
		t.Errorf("s3_raw check status = %s, want unhealthy", status.Checks["s3_raw"].Status)
	}
	if status.Checks["s3_raw"].Error != "s3 error" {
		t.Errorf("s3_raw check error = %s, want 's3 error'", status.Checks["s3_raw"].Error)
	}
}

func TestChecker_Check_Deep_DBUnhealthy(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := &Config{
		ServiceName:    "test-service",
		DB:             &mockPinger{err: errors.New("connection refused")},
		Logger:         logger,
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)

	status := checker.Check(context.Background(), true)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["database"].Status != "unhealthy" {
		t.Errorf("database check status = %s, want unhealthy", status.Checks["database"].Status)
	}
}

func TestChecker_Check_Caching(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := &Config{
		ServiceName:    "test-service",
		Logger:         logger,
		CacheTTL:       time.Hour,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)

	status1 := checker.Check(context.Background(), false)
	status2 := checker.Check(context.Background(), false)

	if status1.Timestamp != status2.Timestamp {
		t.Error("Cached result should have same timestamp")
	}
}

func TestChecker_CanPerformDeepCheck(t *testing.T) {
	config := &Config{
		ServiceName:    "test-service",
		DeepCheckLimit: 50 * time.Millisecond,
	}
	checker := NewChecker(config)

	if !checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = false initially")
	}

	checker.RecordDeepCheck()

	if checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = true immediately after recording")
	}

	time.Sleep(60 * time.Millisecond)

	if !checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = false after limit passed")
	}
}

func TestChecker_Handler(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := DefaultConfig("test-service", logger)
	checker := NewChecker(config)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()

	checker.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusOK)
	}

	var status Status
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
}

func TestChecker_DeepHandler_RateLimited(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := &Config{
		ServiceName:    "test-service",
		Logger:         logger,
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Hour,
	}
	checker := NewChecker(config)

	checker.RecordDeepCheck()

	req := httptest.NewRequest("GET", "/health/deep", nil)
	rr := httptest.NewRecorder()

	checker.DeepHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusTooManyRequests)
	}

	if rr.Header().Get("Retry-After") != "10" {
		t.Errorf("Retry-After = %s, want 10", rr.Header().Get("Retry-After"))
	}
}
