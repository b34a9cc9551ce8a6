package models

import (
	"net/url"
	"strings"
)

// UploadNotification is the envelope S3 delivers to the queue when an
// object is created in the raw bucket. Self-test envelopes emitted by the
// storage service carry Service/Event instead of Records.
type UploadNotification struct {
	Records []NotificationRecord `json:"Records"`

	// Self-test discriminators.
	Service string `json:"Service,omitempty"`
	Event   string `json:"Event,omitempty"`
}

// NotificationRecord describes a single created object.
type NotificationRecord struct {
	S3 S3Entity `json:"s3"`
}

// S3Entity holds the bucket and object of a notification record.
type S3Entity struct {
	Bucket BucketInfo `json:"bucket"`
	Object ObjectInfo `json:"object"`
}

// BucketInfo names the bucket the object was created in.
type BucketInfo struct {
	Name string `json:"name"`
}

// ObjectInfo identifies the created object.
type ObjectInfo struct {
	Key string `json:"key"`
}

// IsTestEvent reports whether the envelope is a storage-service self-test
// (connectivity check) rather than a genuine upload notification.
func (n *UploadNotification) IsTestEvent() bool {
	return n.Service != "" && n.Event == "s3:TestEvent"
}

// ParseObjectKey derives the upload identity from a raw-bucket object key.
// The first path segment is the owner's user ID and the filename stem of the
// final segment is the video ID: "u1/abc123.mp4" -> ("u1", "abc123").
// Keys arrive URL-encoded in notifications and are decoded first.
func ParseObjectKey(key string) (userID, videoID string, err error) {
	if decoded, decErr := url.QueryUnescape(key); decErr == nil {
		key = decoded
	}

	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return "", "", ErrMalformedObjectKey
	}

	userID = parts[0]
	stem, _, _ := strings.Cut(parts[len(parts)-1], ".")
	if userID == "" || stem == "" {
		return "", "", ErrMalformedObjectKey
	}

	return userID, stem, nil
}
