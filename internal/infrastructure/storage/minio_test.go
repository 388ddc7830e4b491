package storage

import (
	"strings"
	"testing"

	"github.com/clientdesk/clients-api/internal/infrastructure/config"
)

func TestNewMinioStorage_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MinioConfig
		want string
	}{
		{"missing endpoint", config.MinioConfig{AccessKey: "a", SecretKey: "s", Bucket: "b"}, "endpoint"},
		{"missing keys", config.MinioConfig{Endpoint: "localhost:9000", Bucket: "b"}, "access key"},
		{"missing bucket", config.MinioConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}, "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMinioStorage(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewMinioStorage_Valid(t *testing.T) {
	s, err := NewMinioStorage(config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "avatars",
	})
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	if s.Bucket() != "avatars" {
		t.Fatalf("unexpected bucket %s", s.Bucket())
	}
}
