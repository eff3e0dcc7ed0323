package storage

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T) *S3Client {
	t.Helper()
	client, err := NewS3Client(S3Config{
		Endpoint:  "https://storage.example.com",
		Region:    "auto",
		Bucket:    "case-documents",
		AccessKey: "AKIA_TEST",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}
	client.now = func() time.Time {
		return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	}
	return client
}

func TestPresignGet(t *testing.T) {
	client := testClient(t)

	signed, err := client.PresignGet("caso-1/identificacao_abc.pdf", time.Hour)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("url inválida: %v", err)
	}

	if !strings.HasPrefix(u.Path, "/case-documents/caso-1/") {
		t.Fatalf("path inesperado: %s", u.Path)
	}

	q := u.Query()
	if q.Get("X-Amz-Algorithm") != "AWS4-HMAC-SHA256" {
		t.Fatalf("algoritmo inesperado: %s", q.Get("X-Amz-Algorithm"))
	}
	if q.Get("X-Amz-Expires") != "3600" {
		t.Fatalf("expiração inesperada: %s", q.Get("X-Amz-Expires"))
	}
	if q.Get("X-Amz-Date") != "20260314T103000Z" {
		t.Fatalf("data inesperada: %s", q.Get("X-Amz-Date"))
	}
	if !strings.Contains(q.Get("X-Amz-Credential"), "20260314/auto/s3/aws4_request") {
		t.Fatalf("credential scope inesperado: %s", q.Get("X-Amz-Credential"))
	}
	if q.Get("X-Amz-Signature") == "" {
		t.Fatal("assinatura ausente")
	}
}

func TestPresignGetDeterministic(t *testing.T) {
	client := testClient(t)

	a, err := client.PresignGet("caso-1/laudo.pdf", 30*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	b, err := client.PresignGet("caso-1/laudo.pdf", 30*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if a != b {
		t.Fatal("assinatura deveria ser determinística para mesmo instante")
	}
}

func TestPresignGetRequiresKey(t *testing.T) {
	client := testClient(t)
	if _, err := client.PresignGet("  ", time.Hour); err == nil {
		t.Fatal("esperava erro para chave vazia")
	}
}
