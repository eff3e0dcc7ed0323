package storage

import (
	"context"
	"time"
)

// UploadInput representa uma operação de upload simples.
type UploadInput struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// UploadResult descreve o artefato persistido.
type UploadResult struct {
	URL  string
	ETag string
}

// Client define o comportamento necessário sobre um bucket:
// enviar blobs e emitir URLs assinadas de leitura com validade limitada.
type Client interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
	PresignGet(key string, expiry time.Duration) (string, error)
}
