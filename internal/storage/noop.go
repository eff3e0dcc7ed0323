package storage

import (
	"context"
	"errors"
	"time"
)

// NoopClient devolve erro indicando que não há backend configurado.
type NoopClient struct{}

// Upload sempre retorna erro, sinalizando que o recurso não está disponível.
func (NoopClient) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	return nil, errors.New("storage: backend não configurado")
}

// PresignGet sempre retorna erro, sinalizando que o recurso não está disponível.
func (NoopClient) PresignGet(key string, expiry time.Duration) (string, error) {
	return "", errors.New("storage: backend não configurado")
}
