package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CredentialSupplier выдаёт ключ API для провайдера.
// Ключи непрозрачны: клиент их не разбирает и не логирует.
type CredentialSupplier interface {
	Credential(ctx context.Context, provider string) (string, error)
}

// EnvCredentials читает ключи из SHELLY_API_KEY_<PROVIDER>
// (имя в верхнем регистре, '-' заменяется на '_').
type EnvCredentials struct{}

// EnvVar возвращает имя переменной окружения для провайдера.
func EnvVar(provider string) string {
	return "SHELLY_API_KEY_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
}

// Credential реализует CredentialSupplier.
func (EnvCredentials) Credential(_ context.Context, provider string) (string, error) {
	key := os.Getenv(EnvVar(provider))
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingCredentials, EnvVar(provider))
	}
	return key, nil
}

// StaticCredentials — ключи из карты (тесты, конфигурация).
type StaticCredentials map[string]string

// Credential реализует CredentialSupplier.
func (s StaticCredentials) Credential(_ context.Context, provider string) (string, error) {
	key, ok := s[provider]
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingCredentials, provider)
	}
	return key, nil
}

type credentialsKey struct{}

// WithCredentials кладёт ключи запроса в контекст. Они имеют приоритет
// над CredentialSupplier клиента (ключи, пришедшие в заголовках API).
func WithCredentials(ctx context.Context, keys map[string]string) context.Context {
	if len(keys) == 0 {
		return ctx
	}
	return context.WithValue(ctx, credentialsKey{}, keys)
}

func credentialsFromContext(ctx context.Context, provider string) (string, bool) {
	keys, ok := ctx.Value(credentialsKey{}).(map[string]string)
	if !ok {
		return "", false
	}
	key, ok := keys[provider]
	return key, ok && key != ""
}
