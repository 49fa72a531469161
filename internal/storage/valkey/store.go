// Package valkey provides a kv.Store backed by a Valkey server.
package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const defaultConnectTimeout = 5 * time.Second

type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Store wraps a valkey-go client behind the kv.Store interface. All keys are
// namespaced with the configured prefix.
type Store struct {
	client    valkeylib.Client
	keyPrefix string
}

// NewStore connects to Valkey and verifies the connection with a ping.
// The caller is responsible for calling Close when done.
func NewStore(cfg Config) (*Store, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &Store{client: client, keyPrefix: prefix}, nil
}

func (s *Store) key(k string) string {
	return s.keyPrefix + k
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build())
	value, err := resp.ToString()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.client.Do(ctx, s.client.B().Set().Key(s.key(key)).Value(value).Build()).Error()
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.key(key)).Build()).Error()
}

func (s *Store) Close() {
	s.client.Close()
}
