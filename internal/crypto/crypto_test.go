package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"push-vault-go/internal/config"
	"push-vault-go/internal/models"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCodec(t *testing.T, hexKey string) *Codec {
	t.Helper()
	return NewCodec(NewKeyManager(hexKey, config.EnvDevelopment, zap.NewNop()))
}

func sampleSubscriptions() []models.Subscription {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Subscription{
		{
			ID:        "a1",
			Endpoint:  "https://push.example/abc",
			Keys:      webpush.Keys{P256dh: "X", Auth: "Y"},
			CreatedAt: created,
		},
		{
			ID:        "b2",
			Endpoint:  "https://push.example/def",
			Keys:      webpush.Keys{P256dh: "X2", Auth: "Y2"},
			CreatedAt: created.Add(time.Hour),
		},
	}
}

func TestKeyManager(t *testing.T) {
	tests := []struct {
		name        string
		hexKey      string
		env         string
		wantEnabled bool
		wantLevel   zapcore.Level
		wantLogs    int
	}{
		{name: "valid key", hexKey: testKeyHex, env: config.EnvDevelopment, wantEnabled: true},
		{name: "missing key in development", hexKey: "", env: config.EnvDevelopment, wantLevel: zapcore.WarnLevel, wantLogs: 1},
		{name: "missing key in production", hexKey: "", env: config.EnvProduction, wantLevel: zapcore.ErrorLevel, wantLogs: 1},
		{name: "not hex", hexKey: strings.Repeat("zz", 32), env: config.EnvDevelopment, wantLevel: zapcore.ErrorLevel, wantLogs: 1},
		{name: "short key", hexKey: "0011", env: config.EnvDevelopment, wantLevel: zapcore.ErrorLevel, wantLogs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			km := NewKeyManager(tt.hexKey, tt.env, zap.New(core))

			assert.Equal(t, tt.wantEnabled, km.Enabled())
			require.Equal(t, tt.wantLogs, logs.Len())
			if tt.wantLogs > 0 {
				assert.Equal(t, tt.wantLevel, logs.All()[0].Level)
			}

			key, err := km.Key()
			if tt.wantEnabled {
				require.NoError(t, err)
				assert.Len(t, key, KeySize)
			} else {
				assert.ErrorIs(t, err, ErrKeyUnavailable)
			}
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)

	for _, subs := range [][]models.Subscription{
		sampleSubscriptions(),
		sampleSubscriptions()[:1],
		{},
	} {
		sealed, err := codec.Encrypt(subs)
		require.NoError(t, err)
		assert.Len(t, sealed.Nonce, 12)

		got, err := codec.Decrypt(sealed.Ciphertext, sealed.Nonce)
		require.NoError(t, err)
		assert.Equal(t, subs, got)
	}
}

func TestCodecFreshNonce(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	subs := sampleSubscriptions()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sealed, err := codec.Encrypt(subs)
		require.NoError(t, err)
		require.False(t, seen[string(sealed.Nonce)], "nonce reused")
		seen[string(sealed.Nonce)] = true
	}
}

func TestCodecTamperDetection(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	sealed, err := codec.Encrypt(sampleSubscriptions())
	require.NoError(t, err)

	flip := func(b []byte, i int) []byte {
		out := append([]byte(nil), b...)
		out[i/8] ^= 1 << (i % 8)
		return out
	}

	for i := 0; i < len(sealed.Ciphertext)*8; i++ {
		got, err := codec.Decrypt(flip(sealed.Ciphertext, i), sealed.Nonce)
		require.ErrorIs(t, err, ErrDecrypt, "ciphertext bit %d", i)
		require.Nil(t, got)
	}
	for i := 0; i < len(sealed.Nonce)*8; i++ {
		got, err := codec.Decrypt(sealed.Ciphertext, flip(sealed.Nonce, i))
		require.ErrorIs(t, err, ErrDecrypt, "nonce bit %d", i)
		require.Nil(t, got)
	}
}

func TestCodecDecryptFailures(t *testing.T) {
	codec := newTestCodec(t, testKeyHex)
	sealed, err := codec.Encrypt(sampleSubscriptions())
	require.NoError(t, err)

	other := newTestCodec(t, strings.Repeat("ab", 32))
	_, err = other.Decrypt(sealed.Ciphertext, sealed.Nonce)
	assert.ErrorIs(t, err, ErrDecrypt, "wrong key")

	_, err = codec.Decrypt(sealed.Ciphertext[:10], sealed.Nonce)
	assert.ErrorIs(t, err, ErrDecrypt, "truncated")

	_, err = codec.Decrypt(sealed.Ciphertext, sealed.Nonce[:8])
	assert.ErrorIs(t, err, ErrDecrypt, "short nonce")

	_, err = codec.Decrypt(nil, nil)
	assert.ErrorIs(t, err, ErrDecrypt, "empty")
}

func TestCodecDisabled(t *testing.T) {
	for _, hexKey := range []string{"", "not-a-key"} {
		codec := newTestCodec(t, hexKey)
		assert.False(t, codec.Enabled())

		sealed, err := codec.Encrypt(sampleSubscriptions())
		assert.ErrorIs(t, err, ErrKeyUnavailable)
		assert.Nil(t, sealed)

		subs, err := codec.Decrypt([]byte("x"), make([]byte, 12))
		assert.ErrorIs(t, err, ErrKeyUnavailable)
		assert.Nil(t, subs)
	}
}

func TestHashUserID(t *testing.T) {
	h := HashUserID("u1")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashUserID("u1"))
	assert.NotEqual(t, h, HashUserID("u2"))
	assert.NotContains(t, h, "u1")
	assert.Equal(t, "bb82030dbc2bcaba32a90bf2e207a84a856fc5f033b77c480836ab6f77f40f19", h)
}
