package encryption

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-auth-service/internal/config"
)

func TestPhoneNumberRoundTrip(t *testing.T) {
	m := NewManager(&config.Config{}, nil)

	blob, keyID, err := m.EncryptPhoneNumber(context.Background(), "+14155550100")
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
	assert.NotEmpty(t, keyID)
	assert.NotContains(t, string(blob), "+14155550100")

	plaintext, err := m.DecryptPhoneNumber(context.Background(), blob)
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", plaintext)

	// A cold manager can still open the envelope in dev mode.
	fresh := NewManager(&config.Config{}, nil)
	plaintext, err = fresh.DecryptPhoneNumber(context.Background(), blob)
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", plaintext)

	// The envelope's DEK must base64-decode straight to an AES-256 key.
	var envelope EncryptedData
	require.NoError(t, json.Unmarshal(blob, &envelope))
	dek, err := base64.StdEncoding.DecodeString(envelope.EncryptedDEK)
	require.NoError(t, err)
	assert.Len(t, dek, 32)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	m := NewManager(&config.Config{}, nil)

	_, err := m.DecryptPhoneNumber(context.Background(), []byte("not an envelope"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
