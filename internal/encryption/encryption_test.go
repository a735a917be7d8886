package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	bundle, err := c.EncryptLocation(1.5533, 110.3592)
	require.NoError(t, err)

	var parsed Bundle
	require.NoError(t, json.Unmarshal([]byte(bundle), &parsed))
	assert.NotEmpty(t, parsed.IV)
	assert.NotEmpty(t, parsed.Ciphertext)
	assert.NotEmpty(t, parsed.Tag)

	lat, lon, err := c.DecryptLocation(bundle)
	require.NoError(t, err)
	assert.InDelta(t, 1.5533, lat, 1e-5)
	assert.InDelta(t, 110.3592, lon, 1e-5)
}

func TestEncryptProducesFreshNonces(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	first, err := c.EncryptLocation(1.0, 2.0)
	require.NoError(t, err)
	second, err := c.EncryptLocation(1.0, 2.0)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("not base64 !!!")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfiguration))

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = New(short)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfiguration))
}

func TestDecryptRejectsTampering(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	bundle, err := c.EncryptLocation(3.14, 15.9)
	require.NoError(t, err)

	var parsed Bundle
	require.NoError(t, json.Unmarshal([]byte(bundle), &parsed))
	parsed.Tag = base64.StdEncoding.EncodeToString(make([]byte, 16))
	tampered, err := json.Marshal(parsed)
	require.NoError(t, err)

	_, _, err = c.DecryptLocation(string(tampered))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryEncryption))
}

func TestDecryptRejectsGarbage(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	_, _, err = c.DecryptLocation("{not json")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryEncryption))
}
