package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirebaseTokenRole(t *testing.T) {
	tok := &FirebaseToken{UID: "u1", Claims: map[string]interface{}{"role": "operator"}}
	assert.Equal(t, "operator", tok.Role())
	assert.Equal(t, "", (&FirebaseToken{UID: "u2"}).Role())
	assert.Equal(t, "", (&FirebaseToken{Claims: map[string]interface{}{"role": 7}}).Role())

	var nilTok *FirebaseToken
	assert.Equal(t, "", nilTok.Role())
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = NewRedis(context.Background(), mr.Addr())
	assert.Error(t, err)
}
