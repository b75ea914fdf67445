package token

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	want := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

	require.NoError(t, Save(path, want))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
}

func TestNewFileSource(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileSource(context.Background(), &oauth2.Config{}, filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, Save(empty, &oauth2.Token{}))
	_, err = NewFileSource(context.Background(), &oauth2.Config{}, empty)
	require.Error(t, err)

	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, Save(valid, &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}))
	src, err := NewFileSource(context.Background(), &oauth2.Config{}, valid)
	require.NoError(t, err)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
}
