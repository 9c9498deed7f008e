package db

import (
	"net/url"
	"testing"

	"github.com/messagestack/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresURL(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{
		Host:     "db.internal",
		Port:     6543,
		User:     "svc",
		Password: "p@ss word",
		DBName:   "messagestack",
		UseSSL:   true,
	}}

	parsed, err := url.Parse(PostgresURL(cfg))
	require.NoError(t, err)

	assert.Equal(t, "postgres", parsed.Scheme)
	assert.Equal(t, "db.internal:6543", parsed.Host)
	assert.Equal(t, "/messagestack", parsed.Path)
	assert.Equal(t, "require", parsed.Query().Get("sslmode"))
	password, _ := parsed.User.Password()
	assert.Equal(t, "p@ss word", password)
}
