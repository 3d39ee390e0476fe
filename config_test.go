package ygggo_pg

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecyclingMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    RecyclingMethod
		wantErr bool
	}{
		{in: "Fast", want: Fast},
		{in: "", want: Fast},
		{in: "verified", want: Verified},
		{in: " CLEAN ", want: Clean},
		{in: "Custom:SELECT 1", want: Custom("SELECT 1")},
		{in: "custom: SELECT pg_sleep(0) ", want: Custom("SELECT pg_sleep(0)")},
		{in: "Custom:", wantErr: true},
		{in: "Custom", wantErr: true},
		{in: "Verified:SELECT 1", wantErr: true},
		{in: "Slow", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRecyclingMethod(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRecyclingMethod_TextRoundTrip(t *testing.T) {
	for _, m := range []RecyclingMethod{Fast, Verified, Clean, Custom("SELECT 1")} {
		b, err := m.MarshalText()
		require.NoError(t, err)
		var got RecyclingMethod
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, m, got)
	}

	var cfg ManagerConfig
	require.NoError(t, json.Unmarshal([]byte(`{"recycling_method":"Custom:SELECT 2"}`), &cfg))
	assert.Equal(t, Custom("SELECT 2"), cfg.RecyclingMethod)
}

func TestRecyclingMethod_Query(t *testing.T) {
	q, ok := Fast.query(nil)
	assert.False(t, ok)
	assert.Empty(t, q)

	q, ok = Verified.query(nil)
	assert.True(t, ok)
	assert.Equal(t, pgVerifyQuery, q)

	q, ok = Clean.query(nil)
	assert.True(t, ok)
	assert.Contains(t, q, "DISCARD TEMP")
	assert.Contains(t, q, "pg_advisory_unlock_all()")

	q, ok = Custom("SELECT 3").query(&SQLConnector{})
	assert.True(t, ok)
	assert.Equal(t, "SELECT 3", q)
}

func TestValidatePoolConfig(t *testing.T) {
	assert.NoError(t, ValidatePoolConfig(DefaultPoolConfig()))

	cfg := DefaultPoolConfig()
	cfg.MaxSize = 0
	assert.Error(t, ValidatePoolConfig(cfg))

	cfg = DefaultPoolConfig()
	cfg.Timeouts.Recycle = -time.Second
	assert.Error(t, ValidatePoolConfig(cfg))

	cfg = DefaultPoolConfig()
	cfg.Retry.MaxAttempts = -1
	assert.Error(t, ValidatePoolConfig(cfg))
}

func TestConfig_ConnString(t *testing.T) {
	cfg := Config{
		User:            "app",
		Password:        "se cret'x",
		DBName:          "orders",
		ApplicationName: "worker",
		SSLMode:         "disable",
		Host:            "db1",
		Hosts:           []string{"db2"},
		Port:            5432,
		Ports:           []uint16{5433},
		ConnectTimeout:  1500 * time.Millisecond,
	}
	assert.Equal(t,
		`host=db1,db2 port=5432,5433 user=app password='se cret\'x' dbname=orders application_name=worker sslmode=disable connect_timeout=2`,
		cfg.connString())
}

func TestConfig_ConnConfig(t *testing.T) {
	keepalives := true
	cfg := Config{
		User:               "app",
		Password:           "secret",
		DBName:             "orders",
		ApplicationName:    "worker",
		SSLMode:            "disable",
		Hosts:              []string{"db1", "db2"},
		Ports:              []uint16{5432, 5433},
		ConnectTimeout:     3 * time.Second,
		Keepalives:         &keepalives,
		KeepalivesIdle:     time.Minute,
		TargetSessionAttrs: "read-write",
	}
	cc, err := cfg.ConnConfig()
	require.NoError(t, err)

	assert.Equal(t, "db1", cc.Host)
	assert.Equal(t, uint16(5432), cc.Port)
	assert.Equal(t, "app", cc.User)
	assert.Equal(t, "secret", cc.Password)
	assert.Equal(t, "orders", cc.Database)
	assert.Equal(t, "worker", cc.RuntimeParams["application_name"])
	assert.Equal(t, 3*time.Second, cc.ConnectTimeout)
	assert.Nil(t, cc.TLSConfig)
	assert.NotNil(t, cc.DialFunc)
	assert.NotNil(t, cc.ValidateConnect)
	require.Len(t, cc.Fallbacks, 1)
	assert.Equal(t, "db2", cc.Fallbacks[0].Host)
	assert.Equal(t, uint16(5433), cc.Fallbacks[0].Port)
}

func TestConfig_ConnConfigInvalid(t *testing.T) {
	_, err := Config{Host: "db", SSLMode: "sometimes"}.ConnConfig()
	assert.Error(t, err)
}

func TestConfig_CreatePool(t *testing.T) {
	cfg := Config{
		Host:    "localhost",
		SSLMode: "disable",
		Manager: &ManagerConfig{RecyclingMethod: Clean},
	}
	p, err := cfg.CreatePool(NoTLS{})
	require.NoError(t, err)
	defer p.Close()

	m, ok := p.Manager().(*Manager)
	require.True(t, ok)
	assert.Equal(t, Clean, m.Config().RecyclingMethod)
	assert.Equal(t, DefaultPoolConfig(), p.Config())
	assert.Equal(t, Status{MaxSize: 16}, p.Status(), "no connection is opened before Get")
}

func TestTLS_TLSConfig(t *testing.T) {
	tc, err := NoTLS{}.TLSConfig("db")
	require.NoError(t, err)
	assert.Nil(t, tc)

	_, err = TLS{}.TLSConfig("db")
	assert.Error(t, err)
}
