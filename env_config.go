package ygggo_pg

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables read by
// ConfigFromEnv and LoadConfig, e.g. YGGGO_PG_HOST or
// YGGGO_PG_MANAGER_RECYCLING_METHOD.
const EnvPrefix = "YGGGO_PG"

// ConfigFromEnv reads a Config from YGGGO_PG_* environment variables.
func ConfigFromEnv() (Config, error) {
	return configFromViper(newViper())
}

// LoadConfig reads a Config from a file (any format viper understands,
// selected by extension). Environment variables override file values.
func LoadConfig(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("ygggo_pg: read config %s: %w", path, err)
	}
	return configFromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func configFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		User:               v.GetString("user"),
		Password:           v.GetString("password"),
		DBName:             v.GetString("dbname"),
		Options:            v.GetString("options"),
		ApplicationName:    v.GetString("application_name"),
		SSLMode:            v.GetString("ssl_mode"),
		Host:               v.GetString("host"),
		Hosts:              splitList(v.GetStringSlice("hosts")),
		ConnectTimeout:     v.GetDuration("connect_timeout"),
		KeepalivesIdle:     v.GetDuration("keepalives_idle"),
		TargetSessionAttrs: v.GetString("target_session_attrs"),
	}
	if v.IsSet("port") {
		cfg.Port = v.GetUint16("port")
	}
	for _, p := range splitList(v.GetStringSlice("ports")) {
		var port uint16
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return Config{}, fmt.Errorf("ygggo_pg: invalid port %q: %w", p, err)
		}
		cfg.Ports = append(cfg.Ports, port)
	}
	if v.IsSet("keepalives") {
		b := v.GetBool("keepalives")
		cfg.Keepalives = &b
	}
	if v.IsSet("manager.recycling_method") {
		rm, err := ParseRecyclingMethod(v.GetString("manager.recycling_method"))
		if err != nil {
			return Config{}, err
		}
		cfg.Manager = &ManagerConfig{RecyclingMethod: rm}
	}
	if v.IsSet("pool.max_size") || v.IsSet("pool.timeouts.wait") || v.IsSet("pool.timeouts.create") ||
		v.IsSet("pool.timeouts.recycle") || v.IsSet("pool.retry.max_attempts") {
		pc := DefaultPoolConfig()
		if v.IsSet("pool.max_size") {
			pc.MaxSize = v.GetInt("pool.max_size")
		}
		pc.Timeouts.Wait = v.GetDuration("pool.timeouts.wait")
		pc.Timeouts.Create = v.GetDuration("pool.timeouts.create")
		pc.Timeouts.Recycle = v.GetDuration("pool.timeouts.recycle")
		if v.IsSet("pool.retry.max_attempts") {
			pc.Retry.MaxAttempts = v.GetInt("pool.retry.max_attempts")
		}
		pc.Retry.BaseBackoff = v.GetDuration("pool.retry.base_backoff")
		pc.Retry.MaxBackoff = v.GetDuration("pool.retry.max_backoff")
		pc.Retry.MaxElapsed = v.GetDuration("pool.retry.max_elapsed")
		pc.Retry.Jitter = v.GetBool("pool.retry.jitter")
		if err := ValidatePoolConfig(pc); err != nil {
			return Config{}, fmt.Errorf("ygggo_pg: invalid pool configuration: %w", err)
		}
		cfg.Pool = &pc
	}
	return cfg, nil
}

// splitList flattens comma separated entries; env values arrive as one string.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
