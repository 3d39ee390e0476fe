package ygggo_pg

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// RecyclingKind selects what Manager.Recycle does with an idle connection.
type RecyclingKind int

const (
	// RecyclingFast only checks IsClosed. A connection that dropped off the
	// network without the driver noticing can reach a caller.
	RecyclingFast RecyclingKind = iota
	// RecyclingVerified runs a no-op statement against the connection.
	RecyclingVerified
	// RecyclingClean resets session state (temp tables, settings, locks,
	// listeners) before reuse.
	RecyclingClean
	// RecyclingCustom runs a user supplied statement.
	RecyclingCustom
)

// RecyclingMethod is the recycling policy of a Manager.
type RecyclingMethod struct {
	Kind  RecyclingKind
	Query string // only used by RecyclingCustom
}

var (
	Fast     = RecyclingMethod{Kind: RecyclingFast}
	Verified = RecyclingMethod{Kind: RecyclingVerified}
	Clean    = RecyclingMethod{Kind: RecyclingClean}
)

// Custom returns a recycling method that runs query.
func Custom(query string) RecyclingMethod {
	return RecyclingMethod{Kind: RecyclingCustom, Query: query}
}

const (
	pgVerifyQuery = ""
	pgCleanQuery  = "CLOSE ALL; SET SESSION AUTHORIZATION DEFAULT; RESET ALL; UNLISTEN *; SELECT pg_advisory_unlock_all(); DISCARD TEMP; DISCARD SEQUENCES;"
)

// query returns the probe statement and whether one must run at all.
func (m RecyclingMethod) query(d Dialect) (string, bool) {
	switch m.Kind {
	case RecyclingVerified:
		if d != nil {
			return d.VerifyQuery(), true
		}
		return pgVerifyQuery, true
	case RecyclingClean:
		if d != nil {
			return d.CleanQuery(), true
		}
		return pgCleanQuery, true
	case RecyclingCustom:
		return m.Query, true
	default:
		return "", false
	}
}

func (m RecyclingMethod) String() string {
	switch m.Kind {
	case RecyclingFast:
		return "Fast"
	case RecyclingVerified:
		return "Verified"
	case RecyclingClean:
		return "Clean"
	case RecyclingCustom:
		return "Custom:" + m.Query
	default:
		return "Unknown"
	}
}

// ParseRecyclingMethod parses "Fast", "Verified", "Clean" or "Custom:<sql>".
// Names are case insensitive.
func ParseRecyclingMethod(s string) (RecyclingMethod, error) {
	name, query, custom := strings.Cut(strings.TrimSpace(s), ":")
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fast":
		if !custom {
			return Fast, nil
		}
	case "verified":
		if !custom {
			return Verified, nil
		}
	case "clean":
		if !custom {
			return Clean, nil
		}
	case "custom":
		if custom && strings.TrimSpace(query) != "" {
			return Custom(strings.TrimSpace(query)), nil
		}
		return RecyclingMethod{}, fmt.Errorf("ygggo_pg: custom recycling method needs a query: %q", s)
	}
	return RecyclingMethod{}, fmt.Errorf("ygggo_pg: unknown recycling method %q", s)
}

func (m RecyclingMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *RecyclingMethod) UnmarshalText(b []byte) error {
	v, err := ParseRecyclingMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ManagerConfig holds the Manager settings. A Manager copies it on
// construction; later changes have no effect.
type ManagerConfig struct {
	RecyclingMethod RecyclingMethod `json:"recycling_method"`
}

// PoolConfig holds Pool settings.
type PoolConfig struct {
	MaxSize  int         `json:"max_size"`
	Timeouts Timeouts    `json:"timeouts"`
	Retry    RetryPolicy `json:"retry"`
}

// Timeouts bound the steps of Pool.Get. Zero means no limit.
type Timeouts struct {
	Wait    time.Duration `json:"wait"`
	Create  time.Duration `json:"create"`
	Recycle time.Duration `json:"recycle"`
}

// DefaultPoolConfig returns a default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize: 16,
		Retry:   RetryPolicy{MaxAttempts: 1},
	}
}

// ValidatePoolConfig validates a pool configuration
func ValidatePoolConfig(config PoolConfig) error {
	if config.MaxSize <= 0 {
		return fmt.Errorf("MaxSize must be positive, got %d", config.MaxSize)
	}
	if config.Timeouts.Wait < 0 || config.Timeouts.Create < 0 || config.Timeouts.Recycle < 0 {
		return fmt.Errorf("timeouts must not be negative, got %+v", config.Timeouts)
	}
	if config.Retry.MaxAttempts < 0 {
		return fmt.Errorf("Retry.MaxAttempts must be non-negative, got %d", config.Retry.MaxAttempts)
	}
	return nil
}

// Config describes how to reach a PostgreSQL server. Empty fields are left
// to libpq style defaults (PGHOST, PGUSER, ... environment variables).
type Config struct {
	User               string         `json:"user"`
	Password           string         `json:"password"`
	DBName             string         `json:"dbname"`
	Options            string         `json:"options"`
	ApplicationName    string         `json:"application_name"`
	SSLMode            string         `json:"ssl_mode"`
	Host               string         `json:"host"`
	Hosts              []string       `json:"hosts"`
	Port               uint16         `json:"port"`
	Ports              []uint16       `json:"ports"`
	ConnectTimeout     time.Duration  `json:"connect_timeout"`
	Keepalives         *bool          `json:"keepalives"`
	KeepalivesIdle     time.Duration  `json:"keepalives_idle"`
	TargetSessionAttrs string         `json:"target_session_attrs"`
	Manager            *ManagerConfig `json:"manager"`
	Pool               *PoolConfig    `json:"pool"`
}

// connString renders the keyword/value connection string for c.
func (c Config) connString() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+quoteConnValue(v))
		}
	}
	hosts := c.Hosts
	if c.Host != "" {
		hosts = append([]string{c.Host}, hosts...)
	}
	add("host", strings.Join(hosts, ","))
	ports := make([]string, 0, len(c.Ports)+1)
	if c.Port != 0 {
		ports = append(ports, strconv.Itoa(int(c.Port)))
	}
	for _, p := range c.Ports {
		ports = append(ports, strconv.Itoa(int(p)))
	}
	add("port", strings.Join(ports, ","))
	add("user", c.User)
	add("password", c.Password)
	add("dbname", c.DBName)
	add("options", c.Options)
	add("application_name", c.ApplicationName)
	add("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		secs := int((c.ConnectTimeout + time.Second - 1) / time.Second)
		add("connect_timeout", strconv.Itoa(secs))
	}
	add("target_session_attrs", c.TargetSessionAttrs)
	return strings.Join(parts, " ")
}

// quoteConnValue quotes v for a keyword/value connection string.
func quoteConnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// ConnConfig builds the pgx connection configuration for c.
func (c Config) ConnConfig() (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(c.connString())
	if err != nil {
		return nil, fmt.Errorf("ygggo_pg: invalid config: %w", err)
	}
	if c.Keepalives != nil || c.KeepalivesIdle > 0 {
		d := &net.Dialer{KeepAlive: c.KeepalivesIdle}
		if cc.ConnectTimeout > 0 {
			d.Timeout = cc.ConnectTimeout
		}
		if c.Keepalives != nil && !*c.Keepalives {
			d.KeepAlive = -1
		}
		cc.DialFunc = d.DialContext
	}
	return cc, nil
}

// managerConfig returns the configured manager settings or the defaults.
func (c Config) managerConfig() ManagerConfig {
	if c.Manager != nil {
		return *c.Manager
	}
	return ManagerConfig{}
}

// poolConfig returns the configured pool settings or the defaults.
func (c Config) poolConfig() PoolConfig {
	if c.Pool != nil {
		return *c.Pool
	}
	return DefaultPoolConfig()
}

// CreateManager builds a Manager connecting with tls. A nil tls keeps the
// TLS settings derived from SSLMode.
func (c Config) CreateManager(tls TLSStrategy) (*Manager, error) {
	cc, err := c.ConnConfig()
	if err != nil {
		return nil, err
	}
	return NewManager(NewPgConnector(cc, tls), c.managerConfig()), nil
}

// CreatePool builds a Manager and a Pool around it. No connection is opened
// until the first Get.
func (c Config) CreatePool(tls TLSStrategy) (*Pool, error) {
	m, err := c.CreateManager(tls)
	if err != nil {
		return nil, err
	}
	return NewPool(m, c.poolConfig())
}
