package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Default configuration values.
const (
	defaultServiceName     = "thiscovery-surveys"
	defaultServicePort     = 8080
	defaultVersion         = "0.1.0"
	defaultShutdownTimeout = 15 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 60 * time.Second

	defaultDBHost         = "localhost"
	defaultDBPort         = 5432
	defaultDBName         = "thiscovery_surveys"
	defaultDBUser         = "postgres"
	defaultDBSSLMode      = "disable"
	defaultDBMaxOpenConns = 25
	defaultDBMaxIdleConns = 5
	defaultDBConnLifetime = 5 * time.Minute
	defaultMigrationsPath = "file://migrations"

	defaultRedisAddress = "localhost:6379"

	defaultStream         = "personal-links:events"
	defaultConsumerGroup  = "personal-link-replenishers"
	defaultBatchSize      = 10
	defaultBlockTimeout   = 5 * time.Second
	defaultClaimMinIdle   = 30 * time.Second
	defaultClaimInterval  = time.Minute
	defaultPublishTimeout = 5 * time.Second

	defaultTableName       = "PersonalLinks"
	defaultUnassignedIndex = "unassigned-links"
	defaultAssignedIndex   = "assigned-links"
	defaultAWSRegion       = "eu-west-1"

	defaultQualtricsTimeout   = 30 * time.Second
	defaultQualtricsRPS       = 5
	defaultBreakerThreshold   = 5
	defaultBreakerOpenTimeout = 30 * time.Second
	defaultLinkExpiry         = 90 * 24 * time.Hour

	defaultBuffer                = 50
	defaultMaxMintRounds         = 3
	defaultAllocationTimeout     = 30 * time.Second
	defaultReplenishAttempts     = 3
	defaultReplenishInitialDelay = 500 * time.Millisecond

	defaultSweepSchedule = "*/15 * * * *"
	defaultPprofPort     = "6060"
)

// defaultAccounts are the survey platform accounts served when none are configured.
var defaultAccounts = []string{"cambridge", "thisinstitute"}

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Logging   logger.Config   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Events    EventsConfig    `yaml:"events"`
	Store     StoreConfig     `yaml:"store"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	Qualtrics QualtricsConfig `yaml:"qualtrics"`
	Pool      PoolConfig      `yaml:"pool"`
	Auth      AuthConfig      `yaml:"auth"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `env:"PORT"      yaml:"port"`
	Debug           bool          `env:"APP_DEBUG" yaml:"debug"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration for the postgres store backend.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH"   yaml:"migrations_path"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RedisConfig holds the connection used by the replenish event stream.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
}

// EventsConfig configures the replenish event stream.
type EventsConfig struct {
	Stream         string        `env:"EVENTS_STREAM"         yaml:"stream"`
	ConsumerGroup  string        `env:"EVENTS_CONSUMER_GROUP" yaml:"consumer_group"`
	BatchSize      int           `yaml:"batch_size"`
	BlockTimeout   time.Duration `yaml:"block_timeout"`
	ClaimMinIdle   time.Duration `yaml:"claim_min_idle"`
	ClaimInterval  time.Duration `yaml:"claim_interval"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// StoreConfig selects the link store backend.
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND" yaml:"backend"`
}

// DynamoDBConfig holds the DynamoDB table layout.
type DynamoDBConfig struct {
	Region          string `env:"AWS_REGION"        yaml:"region"`
	Endpoint        string `env:"DYNAMODB_ENDPOINT" yaml:"endpoint"`
	TableName       string `env:"DYNAMODB_TABLE"    yaml:"table_name"`
	UnassignedIndex string `yaml:"unassigned_index"`
	AssignedIndex   string `yaml:"assigned_index"`
}

// QualtricsConfig holds the survey platform accounts and client tuning.
type QualtricsConfig struct {
	Accounts           []QualtricsAccount `yaml:"accounts"`
	Timeout            time.Duration      `yaml:"timeout"`
	RequestsPerSecond  int                `env:"QUALTRICS_RPS" yaml:"requests_per_second"`
	BreakerThreshold   int                `yaml:"breaker_threshold"`
	BreakerOpenTimeout time.Duration      `yaml:"breaker_open_timeout"`
	LinkExpiry         time.Duration      `yaml:"link_expiry"`
}

// QualtricsAccount is one survey platform account. Empty BaseURL and APIToken
// are read from QUALTRICS_<NAME>_BASE_URL and QUALTRICS_<NAME>_API_TOKEN.
type QualtricsAccount struct {
	Name                 string `yaml:"name"`
	BaseURL              string `yaml:"base_url"`
	APIToken             string `yaml:"api_token"`
	DefaultContactListID string `yaml:"default_contact_list_id"`
}

// Account returns the named account.
func (q *QualtricsConfig) Account(name string) (QualtricsAccount, bool) {
	for _, a := range q.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return QualtricsAccount{}, false
}

// AccountNames returns the configured account names in declaration order.
func (q *QualtricsConfig) AccountNames() []string {
	names := make([]string, 0, len(q.Accounts))
	for _, a := range q.Accounts {
		names = append(names, a.Name)
	}
	return names
}

// PoolConfig tunes the allocation pool.
type PoolConfig struct {
	Buffer                 int           `env:"POOL_BUFFER"             yaml:"buffer"`
	MaxMintRounds          int           `env:"POOL_MAX_MINT_ROUNDS"    yaml:"max_mint_rounds"`
	AllocationTimeout      time.Duration `env:"POOL_ALLOCATION_TIMEOUT" yaml:"allocation_timeout"`
	ReplenishAttempts      int           `yaml:"replenish_attempts"`
	ReplenishInitialDelay  time.Duration `yaml:"replenish_initial_delay"`
	RequireUUIDParticipant bool          `env:"POOL_REQUIRE_UUID_PARTICIPANT" yaml:"require_uuid_participant"`
}

// AuthConfig holds admin API authentication. Admin routes are disabled when
// JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// SweepConfig configures the scheduled buffer check run by the worker.
type SweepConfig struct {
	Enabled  bool        `env:"SWEEP_ENABLED"  yaml:"enabled"`
	Schedule string      `env:"SWEEP_SCHEDULE" yaml:"schedule"`
	Pools    []SweepPool `yaml:"pools"`
}

// SweepPool is a pool the sweeper keeps topped up.
type SweepPool struct {
	Account       string `yaml:"account"`
	SurveyID      string `yaml:"survey_id"`
	ContactListID string `yaml:"contact_list_id"`
}

// ProfilingConfig enables pprof and continuous profiling.
type ProfilingConfig struct {
	PprofEnabled       bool   `env:"ENABLE_PROFILING"            yaml:"pprof_enabled"`
	PprofPort          string `env:"PPROF_PORT"                  yaml:"pprof_port"`
	PyroscopeEnabled   bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"pyroscope_enabled"`
	PyroscopeServerURL string `env:"PYROSCOPE_SERVER_URL"        yaml:"pyroscope_server_url"`
	Environment        string `env:"APP_ENV"                     yaml:"environment"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return LoadWithDefaults[Config](path, setDefaults)
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	cfg.Logging.SetDefaults()
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setEventsDefaults(&cfg.Events)
	setStoreDefaults(&cfg.Store)
	setDynamoDBDefaults(&cfg.DynamoDB)
	setQualtricsDefaults(&cfg.Qualtrics)
	setPoolDefaults(&cfg.Pool)
	setSweepDefaults(&cfg.Sweep)
	setProfilingDefaults(&cfg.Profiling)
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.ShutdownTimeout == 0 {
		svc.ShutdownTimeout = defaultShutdownTimeout
	}
	if svc.ReadTimeout == 0 {
		svc.ReadTimeout = defaultReadTimeout
	}
	if svc.WriteTimeout == 0 {
		svc.WriteTimeout = defaultWriteTimeout
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = defaultDBMaxOpenConns
	}
	if db.MaxIdleConns == 0 {
		db.MaxIdleConns = defaultDBMaxIdleConns
	}
	if db.ConnMaxLifetime == 0 {
		db.ConnMaxLifetime = defaultDBConnLifetime
	}
	if db.MigrationsPath == "" {
		db.MigrationsPath = defaultMigrationsPath
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
}

func setEventsDefaults(e *EventsConfig) {
	if e.Stream == "" {
		e.Stream = defaultStream
	}
	if e.ConsumerGroup == "" {
		e.ConsumerGroup = defaultConsumerGroup
	}
	if e.BatchSize == 0 {
		e.BatchSize = defaultBatchSize
	}
	if e.BlockTimeout == 0 {
		e.BlockTimeout = defaultBlockTimeout
	}
	if e.ClaimMinIdle == 0 {
		e.ClaimMinIdle = defaultClaimMinIdle
	}
	if e.ClaimInterval == 0 {
		e.ClaimInterval = defaultClaimInterval
	}
	if e.PublishTimeout == 0 {
		e.PublishTimeout = defaultPublishTimeout
	}
}

func setStoreDefaults(s *StoreConfig) {
	if s.Backend == "" {
		s.Backend = BackendDynamoDB
	}
}

func setDynamoDBDefaults(d *DynamoDBConfig) {
	if d.Region == "" {
		d.Region = defaultAWSRegion
	}
	if d.TableName == "" {
		d.TableName = defaultTableName
	}
	if d.UnassignedIndex == "" {
		d.UnassignedIndex = defaultUnassignedIndex
	}
	if d.AssignedIndex == "" {
		d.AssignedIndex = defaultAssignedIndex
	}
}

func setQualtricsDefaults(q *QualtricsConfig) {
	if len(q.Accounts) == 0 {
		for _, name := range defaultAccounts {
			q.Accounts = append(q.Accounts, QualtricsAccount{Name: name})
		}
	}
	for i := range q.Accounts {
		resolveAccountFromEnv(&q.Accounts[i])
	}
	if q.Timeout == 0 {
		q.Timeout = defaultQualtricsTimeout
	}
	if q.RequestsPerSecond == 0 {
		q.RequestsPerSecond = defaultQualtricsRPS
	}
	if q.BreakerThreshold == 0 {
		q.BreakerThreshold = defaultBreakerThreshold
	}
	if q.BreakerOpenTimeout == 0 {
		q.BreakerOpenTimeout = defaultBreakerOpenTimeout
	}
	if q.LinkExpiry == 0 {
		q.LinkExpiry = defaultLinkExpiry
	}
}

func resolveAccountFromEnv(a *QualtricsAccount) {
	prefix := "QUALTRICS_" + strings.ToUpper(a.Name) + "_"
	if a.BaseURL == "" {
		a.BaseURL = os.Getenv(prefix + "BASE_URL")
	}
	if a.APIToken == "" {
		a.APIToken = os.Getenv(prefix + "API_TOKEN")
	}
	if a.DefaultContactListID == "" {
		a.DefaultContactListID = os.Getenv(prefix + "CONTACT_LIST_ID")
	}
}

func setPoolDefaults(p *PoolConfig) {
	if p.Buffer == 0 {
		p.Buffer = defaultBuffer
	}
	if p.MaxMintRounds == 0 {
		p.MaxMintRounds = defaultMaxMintRounds
	}
	if p.AllocationTimeout == 0 {
		p.AllocationTimeout = defaultAllocationTimeout
	}
	if p.ReplenishAttempts == 0 {
		p.ReplenishAttempts = defaultReplenishAttempts
	}
	if p.ReplenishInitialDelay == 0 {
		p.ReplenishInitialDelay = defaultReplenishInitialDelay
	}
}

func setSweepDefaults(s *SweepConfig) {
	if s.Schedule == "" {
		s.Schedule = defaultSweepSchedule
	}
}

func setProfilingDefaults(p *ProfilingConfig) {
	if p.PprofPort == "" {
		p.PprofPort = defaultPprofPort
	}
	if p.Environment == "" {
		p.Environment = "development"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := ValidateOneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "warning", "error", "fatal"); err != nil {
		return err
	}
	if err := ValidateOneOf("store.backend", c.Store.Backend, BackendDynamoDB, BackendPostgres, BackendMemory); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateQualtrics(); err != nil {
		return err
	}
	if c.Redis.Enabled {
		if err := ValidateRequired("redis.address", c.Redis.Address); err != nil {
			return err
		}
	}
	return c.validateSweep()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendDynamoDB:
		if err := ValidateRequired("dynamodb.region", c.DynamoDB.Region); err != nil {
			return err
		}
		return ValidateRequired("dynamodb.table_name", c.DynamoDB.TableName)
	case BackendPostgres:
		if err := ValidateRequired("database.host", c.Database.Host); err != nil {
			return err
		}
		return ValidatePort("database.port", c.Database.Port)
	}
	return nil
}

func (c *Config) validatePool() error {
	if err := ValidatePositive("pool.buffer", c.Pool.Buffer); err != nil {
		return err
	}
	if err := ValidatePositive("pool.max_mint_rounds", c.Pool.MaxMintRounds); err != nil {
		return err
	}
	if err := ValidatePositive("pool.replenish_attempts", c.Pool.ReplenishAttempts); err != nil {
		return err
	}
	if c.Pool.AllocationTimeout <= 0 {
		return &ValidationError{Field: "pool.allocation_timeout", Message: "must be greater than zero"}
	}
	return nil
}

func (c *Config) validateQualtrics() error {
	if len(c.Qualtrics.Accounts) == 0 {
		return &ValidationError{Field: "qualtrics.accounts", Message: "at least one account is required"}
	}
	seen := make(map[string]bool, len(c.Qualtrics.Accounts))
	for i, a := range c.Qualtrics.Accounts {
		field := fmt.Sprintf("qualtrics.accounts[%d]", i)
		if err := ValidateRequired(field+".name", a.Name); err != nil {
			return err
		}
		if strings.Contains(a.Name, "_") {
			return &ValidationError{Field: field + ".name", Message: "must not contain '_'"}
		}
		if seen[a.Name] {
			return &ValidationError{Field: field + ".name", Message: "is duplicated"}
		}
		seen[a.Name] = true
		if err := ValidateURL(field+".base_url", a.BaseURL); err != nil {
			return err
		}
		if err := ValidateRequired(field+".api_token", a.APIToken); err != nil {
			return err
		}
		// Allocation mints and triggers replenishment with the default list.
		if err := ValidateRequired(field+".default_contact_list_id", a.DefaultContactListID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSweep() error {
	if !c.Sweep.Enabled {
		return nil
	}
	if !c.Redis.Enabled {
		return &ValidationError{Field: "sweep.enabled", Message: "requires redis.enabled"}
	}
	for i, p := range c.Sweep.Pools {
		field := fmt.Sprintf("sweep.pools[%d]", i)
		if _, ok := c.Qualtrics.Account(p.Account); !ok {
			return &ValidationError{Field: field + ".account", Message: "is not a configured account"}
		}
		if err := ValidateRequired(field+".survey_id", p.SurveyID); err != nil {
			return err
		}
	}
	return nil
}
