package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/webhook-indexer/internal/config"
	"github.com/webhook-indexer/internal/crypto"
	xerrors "github.com/webhook-indexer/internal/errors"
	"github.com/webhook-indexer/internal/logging"
	"github.com/webhook-indexer/internal/models"
)

// pgDuplicateDatabase is the SQLSTATE raised by CREATE DATABASE when the
// database already exists. Racing provisioners tolerate it as a no-op.
const pgDuplicateDatabase = "42P04"

// TenantQuerier is the surface of a tenant connection the ingest path uses.
type TenantQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TenantClient is one cached, live connection to a tenant database. Safe for
// concurrent reuse; lives for the rest of the process.
type TenantClient struct {
	DatabaseID string
	querier    TenantQuerier
	closer     func()
}

// NewTenantClient wraps an existing querier. Used by connectors and tests.
func NewTenantClient(databaseID string, querier TenantQuerier, closer func()) *TenantClient {
	return &TenantClient{DatabaseID: databaseID, querier: querier, closer: closer}
}

// Querier returns the tenant connection
func (c *TenantClient) Querier() TenantQuerier {
	return c.querier
}

// Close releases the underlying connection pool
func (c *TenantClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// ProvisionState tracks whether a tenant database has been provisioned.
// Satisfied by DatabaseRepository.
type ProvisionState interface {
	GetIndexSettings(ctx context.Context, databaseID string) (*models.IndexSettings, error)
	MarkTableInitialized(ctx context.Context, databaseID string) error
}

// Connector dials tenant database servers. Split out so the pool's caching
// and provisioning logic is testable without a live server.
type Connector interface {
	// EnsureDatabase creates the tenant database if it does not exist.
	// A duplicate-database error from a racing creator must be swallowed.
	EnsureDatabase(ctx context.Context, cfg *models.DatabaseConfig, password string) error
	// Connect opens a pooled client for the resolved connection string.
	Connect(ctx context.Context, databaseID, connString string) (*TenantClient, error)
}

// TenantPoolOptions holds the dependencies for a tenant pool
type TenantPoolOptions struct {
	Settings  *config.TenantPoolConfig
	Cipher    *crypto.Cipher
	Databases ProvisionState
	Connector Connector // optional; defaults to a pgx connector
}

// TenantPool lazily creates and caches one client per distinct tenant
// connection identity, provisioning the underlying database on first use.
type TenantPool struct {
	settings  *config.TenantPoolConfig
	cipher    *crypto.Cipher
	databases ProvisionState
	connector Connector

	mu      sync.RWMutex
	clients map[string]*TenantClient
	group   singleflight.Group
}

// NewTenantPool creates a new tenant pool
func NewTenantPool(opts *TenantPoolOptions) (*TenantPool, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("tenant pool settings cannot be nil")
	}
	if opts.Cipher == nil {
		return nil, fmt.Errorf("cipher cannot be nil")
	}
	if opts.Databases == nil {
		return nil, fmt.Errorf("database repository cannot be nil")
	}

	connector := opts.Connector
	if connector == nil {
		connector = &pgxConnector{settings: opts.Settings}
	}

	return &TenantPool{
		settings:  opts.Settings,
		cipher:    opts.Cipher,
		databases: opts.Databases,
		connector: connector,
		clients:   make(map[string]*TenantClient),
	}, nil
}

// ConnString builds the canonical connection identity for a tenant config,
// decrypting the stored password. The string doubles as the cache key.
func (p *TenantPool) ConnString(cfg *models.DatabaseConfig) (string, error) {
	password, err := p.cipher.Decrypt(cfg.PasswordEnc)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credentials for database %s: %w", cfg.ID, err)
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Username, password, cfg.Host, cfg.Port, cfg.Name, p.settings.SSLMode), nil
}

// Acquire returns the cached client for the tenant's connection identity,
// creating and provisioning it on first access. Concurrent first accesses to
// the same identity share one initialization; at most one provisioning
// attempt succeeds. Nothing is installed in the cache when initialization
// fails, so the error is recoverable on the next event.
func (p *TenantPool) Acquire(ctx context.Context, cfg *models.DatabaseConfig) (*TenantClient, error) {
	connString, err := p.ConnString(cfg)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	client, ok := p.clients[connString]
	p.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := p.group.Do(connString, func() (interface{}, error) {
		// Another racer may have installed the client between the cache
		// check and the singleflight slot.
		p.mu.RLock()
		existing, ok := p.clients[connString]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}

		client, err := p.initClient(ctx, cfg, connString)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.clients[connString] = client
		p.mu.Unlock()

		return client, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*TenantClient), nil
}

func (p *TenantPool) initClient(ctx context.Context, cfg *models.DatabaseConfig, connString string) (*TenantClient, error) {
	logger := logging.FromContext(ctx)

	indexSettings, err := p.databases.GetIndexSettings(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	if !indexSettings.TableInitialized {
		password, err := p.cipher.Decrypt(cfg.PasswordEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credentials for database %s: %w", cfg.ID, err)
		}

		if err := p.connector.EnsureDatabase(ctx, cfg, password); err != nil {
			if !xerrors.IsConflict(err) {
				return nil, fmt.Errorf("failed to provision database %s: %w", cfg.Name, err)
			}
			// Lost the creation race; the database exists now.
		} else {
			logger.WithField("database", cfg.Name).Info("Tenant database provisioned")
		}

		if err := p.databases.MarkTableInitialized(ctx, cfg.ID); err != nil {
			return nil, err
		}
	}

	client, err := p.connector.Connect(ctx, cfg.ID, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tenant database %s: %w", cfg.Name, err)
	}

	return client, nil
}

// Size returns the number of cached clients
func (p *TenantPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Close closes every cached client. Called at shutdown.
func (p *TenantPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, client := range p.clients {
		client.Close()
		delete(p.clients, key)
	}
}

// pgxConnector is the production Connector backed by pgx.
type pgxConnector struct {
	settings *config.TenantPoolConfig
}

// EnsureDatabase connects to the tenant server's maintenance database and
// creates the target database if absent. CREATE DATABASE cannot run inside a
// transaction, so a racer can still create it between the existence check
// and our attempt; the duplicate error is reported as a conflict for the
// caller to swallow.
func (c *pgxConnector) EnsureDatabase(ctx context.Context, cfg *models.DatabaseConfig, password string) error {
	adminConn := fmt.Sprintf("postgresql://%s:%s@%s:%d/postgres?sslmode=%s",
		cfg.Username, password, cfg.Host, cfg.Port, c.settings.SSLMode)

	ctx, cancel := context.WithTimeout(ctx, c.settings.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, adminConn)
	if err != nil {
		return xerrors.NewTransientError("failed to connect to tenant server", err)
	}
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_database WHERE datname = $1)`, cfg.Name,
	).Scan(&exists)
	if err != nil {
		return xerrors.NewTransientError("failed to check database existence", err)
	}

	if exists {
		return nil
	}

	// Identifier quoting: database names are not parameterizable.
	_, err = pool.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %q`, cfg.Name))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			return xerrors.NewConflictError("database already exists", err)
		}
		return fmt.Errorf("failed to create database %s: %w", cfg.Name, err)
	}

	return nil
}

// Connect opens a pooled client for one tenant database
func (c *pgxConnector) Connect(ctx context.Context, databaseID, connString string) (*TenantClient, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse tenant connection string: %w", err)
	}

	poolConfig.MaxConns = int32(c.settings.MaxConnsPerTenant)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, c.settings.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, xerrors.NewTransientError("unable to create tenant pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.NewTransientError("unable to ping tenant database", err)
	}

	return &TenantClient{
		DatabaseID: databaseID,
		querier:    pool,
		closer:     pool.Close,
	}, nil
}
