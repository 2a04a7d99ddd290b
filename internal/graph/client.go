// Package graph is the typed repository over the Neo4j store: guarded query
// execution, batched idempotent upserts, criteria-driven seed queries, and
// bounded subgraph expansion.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/reasongraph/reasongraph/internal/config"
)

// Client wraps the Neo4j driver with connection policy and query helpers.
// One long-lived driver per process; the orchestrator owns the handle.
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// NewClient creates a Neo4j client from store configuration and verifies
// connectivity before returning. Credentials are never logged.
func NewClient(ctx context.Context, cfg config.StoreConfig) (*Client, error) {
	if cfg.URI == "" || cfg.User == "" {
		return nil, fmt.Errorf("graph store credentials missing: uri or user not set")
	}
	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 50
			c.ConnectionAcquisitionTimeout = 30 * time.Second
			c.MaxTransactionRetryTime = 15 * time.Second
			c.MaxConnectionLifetime = time.Hour
			c.SocketConnectTimeout = 5 * time.Second
			c.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", sanitizeError(err))
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to graph store: %w", sanitizeError(err))
	}

	logger := slog.Default().With("component", "graph")
	logger.Info("graph client connected", "database", database, "max_pool_size", 50)

	return &Client{
		driver:   driver,
		logger:   logger,
		database: database,
	}, nil
}

// Close releases the driver connection pool.
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close graph driver: %w", sanitizeError(err))
	}
	c.logger.Info("graph client closed")
	return nil
}

// HealthCheck verifies store connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph health check failed: %w", sanitizeError(err))
	}
	return nil
}

// Driver exposes the underlying handle for transaction helpers.
func (c *Client) Driver() neo4j.DriverWithContext { return c.driver }

// Database returns the configured database name.
func (c *Client) Database() string { return c.database }
