// Package graph mirrors cached clusters into Neo4j (or Memgraph) so they can
// be explored with Cypher.
package graph

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Database selects a named database. Memgraph ignores it.
	Database string
	// Secure switches the scheme to bolt+s.
	Secure bool
}

func (c Config) uri() string {
	scheme := "bolt"
	if c.Secure {
		scheme = "bolt+s"
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) auth() neo4j.AuthToken {
	if c.Username == "" {
		return neo4j.NoAuth()
	}
	return neo4j.BasicAuth(c.Username, c.Password, "")
}

// Client runs projection writes against one graph database.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   ectologger.Logger
}

// NewClient builds the driver. Nothing is dialed until the first session;
// startup calls VerifyConnectivity.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.uri(), cfg.auth())
	if err != nil {
		return nil, fmt.Errorf("graph driver for %s: %w", cfg.uri(), err)
	}
	return &Client{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity doubles as the health check pinger.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// ExecuteWrite runs work in a managed write transaction; the driver retries
// transient failures.
func (c *Client) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.database,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("failed to close graph session")
		}
	}()

	return session.ExecuteWrite(ctx, work)
}
