// Package graph keeps the social/vendor graph in step with relational deletes.
//
// The graph is written by the marketplace's graph sync, not by this service.
// jasmine relies on this shape only:
//
//	(:Business {id})-[:SELLS]->(:Product {id})
//
// Other node kinds (clients, funds) may link to a business; they lose the
// relationship but are never deleted here.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		logger:   logger,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) executeWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	return session.ExecuteWrite(ctx, work)
}

// DeleteBusiness detaches and removes the business node and the product
// nodes it sells. It returns the number of nodes deleted; a business the
// graph never saw deletes nothing.
func (c *Client) DeleteBusiness(ctx context.Context, businessID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.DeleteBusiness")
	defer span.End()

	res, err := c.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (b:Business {id: $id})
			OPTIONAL MATCH (b)-[:SELLS]->(p:Product)
			WITH b, collect(p) AS products
			FOREACH (p IN products | DETACH DELETE p)
			DETACH DELETE b
		`, map[string]any{"id": businessID})
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return int64(summary.Counters().NodesDeleted()), nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return 0, fmt.Errorf("failed to delete business %s from graph: %w", businessID, err)
	}

	deleted, _ := res.(int64)
	c.logger.WithContext(ctx).WithFields(map[string]any{
		"business_id":   businessID,
		"nodes_deleted": deleted,
	}).Debug("Removed business from graph")
	return deleted, nil
}
