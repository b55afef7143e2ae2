package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

// NewNeo4jClient establishes a Bolt connection using the official Neo4j driver.
func NewNeo4jClient(ctx context.Context, opts Options) (Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
	})
	if err != nil {
		return nil, domain.NewError(domain.KindConnection, "create neo4j driver", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, domain.NewError(domain.KindConnection, "verify graph connectivity", err)
	}

	return &neo4jClient{
		driver:   driver,
		database: opts.Database,
	}, nil
}

type neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

func (c *neo4jClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return c.run(ctx, neo4j.AccessModeWrite, cypher, params)
}

func (c *neo4jClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return c.run(ctx, neo4j.AccessModeRead, cypher, params)
}

func (c *neo4jClient) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) (Result, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   mode,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return Result{}, classify(err)
	}

	out, err := consumeResult(ctx, res)
	if err != nil {
		return Result{}, classify(err)
	}
	return out, nil
}

func (c *neo4jClient) VerifyConnectivity(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return domain.NewError(domain.KindConnection, "verify graph connectivity", err)
	}
	return nil
}

func (c *neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func consumeResult(ctx context.Context, res neo4j.ResultWithContext) (Result, error) {
	var records []Record
	for res.Next(ctx) {
		rec := res.Record()
		record := make(Record, len(rec.Keys))
		for _, key := range rec.Keys {
			value, _ := rec.Get(key)
			record[key] = value
		}
		records = append(records, record)
	}
	if err := res.Err(); err != nil {
		return Result{}, err
	}
	return Result{Records: records}, nil
}

// ProcedureNotFoundCode is the server status code for a missing procedure.
const ProcedureNotFoundCode = "Neo.ClientError.Procedure.ProcedureNotFound"

// classify tags driver errors with the kind the search engine acts on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return domain.NewError(domain.KindConnection, "graph session", err)
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		if neoErr.Code == ProcedureNotFoundCode {
			return domain.NewError(domain.KindQuery, "graph query", fmt.Errorf("%w: %s", domain.ErrProcedureUnavailable, neoErr.Msg))
		}
		if strings.HasPrefix(neoErr.Code, "Neo.TransientError.General.DatabaseUnavailable") {
			return domain.NewError(domain.KindConnection, "graph query", err)
		}
	}
	return domain.NewError(domain.KindQuery, "graph query", err)
}
