package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/store/dynamostore"
	"github.com/remind101/pagecrypt/store/sqlstore"
	"github.com/remind101/pagecrypt/throttle"
	tracingaws "github.com/remind101/pagecrypt/tracing/aws"
	tredis "github.com/remind101/pagecrypt/tracing/redis"
	"github.com/urfave/cli"
)

// backend is everything pagecrypt persists.
type backend interface {
	keys.Store
	grants.Store
	content.RevisionStore

	Migrate(ctx context.Context) error
}

// openBackend opens the storage selected by FlagDBDriver. The returned
// function releases it.
func openBackend(c *cli.Context) (backend, func(), error) {
	switch driver := c.GlobalString(FlagDBDriver); driver {
	case DriverSQLite, DriverPostgres:
		dialect := sqlstore.SQLite
		if driver == DriverPostgres {
			dialect = sqlstore.Postgres
		}
		s, err := sqlstore.Open(dialect, c.GlobalString(FlagDBURL))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { closeQuietly(s) }, nil
	case DriverDynamoDB:
		sess, err := session.NewSession()
		if err != nil {
			return nil, nil, err
		}
		tracingaws.WithTracing(sess)
		s := dynamostore.New(sess, dynamostore.Params{
			Region:   c.GlobalString(FlagAWSRegion),
			Endpoint: c.GlobalString(FlagDynamoURL),
			Scope:    c.GlobalString(FlagDynamoScope),
		})
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown %s %q", FlagDBDriver, driver)
	}
}

func closeQuietly(c io.Closer) {
	c.Close()
}

func kdfParams(c *cli.Context) envelope.KDFParams {
	return envelope.KDFParams{
		Time:    uint32(c.GlobalUint(FlagKDFTime)),
		Memory:  uint32(c.GlobalUint(FlagKDFMemory)),
		Threads: uint8(c.GlobalUint(FlagKDFThreads)),
	}
}

// services builds the key registry and grant service over b.
func services(c *cli.Context, b backend) (*keys.Registry, *grants.Service) {
	params := kdfParams(c)

	registry := keys.NewRegistry(b)
	registry.Params = params

	service := grants.NewService(b, registry)
	service.Params = params
	service.GraceWindow = c.GlobalDuration(FlagGraceWindow)
	service.BindIP = c.GlobalBool(FlagBindIP)
	return registry, service
}

// limiters returns the per client and per page throttles, shared through
// Redis when a Redis url is configured and in-process otherwise.
func limiters(c *cli.Context) (disclosure.Limiter, disclosure.Limiter, error) {
	window := c.GlobalDuration(FlagThrottleWindow)

	if url := c.GlobalString(FlagRedisURL); url != "" {
		client, err := tredis.NewClient(url)
		if err != nil {
			return nil, nil, err
		}
		r := throttle.NewRedis(client)
		r.Limit, r.Window = c.GlobalInt64(FlagThrottleLimit), window
		p := throttle.NewRedis(client)
		p.Limit, p.Window = c.GlobalInt64(FlagThrottlePageLimit), window
		p.Prefix = "pagecrypt:acode-page:"
		return r, p, nil
	}

	m := throttle.NewMemory()
	m.Limit, m.Window = c.GlobalInt64(FlagThrottleLimit), window
	p := throttle.NewMemory()
	p.Limit, p.Window = c.GlobalInt64(FlagThrottlePageLimit), window
	return m, p, nil
}
