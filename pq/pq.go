// Package pq registers "postgresx", a lib/pq driver that times every
// connection call and keeps TCP connections alive through NAT gateways.
package pq

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"time"

	"github.com/lib/pq"
	"github.com/remind101/pagecrypt/metrics"
)

// DriverName is the name the driver is registered under.
const DriverName = "postgresx"

func init() {
	sql.Register(DriverName, &drv{})
}

// Idle connections through a NAT gateway are dropped silently after a few
// minutes. The keepalive has to be shorter than that.
const defaultKeepAlive = 3 * time.Minute

type dialer struct{}

func (d dialer) Dial(network, addr string) (net.Conn, error) {
	return d.netDialer(0).Dial(network, addr)
}

func (d dialer) DialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	return d.netDialer(timeout).Dial(network, addr)
}

func (d dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.netDialer(0).DialContext(ctx, network, addr)
}

func (d dialer) netDialer(timeout time.Duration) *net.Dialer {
	return &net.Dialer{Timeout: timeout, KeepAlive: defaultKeepAlive}
}

type drv struct{}

func (d *drv) Open(name string) (driver.Conn, error) {
	t := metrics.Time("db.Conn.Open", nil, 1.0)
	defer t.Done()

	c, err := pq.DialOpen(dialer{}, name)
	if err != nil {
		return nil, err
	}
	return conn{c}, nil
}

type conn struct {
	driver.Conn
}

func (c conn) Close() error {
	t := metrics.Time("db.Conn.Close", nil, 1.0)
	defer t.Done()

	return c.Conn.Close()
}

func (c conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	t := metrics.Time("db.Conn.Query", nil, 1.0)
	defer t.Done()

	return c.Conn.(driver.QueryerContext).QueryContext(ctx, query, args)
}

func (c conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	t := metrics.Time("db.Conn.Exec", nil, 1.0)
	defer t.Done()

	return c.Conn.(driver.ExecerContext).ExecContext(ctx, query, args)
}

func (c conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return c.Conn.(driver.ConnBeginTx).BeginTx(ctx, opts)
}

// IsUniqueViolation reports whether err is a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
