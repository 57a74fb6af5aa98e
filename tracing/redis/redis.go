// Package redis traces go-redis commands with opentracing.
package redis

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/opentracing/opentracing-go"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
)

// WrapClient returns a copy of c whose commands are traced as children of
// the span in ctx. Without a span c is returned as is.
func WrapClient(ctx context.Context, c *redis.Client, serviceName string) *redis.Client {
	parent := opentracing.SpanFromContext(ctx)
	if parent == nil {
		return c
	}

	traced := c.WithContext(ctx)
	traced.WrapProcess(func(next func(cmd redis.Cmder) error) func(cmd redis.Cmder) error {
		return func(cmd redis.Cmder) error {
			span := opentracing.StartSpan("redis.command", opentracing.ChildOf(parent.Context()))
			span.SetTag(ext.ServiceName, serviceName)
			span.SetTag(ext.SpanType, ext.SpanTypeRedis)
			span.SetTag(ext.ResourceName, cmd.Name())
			defer span.Finish()

			// Arguments are keys, never logged in full.
			err := next(cmd)
			if err != nil && err != redis.Nil {
				span.SetTag(ext.Error, err)
			}
			return err
		}
	})
	return traced
}

// NewClient connects to the redis server at url.
func NewClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}
