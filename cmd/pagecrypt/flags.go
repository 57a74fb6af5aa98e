package main

import (
	"time"

	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/reporter/rollbar"
	"github.com/remind101/pagecrypt/throttle"
	"github.com/urfave/cli"
)

const (
	FlagLogLevel           = "log.level"
	FlagStatsdAddr         = "statsd.addr"
	FlagTraceAddr          = "trace.addr"
	FlagRollbarToken       = "rollbar.token"
	FlagRollbarEnvironment = "rollbar.environment"

	FlagDBDriver    = "db.driver"
	FlagDBURL       = "db.url"
	FlagDynamoURL   = "dynamo.url"
	FlagDynamoScope = "dynamo.scope"
	FlagAWSRegion   = "aws.region"
	FlagRedisURL    = "redis.url"

	FlagPort           = "port"
	FlagHandlerTimeout = "handler.timeout"
	FlagNamespaces     = "namespaces"
	FlagAdmins         = "admins"
	FlagSigningKeys    = "signing.keys"
	FlagSigningForce   = "signing.force"

	FlagCookiePrefix   = "cookie.prefix"
	FlagCookiePath     = "cookie.path"
	FlagCookieDomain   = "cookie.domain"
	FlagCookieSecure   = "cookie.secure"
	FlagCookieSameSite = "cookie.samesite"
	FlagCookieRemember = "cookie.remember"

	FlagGraceWindow       = "grace.window"
	FlagBindIP            = "bind.ip"
	FlagThrottleLimit     = "throttle.limit"
	FlagThrottlePageLimit = "throttle.page_limit"
	FlagThrottleWindow    = "throttle.window"
	FlagTrustedProxies    = "trusted.proxies"
	FlagKDFTime           = "kdf.time"
	FlagKDFMemory         = "kdf.memory"
	FlagKDFThreads        = "kdf.threads"
)

// Drivers for FlagDBDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

var ambientFlags = []cli.Flag{
	cli.StringFlag{
		Name:   FlagLogLevel,
		Value:  "info",
		Usage:  "Log level: debug, info, warn, error or crit",
		EnvVar: "LOG_LEVEL",
	},
	cli.StringFlag{
		Name:   FlagStatsdAddr,
		Usage:  "host:port of the DataDog statsd agent. Metrics are disabled when empty",
		EnvVar: "STATSD_ADDR",
	},
	cli.StringFlag{
		Name:   FlagTraceAddr,
		Usage:  "host:port of the DataDog trace agent. Tracing is disabled when empty",
		EnvVar: "DDTRACE_ADDR",
	},
	cli.StringFlag{
		Name:   FlagRollbarToken,
		Usage:  "Rollbar access token",
		EnvVar: rollbar.EnvAccessToken,
	},
	cli.StringFlag{
		Name:   FlagRollbarEnvironment,
		Usage:  "Rollbar environment",
		EnvVar: rollbar.EnvEnvironment,
	},
}

var storageFlags = []cli.Flag{
	cli.StringFlag{
		Name:   FlagDBDriver,
		Value:  DriverSQLite,
		Usage:  "Storage backend: sqlite, postgres or dynamodb",
		EnvVar: "PAGECRYPT_DB_DRIVER",
	},
	cli.StringFlag{
		Name:   FlagDBURL,
		Value:  "pagecrypt.db",
		Usage:  "SQLite file or postgres connection url",
		EnvVar: "PAGECRYPT_DB_URL",
	},
	cli.StringFlag{
		Name:   FlagDynamoURL,
		Usage:  "DynamoDB endpoint override, for a local DynamoDB",
		EnvVar: "PAGECRYPT_DYNAMO_URL",
	},
	cli.StringFlag{
		Name:   FlagDynamoScope,
		Usage:  "Prefix of every DynamoDB table name",
		EnvVar: "PAGECRYPT_DYNAMO_SCOPE",
	},
	cli.StringFlag{
		Name:   FlagAWSRegion,
		Value:  "us-east-1",
		Usage:  "AWS region of the DynamoDB tables",
		EnvVar: "AWS_REGION",
	},
}

var serviceFlags = []cli.Flag{
	cli.StringFlag{
		Name:   FlagRedisURL,
		Usage:  "Redis url for the shared access code throttle. An in-process throttle is used when empty",
		EnvVar: "PAGECRYPT_REDIS_URL",
	},
	cli.StringFlag{
		Name:   FlagPort,
		Value:  "8080",
		Usage:  "Port to listen on",
		EnvVar: "PORT",
	},
	cli.DurationFlag{
		Name:   FlagHandlerTimeout,
		Value:  30 * time.Second,
		Usage:  "Request timeout",
		EnvVar: "PAGECRYPT_HANDLER_TIMEOUT",
	},
	cli.StringFlag{
		Name:   FlagNamespaces,
		Usage:  "Comma separated encrypted namespaces. Defaults to 2246",
		EnvVar: "PAGECRYPT_NAMESPACES",
	},
	cli.StringSliceFlag{
		Name:   FlagAdmins,
		Usage:  "Extra admin groups or user names",
		EnvVar: "PAGECRYPT_ADMINS",
	},
	cli.StringSliceFlag{
		Name:   FlagSigningKeys,
		Usage:  "id:secret pairs of hosts allowed to sign requests",
		EnvVar: "PAGECRYPT_SIGNING_KEYS",
	},
	cli.BoolFlag{
		Name:   FlagSigningForce,
		Usage:  "Reject unsigned requests",
		EnvVar: "PAGECRYPT_SIGNING_FORCE",
	},
	cli.StringFlag{
		Name:   FlagCookiePrefix,
		Usage:  "Prefix of cookie names",
		EnvVar: "PAGECRYPT_COOKIE_PREFIX",
	},
	cli.StringFlag{
		Name:   FlagCookiePath,
		Value:  "/",
		Usage:  "Cookie path",
		EnvVar: "PAGECRYPT_COOKIE_PATH",
	},
	cli.StringFlag{
		Name:   FlagCookieDomain,
		Usage:  "Cookie domain",
		EnvVar: "PAGECRYPT_COOKIE_DOMAIN",
	},
	cli.BoolTFlag{
		Name:   FlagCookieSecure,
		Usage:  "Only send cookies over https",
		EnvVar: "PAGECRYPT_COOKIE_SECURE",
	},
	cli.StringFlag{
		Name:   FlagCookieSameSite,
		Value:  "lax",
		Usage:  "Cookie SameSite attribute: lax, strict or none",
		EnvVar: "PAGECRYPT_COOKIE_SAMESITE",
	},
	cli.DurationFlag{
		Name:   FlagCookieRemember,
		Value:  30 * 24 * time.Hour,
		Usage:  "Lifetime of the user key cookie",
		EnvVar: "PAGECRYPT_COOKIE_REMEMBER",
	},
	cli.DurationFlag{
		Name:   FlagGraceWindow,
		Value:  grants.DefaultGraceWindow,
		Usage:  "How long a redeemed access code stays readable through its cookie",
		EnvVar: "PAGECRYPT_GRACE_WINDOW",
	},
	cli.BoolFlag{
		Name:   FlagBindIP,
		Usage:  "Refuse access code re-reads from another IP address",
		EnvVar: "PAGECRYPT_BIND_IP",
	},
	cli.Int64Flag{
		Name:   FlagThrottleLimit,
		Value:  throttle.DefaultLimit,
		Usage:  "Failed access codes allowed per page and client within the throttle window",
		EnvVar: "PAGECRYPT_THROTTLE_LIMIT",
	},
	cli.Int64Flag{
		Name:   FlagThrottlePageLimit,
		Value:  throttle.DefaultPageLimit,
		Usage:  "Failed access codes allowed per page from all clients within the throttle window",
		EnvVar: "PAGECRYPT_THROTTLE_PAGE_LIMIT",
	},
	cli.StringSliceFlag{
		Name:   FlagTrustedProxies,
		Usage:  "Proxy addresses or CIDRs whose X-Forwarded-For is trusted",
		EnvVar: "PAGECRYPT_TRUSTED_PROXIES",
	},
	cli.DurationFlag{
		Name:   FlagThrottleWindow,
		Value:  throttle.DefaultWindow,
		Usage:  "Throttle window",
		EnvVar: "PAGECRYPT_THROTTLE_WINDOW",
	},
	cli.UintFlag{
		Name:   FlagKDFTime,
		Value:  uint(envelope.DefaultKDFParams.Time),
		Usage:  "argon2id passes",
		EnvVar: "PAGECRYPT_KDF_TIME",
	},
	cli.UintFlag{
		Name:   FlagKDFMemory,
		Value:  uint(envelope.DefaultKDFParams.Memory),
		Usage:  "argon2id memory in KiB",
		EnvVar: "PAGECRYPT_KDF_MEMORY",
	},
	cli.UintFlag{
		Name:   FlagKDFThreads,
		Value:  uint(envelope.DefaultKDFParams.Threads),
		Usage:  "argon2id threads",
		EnvVar: "PAGECRYPT_KDF_THREADS",
	},
}
