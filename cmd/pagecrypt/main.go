// Command pagecrypt serves the page encryption API.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/remind101/pagecrypt/api"
	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/httpx/middleware"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/svc"
	"github.com/urfave/cli"
)

const appName = "pagecrypt"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "Encrypted pages with one-time access codes and public key sharing"
	app.Flags = append(append(append([]cli.Flag{}, ambientFlags...), storageFlags...), serviceFlags...)
	app.Commands = []cli.Command{
		{
			Name:   "server",
			Usage:  "Run the HTTP API",
			Action: runServer,
		},
		{
			Name:   "migrate",
			Usage:  "Create the tables",
			Action: runMigrate,
		},
		{
			Name:   "purge",
			Usage:  "Delete expired grants",
			Action: runPurge,
		},
	}
	return app
}

func initEnv(c *cli.Context) svc.Env {
	return svc.InitAll(svc.Config{
		AppName:            appName,
		LogLevel:           c.GlobalString(FlagLogLevel),
		StatsdAddr:         c.GlobalString(FlagStatsdAddr),
		TraceAddr:          c.GlobalString(FlagTraceAddr),
		RollbarToken:       c.GlobalString(FlagRollbarToken),
		RollbarEnvironment: c.GlobalString(FlagRollbarEnvironment),
	})
}

func runServer(c *cli.Context) error {
	env := initEnv(c)
	defer env.Close()

	b, closeBackend, err := openBackend(c)
	if err != nil {
		return err
	}
	defer closeBackend()

	policy, err := content.ParseNamespacePolicy(c.GlobalString(FlagNamespaces))
	if err != nil {
		return err
	}
	perClient, perPage, err := limiters(c)
	if err != nil {
		return err
	}
	proxies, err := api.ParseTrustedProxies(c.GlobalStringSlice(FlagTrustedProxies))
	if err != nil {
		return err
	}

	registry, service := services(c, b)
	resolver := disclosure.NewResolver(service, perClient)
	resolver.PageLimiter = perPage
	interceptor := content.NewInterceptor(resolver, b)
	interceptor.Policy = policy

	srv := &api.Server{
		Keys:     registry,
		Grants:   service,
		Resolver: resolver,
		Content:  interceptor,
		Cookies:  cookieOptions(c),
		Admins:   api.NewAdmins(c.GlobalStringSlice(FlagAdmins)...),
		Proxies:  proxies,
	}

	signatures, err := signatureConfig(c)
	if err != nil {
		return err
	}

	h := svc.NewStandardHandler(svc.HandlerOpts{
		Router:         srv.Router(),
		Reporter:       env.Reporter,
		Logger:         env.Logger,
		HandlerTimeout: c.GlobalDuration(FlagHandlerTimeout),
		Signatures:     signatures,
	})

	s := svc.NewServer(h,
		svc.WithPort(c.GlobalString(FlagPort)),
		svc.WithWriteTimeout(c.GlobalDuration(FlagHandlerTimeout)+5*time.Second),
	)
	return svc.RunServer(env.Context, s)
}

// signatureConfig returns nil when no signing keys are configured.
func signatureConfig(c *cli.Context) (*middleware.SignatureConfig, error) {
	pairs := c.GlobalStringSlice(FlagSigningKeys)
	if len(pairs) == 0 {
		if c.GlobalBool(FlagSigningForce) {
			return nil, fmt.Errorf("%s requires %s", FlagSigningForce, FlagSigningKeys)
		}
		return nil, nil
	}
	keys, err := middleware.ParseSigningKeys(pairs)
	if err != nil {
		return nil, err
	}
	return &middleware.SignatureConfig{Keys: keys, Force: c.GlobalBool(FlagSigningForce)}, nil
}

func cookieOptions(c *cli.Context) httpx.CookieOptions {
	return httpx.CookieOptions{
		Prefix:   c.GlobalString(FlagCookiePrefix),
		Path:     c.GlobalString(FlagCookiePath),
		Domain:   c.GlobalString(FlagCookieDomain),
		Secure:   c.GlobalBoolT(FlagCookieSecure),
		SameSite: strings.ToLower(c.GlobalString(FlagCookieSameSite)),
		Remember: c.GlobalDuration(FlagCookieRemember),
	}
}

func runMigrate(c *cli.Context) error {
	env := initEnv(c)
	defer env.Close()

	b, closeBackend, err := openBackend(c)
	if err != nil {
		return err
	}
	defer closeBackend()

	if err := b.Migrate(env.Context); err != nil {
		return err
	}
	logger.Info(env.Context, "migrate.done", "driver", c.GlobalString(FlagDBDriver))
	return nil
}

func runPurge(c *cli.Context) error {
	env := initEnv(c)
	defer env.Close()

	b, closeBackend, err := openBackend(c)
	if err != nil {
		return err
	}
	defer closeBackend()

	_, service := services(c, b)
	n, err := service.PurgeExpired(env.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "purged %d expired grants\n", n)
	return nil
}
