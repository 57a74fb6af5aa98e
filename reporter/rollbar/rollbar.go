// Package rollbar reports errors to rollbar.com.
package rollbar

import (
	"context"
	"net/http"
	"reflect"
	"regexp"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/errctx"
	"github.com/rollbar/rollbar-go"
)

const (
	EnvAccessToken = "ROLLBAR_ACCESS_TOKEN"
	EnvEnvironment = "ROLLBAR_ENVIRONMENT"
)

var (
	// ScrubFields matches request parameters that carry passwords, access
	// codes or key material.
	ScrubFields = regexp.MustCompile(`(?i)passw|secret|token|acode|protected_key`)

	// ScrubHeaders matches headers that carry credentials. Cookies hold
	// session keys.
	ScrubHeaders = regexp.MustCompile(`(?i)^(authorization|cookie|set-cookie)$`)
)

type rollbarReporter struct{}

// Reporter sends errors through the package level rollbar client.
var Reporter = &rollbarReporter{}

// ConfigureReporter points the package level client at a project and turns on
// scrubbing.
func ConfigureReporter(token, environment string) {
	rollbar.SetToken(token)
	rollbar.SetEnvironment(environment)
	rollbar.SetScrubFields(ScrubFields)
	rollbar.SetScrubHeaders(ScrubHeaders)
}

func (r *rollbarReporter) ReportWithLevel(ctx context.Context, level string, err error) error {
	var request *http.Request
	extra := map[string]interface{}{}

	var e *errctx.Error
	if errors.As(err, &e) {
		for k, v := range e.ContextData() {
			extra[k] = v
		}
		request = e.Request()
	}

	err = errors.Cause(err)
	extra["error_class"] = reflect.TypeOf(err).String()

	if request != nil {
		rollbar.Error(level, request, err, extra)
	} else {
		rollbar.Error(level, err, extra)
	}
	return nil
}

func (r *rollbarReporter) Flush() {
	rollbar.Wait()
}
