package logger

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	msg := "grant.redeemed"

	tests := []struct {
		in  []interface{}
		out string
	}{
		{[]interface{}{"page_id", 42}, "status=info grant.redeemed page_id=42\n"},
		{[]interface{}{"code accepted"}, "status=info grant.redeemed code accepted\n"},
		{[]interface{}{"kind", "symmetric", "first view"}, "status=info grant.redeemed kind=symmetric first view\n"},
		{[]interface{}{"b", 1, "a", 1}, "status=info grant.redeemed b=1 a=1\n"},
		{[]interface{}{}, "status=info grant.redeemed \n"},
	}

	for _, tt := range tests {
		b := new(bytes.Buffer)
		New(log.New(b, "", 0), INFO).Info(msg, tt.in...)
		assert.Equal(t, tt.out, b.String())
	}
}

func TestLogLevel(t *testing.T) {
	b := new(bytes.Buffer)
	l := New(log.New(b, "", 0), ERROR)
	ctx := WithLogger(context.Background(), l)

	Info(ctx, "skipped")
	Warn(ctx, "skipped")
	assert.Equal(t, "", b.String())

	Error(ctx, "kept")
	assert.Equal(t, "status=error kept \n", b.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DEBUG, false},
		{" WARN ", WARN, false},
		{"crit", CRIT, false},
		{"verbose", INFO, true},
	}

	for _, tt := range tests {
		lvl, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, lvl, tt.in)
		assert.Equal(t, tt.err, err != nil, tt.in)
	}
}

func TestWith(t *testing.T) {
	b := new(bytes.Buffer)
	l := New(log.New(b, "", 0), INFO).With("request_id", "abc")
	l.With("user_id", 7).Info("disclosure", "path", "owner")

	assert.Equal(t, "status=info disclosure request_id=abc user_id=7 path=owner\n", b.String())
}

func TestWithoutContextLogger(t *testing.T) {
	orig := DefaultLogger
	defer func() { DefaultLogger = orig }()

	b := new(bytes.Buffer)
	DefaultLogger = New(log.New(b, "", 0), INFO)
	Info(context.Background(), "test")
	assert.Equal(t, "status=info test \n", b.String())
}
