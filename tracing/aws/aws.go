// Package aws traces aws-sdk-go requests with opentracing.
package aws

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	opentracing "github.com/opentracing/opentracing-go"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
)

var (
	// StartHandler starts a span for the request.
	StartHandler = request.NamedHandler{
		Name: "opentracing.Start",
		Fn: func(r *request.Request) {
			_, ctx := opentracing.StartSpanFromContext(r.Context(), "aws.request")
			r.SetContext(ctx)
		},
	}

	// InfoHandler tags the span with the operation, and with the table for
	// DynamoDB requests.
	InfoHandler = request.NamedHandler{
		Name: "opentracing.Info",
		Fn: func(r *request.Request) {
			span := opentracing.SpanFromContext(r.Context())
			if span == nil {
				return
			}
			span.SetTag(ext.ServiceName, "aws."+r.ClientInfo.ServiceName)
			span.SetTag(ext.ResourceName, r.Operation.Name)
			span.SetTag(ext.HTTPMethod, r.Operation.HTTPMethod)
			span.SetTag("aws.operation", r.Operation.Name)

			if r.ClientInfo.ServiceName != dynamodb.ServiceName {
				return
			}
			if table := tableName(r.Params); table != "" {
				span.SetOperationName("dynamodb." + r.Operation.Name)
				span.SetTag(ext.SpanType, "db")
				span.SetTag("aws.dynamodb.table", table)
			}
		},
	}

	// FinishHandler finishes the span.
	FinishHandler = request.NamedHandler{
		Name: "opentracing.Finish",
		Fn: func(r *request.Request) {
			span := opentracing.SpanFromContext(r.Context())
			if span == nil {
				return
			}
			span.SetTag("aws.retry_count", r.RetryCount)
			if r.HTTPResponse != nil {
				span.SetTag(ext.HTTPCode, fmt.Sprintf("%d", r.HTTPResponse.StatusCode))
			}
			if r.Error != nil {
				span.SetTag(ext.Error, r.Error)
				if err, ok := r.Error.(awserr.Error); ok {
					span.SetTag("aws.err.code", err.Code())
				}
			}
			span.Finish()
		},
	}
)

// WithTracing adds the tracing handlers to s.
func WithTracing(s *session.Session) {
	s.Handlers.Send.PushFrontNamed(InfoHandler)
	s.Handlers.Send.PushFrontNamed(StartHandler)
	s.Handlers.Complete.PushBackNamed(FinishHandler)
}

func tableName(params interface{}) string {
	var name *string
	switch v := params.(type) {
	case *dynamodb.GetItemInput:
		name = v.TableName
	case *dynamodb.PutItemInput:
		name = v.TableName
	case *dynamodb.UpdateItemInput:
		name = v.TableName
	case *dynamodb.DeleteItemInput:
		name = v.TableName
	case *dynamodb.QueryInput:
		name = v.TableName
	case *dynamodb.ScanInput:
		name = v.TableName
	case *dynamodb.CreateTableInput:
		name = v.TableName
	case *dynamodb.DescribeTableInput:
		name = v.TableName
	}
	if name == nil {
		return ""
	}
	return *name
}
