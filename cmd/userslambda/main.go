// The userslambda command serves the users API as an AWS Lambda function
// behind an API Gateway proxy integration. Configuration comes from the
// environment only.
package main

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/patric-chuzhbe/usercrud/internal/app"
	"github.com/patric-chuzhbe/usercrud/internal/config"
	"github.com/patric-chuzhbe/usercrud/internal/lambdaadapter"
)

// newAdapter builds the store client once per execution environment.
var newAdapter = sync.OnceValues(func() (*lambdaadapter.Adapter, error) {
	theApp, err := app.New(config.WithDisableFlagsParsing(true))
	if err != nil {
		return nil, err
	}

	return lambdaadapter.New(theApp.Handlers()), nil
})

func handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	adapter, err := newAdapter()
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	return adapter.Handle(ctx, event)
}

func main() {
	lambda.Start(handle)
}
