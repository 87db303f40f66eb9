package records

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

// NewDynamoClient builds a DynamoDB client from the default AWS credential
// chain. A non-empty baseEndpoint targets DynamoDB Local or LocalStack.
func NewDynamoClient(ctx context.Context, region, baseEndpoint string) (*dynamodb.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if baseEndpoint != "" {
			o.BaseEndpoint = aws.String(baseEndpoint)
		}
	}), nil
}
