package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
)

// NewClient builds a DynamoDB client from the default AWS credential chain.
// A non-empty endpoint points the client at DynamoDB Local.
func NewClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// TablesFrom maps the dynamodb config section to Tables.
func TablesFrom(cfg config.DynamoDBConfig) Tables {
	return Tables{
		Name:            cfg.TableName,
		UnassignedIndex: cfg.UnassignedIndex,
		AssignedIndex:   cfg.AssignedIndex,
	}
}
