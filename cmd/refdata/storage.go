package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/config"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore/badgerstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore/ddbstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore/filestore"
	"github.com/rs/zerolog"
)

func nopClose() error { return nil }

// openStorage builds the configured backend. The returned func releases
// it.
func openStorage(ctx context.Context, cfg config.Storage, log zerolog.Logger) (refstore.Storage, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return refstore.NewMemory(), nopClose, nil
	case config.BackendFile:
		s, err := filestore.New(cfg.BasePath, filestore.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return s, nopClose, nil
	case config.BackendBadger:
		blog := log.With().Str("component", "badger").Logger()
		s, err := badgerstore.New(badgerstore.Options{
			Path:         cfg.Badger.Path,
			InMemory:     cfg.Badger.InMemory,
			MemTableSize: cfg.Badger.MemTableSize,
			Logger:       &blog,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendDynamoDB:
		client, err := dynamoClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		s, err := ddbstore.New(client, cfg.DynamoDB.Table, ddbstore.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return s, nopClose, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// dynamoClient uses the default AWS credential chain.
func dynamoClient(ctx context.Context, cfg config.DynamoDB) (*dynamodb.Client, error) {
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
