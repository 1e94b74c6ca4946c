// Package dynamodbstore keeps users in a DynamoDB table whose partition key
// is the string attribute "id".
package dynamodbstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/patric-chuzhbe/usercrud/internal/db/storage"
	"github.com/patric-chuzhbe/usercrud/internal/logger"
	"github.com/patric-chuzhbe/usercrud/internal/models"
)

const (
	keyAttribute       = "id"
	tableActiveMaxWait = 2 * time.Minute
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// Options describe how to reach the table. Endpoint and the static
// credentials are only needed for local DynamoDB instances.
type Options struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type Store struct {
	client dynamoAPI
	table  string
}

// New builds a DynamoDB client from the default AWS credential chain,
// overridden by opts where set.
func New(ctx context.Context, opts Options) (*Store, error) {
	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := loadDefaultAWSConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf(
			"in internal/db/dynamodbstore/dynamodbstore.go/New(): error while `loadDefaultAWSConfig()` calling: %w",
			err,
		)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return NewWithClient(client, opts.TableName), nil
}

func NewWithClient(client dynamoAPI, tableName string) *Store {
	return &Store{
		client: client,
		table:  tableName,
	}
}

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyAttribute: &types.AttributeValueMemberS{Value: userID},
	}
}

// PutUser writes the item unconditionally.
func (s *Store) PutUser(ctx context.Context, usr *models.User) error {
	item, err := attributevalue.MarshalMap(usr)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})

	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       userKey(userID),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, storage.ErrUserNotFound
	}

	var usr models.User
	if err := attributevalue.UnmarshalMap(out.Item, &usr); err != nil {
		return nil, err
	}

	return &usr, nil
}

// UpdateUser sets the four mutable attributes, conditional on the item existing.
func (s *Store) UpdateUser(ctx context.Context, usr *models.User) error {
	update := expression.
		Set(expression.Name("name"), expression.Value(usr.Name)).
		Set(expression.Name("email"), expression.Value(usr.Email)).
		Set(expression.Name("city"), expression.Value(usr.City)).
		Set(expression.Name("country"), expression.Value(usr.Country))

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(keyAttribute))).
		Build()
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       userKey(usr.ID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return storage.ErrUserNotFound
	}

	return err
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       userKey(userID),
	})

	return err
}

// ListUsers scans the whole table, following pagination.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		var pageUsers []models.User
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageUsers); err != nil {
			return nil, err
		}
		users = append(users, pageUsers...)
	}

	return users, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})

	return err
}

func (s *Store) Close() error {
	return nil
}

// EnsureTable creates the table when it does not exist and waits until it is active.
func (s *Store) EnsureTable(ctx context.Context) error {
	err := s.Ping(ctx)
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf(
			"in internal/db/dynamodbstore/dynamodbstore.go/EnsureTable(): error while `s.Ping()` calling: %w",
			err,
		)
	}

	logger.Log.Infow("creating table", "table", s.table)

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(keyAttribute),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(keyAttribute),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf(
			"in internal/db/dynamodbstore/dynamodbstore.go/EnsureTable(): error while `s.client.CreateTable()` calling: %w",
			err,
		)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, tableActiveMaxWait)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/dynamodbstore/dynamodbstore.go/EnsureTable(): error while `waiter.Wait()` calling: %w",
			err,
		)
	}

	return nil
}
