package s3

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/lakecat/blobstore"
)

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DDBCommitStore wraps an S3 Store and implements blobstore.CommitStore with
// DynamoDB conditional writes. Blob traffic goes straight to S3; only the
// small manifest pointers take the DynamoDB path, which supplies the atomic
// compare-and-swap that S3 lacks and lets multiple writers coordinate safely.
//
// Table schema:
//   - Partition key: base_uri (string), the S3 prefix this store manages
//   - Sort key: pointer (string), the pointer blob name
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name lakecat-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=pointer,AttributeType=S \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=pointer,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	*Store
	ddb       DDBClient
	tableName string
	baseURI   string
}

// NewDDBCommitStore creates a new S3+DynamoDB commit store. baseURI should be
// the "s3://bucket/prefix" form used as the partition key.
func NewDDBCommitStore(s3Store *Store, ddb DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		Store:     s3Store,
		ddb:       ddb,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// ReadPointer implements blobstore.CommitStore.
func (s *DDBCommitStore) ReadPointer(ctx context.Context, name string) ([]byte, uint64, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri AND pointer = :ptr"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
			":ptr": &types.AttributeValueMemberS{Value: name},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("dynamodb query: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, 0, blobstore.ErrNotFound
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return nil, 0, errors.New("invalid version attribute in DynamoDB item")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("parse version: %w", err)
	}
	contentsAttr, ok := item["contents"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, 0, errors.New("invalid contents attribute in DynamoDB item")
	}
	contents, err := base64.StdEncoding.DecodeString(contentsAttr.Value)
	if err != nil {
		return nil, 0, fmt.Errorf("decode contents: %w", err)
	}
	return contents, version, nil
}

// CommitPointer implements blobstore.CommitStore. The conditional put
// succeeds only when the stored version still equals expect, so a racing
// writer observes blobstore.ErrConcurrentCommit and retries from a fresh
// read.
func (s *DDBCommitStore) CommitPointer(ctx context.Context, name string, expect uint64, contents []byte) (uint64, error) {
	next := expect + 1

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"pointer":  &types.AttributeValueMemberS{Value: name},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"contents": &types.AttributeValueMemberS{Value: base64.StdEncoding.EncodeToString(contents)},
		},
	}
	if expect == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(version)")
	} else {
		input.ConditionExpression = aws.String("version = :expect")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expect": &types.AttributeValueMemberN{Value: strconv.FormatUint(expect, 10)},
		}
	}

	if _, err := s.ddb.PutItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, blobstore.ErrConcurrentCommit
		}
		return 0, fmt.Errorf("dynamodb put: %w", err)
	}
	return next, nil
}
