package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the gallery partition.
const (
	galleryPK = "GALLERY"
	skImage   = "IMAGE#"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	dynamodb.QueryAPIClient
}

// DynamoStore implements GalleryStore on a DynamoDB table with string keys
// PK and SK. All records share one partition; the sort key embeds the
// zero-padded ID so a query returns them in ID order.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

// Compile-time interface check.
var _ GalleryStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// imageSK returns the sort key for a gallery record.
func imageSK(id int64) string {
	return fmt.Sprintf("%s%020d", skImage, id)
}

// idFromSK parses the record ID back out of a sort key.
func idFromSK(sk string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(sk, skImage), 10, 64)
}

// Append writes rec as a new item. The put is conditional on the key being
// unused, so an existing item with the same ID yields ErrDuplicateID.
func (s *DynamoStore) Append(ctx context.Context, rec GalleryRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	sk := imageSK(rec.ID)
	item["PK"] = &types.AttributeValueMemberS{Value: galleryPK}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %d", ErrDuplicateID, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", galleryPK, sk, err)
	}

	log.Debug().Str("table", s.tableName).Int64("id", rec.ID).Msg("Gallery record stored")
	return nil
}

// ReadAll queries the whole gallery partition.
func (s *DynamoStore) ReadAll(ctx context.Context) ([]GalleryRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: galleryPK},
			":skPrefix": &types.AttributeValueMemberS{Value: skImage},
		},
		ScanIndexForward: aws.Bool(true),
	}

	var records []GalleryRecord
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", galleryPK, err)
		}
		for _, item := range page.Items {
			rec, err := recordFromItem(item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

func recordFromItem(item map[string]types.AttributeValue) (GalleryRecord, error) {
	var rec GalleryRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return GalleryRecord{}, fmt.Errorf("unmarshal gallery item: %w", err)
	}
	skAttr, ok := item["SK"].(*types.AttributeValueMemberS)
	if !ok {
		return GalleryRecord{}, fmt.Errorf("gallery item missing SK")
	}
	id, err := idFromSK(skAttr.Value)
	if err != nil {
		return GalleryRecord{}, fmt.Errorf("bad gallery SK %q: %w", skAttr.Value, err)
	}
	rec.ID = id
	return rec, nil
}
