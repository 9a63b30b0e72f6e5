package journal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key layout: one partition per kiosk, entries sorted by time.
const (
	pkPrefix = "KIOSK#"
	skPrefix = "AT#"

	// MirrorTTL is how long mirrored entries are kept before DynamoDB expires them.
	MirrorTTL = 90 * 24 * time.Hour
)

// DynamoAPI is the subset of the DynamoDB client used by Mirror.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Mirror copies entries to a DynamoDB table keyed by kiosk.
type Mirror struct {
	client    DynamoAPI
	tableName string
}

// NewMirror creates a Mirror for the given table.
func NewMirror(client DynamoAPI, tableName string) *Mirror {
	return &Mirror{client: client, tableName: tableName}
}

func kioskPK(kioskID string) string {
	if kioskID == "" {
		kioskID = "unknown"
	}
	return pkPrefix + kioskID
}

func entrySK(e Entry) string {
	return skPrefix + e.At.UTC().Format(time.RFC3339Nano) + "#" + e.ID
}

// Put writes e with its key and TTL attributes.
func (m *Mirror) Put(ctx context.Context, e Entry) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pk, sk := kioskPK(e.KioskID), entrySK(e)
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(MirrorTTL).Unix(), 10)}

	start := time.Now()
	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &m.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	log.Debug().Str("pk", pk).Str("sk", sk).Dur("elapsed", time.Since(start)).Msg("Journal entry mirrored")
	return nil
}

// Recent returns up to limit entries of kioskID, newest first.
func (m *Mirror) Recent(ctx context.Context, kioskID string, limit int) ([]Entry, error) {
	input := &dynamodb.QueryInput{
		TableName:              &m.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: kioskPK(kioskID)},
			":sk": &types.AttributeValueMemberS{Value: skPrefix},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := m.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("Query PK=%s: %w", kioskPK(kioskID), err)
	}
	entries := make([]Entry, 0, len(result.Items))
	for _, item := range result.Items {
		var e Entry
		if err := attributevalue.UnmarshalMap(item, &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
