package userstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"saasid/internal/policy"
	"saasid/pkg/apperr"
	"saasid/pkg/config"
)

// lookupIndex is the id-only secondary index.
const lookupIndex = "gsiIdx"

// batchMax is DynamoDB's BatchWriteItem limit.
const batchMax = 25

type dynamoStore struct {
	client       *dynamodb.Client
	userTable    string
	orderTable   string
	productTable string
}

func NewDynamo(base aws.Config, cfg config.Config) Store {
	client := dynamodb.NewFromConfig(base, func(o *dynamodb.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return &dynamoStore{
		client:       client,
		userTable:    cfg.TableUser,
		orderTable:   cfg.TableOrder,
		productTable: cfg.TableProduct,
	}
}

func key(tenantID, id string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"tenantId": &ddbtypes.AttributeValueMemberS{Value: tenantID},
		"id":       &ddbtypes.AttributeValueMemberS{Value: id},
	}
}

func (s *dynamoStore) Put(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "marshal user record")
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.userTable),
		Item:      item,
	})
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "put user record")
	}
	return nil
}

func (s *dynamoStore) SetSub(ctx context.Context, tenantID, id, sub string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.userTable),
		Key:                 key(tenantID, id),
		UpdateExpression:    aws.String("SET #sub = :sub"),
		ConditionExpression: aws.String("attribute_exists(tenantId)"),
		ExpressionAttributeNames: map[string]string{
			"#sub": "sub",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":sub": &ddbtypes.AttributeValueMemberS{Value: sub},
		},
	})
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "set subject id")
	}
	return nil
}

func (s *dynamoStore) Get(ctx context.Context, tenantID, id string) (Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.userTable),
		Key:       key(tenantID, id),
	})
	if err != nil {
		return Record{}, apperr.Wrap(err, apperr.UpstreamFailure, "get user record")
	}
	if out.Item == nil {
		return Record{}, apperr.Newf(apperr.NotFound, "no user record for (%s,%s)", tenantID, id)
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return Record{}, apperr.Wrap(err, apperr.UpstreamFailure, "unmarshal user record")
	}
	return rec, nil
}

func (s *dynamoStore) LookupByID(ctx context.Context, id string) (Record, bool, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.userTable),
		IndexName:              aws.String(lookupIndex),
		KeyConditionExpression: aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return Record{}, false, apperr.Wrap(err, apperr.UpstreamFailure, "lookup user record")
	}
	if len(out.Items) == 0 {
		return Record{}, false, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return Record{}, false, apperr.Wrap(err, apperr.UpstreamFailure, "unmarshal user record")
	}
	return rec, true, nil
}

func (s *dynamoStore) PurgeTenant(ctx context.Context, tenantID string) (int, error) {
	var (
		deleted  int
		startKey map[string]ddbtypes.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.userTable),
			ProjectionExpression:   aws.String("tenantId, id"),
			KeyConditionExpression: aws.String("#tenantId = :tenantId"),
			ExpressionAttributeNames: map[string]string{
				"#tenantId": "tenantId",
			},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":tenantId": &ddbtypes.AttributeValueMemberS{Value: tenantID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return deleted, apperr.Wrap(err, apperr.UpstreamFailure, "query tenant user records")
		}
		for i := 0; i < len(out.Items); i += batchMax {
			end := min(i+batchMax, len(out.Items))
			writes := make([]ddbtypes.WriteRequest, 0, end-i)
			for _, item := range out.Items[i:end] {
				writes = append(writes, ddbtypes.WriteRequest{
					DeleteRequest: &ddbtypes.DeleteRequest{Key: item},
				})
			}
			_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]ddbtypes.WriteRequest{s.userTable: writes},
			})
			if err != nil {
				return deleted, apperr.Wrap(err, apperr.UpstreamFailure, "delete tenant user records")
			}
			deleted += len(writes)
		}
		if out.LastEvaluatedKey == nil {
			return deleted, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *dynamoStore) DescribeDataResources(ctx context.Context) (policy.DataResources, error) {
	var res policy.DataResources
	for _, t := range []struct {
		name string
		dst  *string
	}{
		{s.userTable, &res.UserTableARN},
		{s.orderTable, &res.OrderTableARN},
		{s.productTable, &res.ProductTableARN},
	} {
		out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)})
		if err != nil {
			return policy.DataResources{}, apperr.Wrap(err, apperr.UpstreamFailure, "describe table "+t.name)
		}
		*t.dst = aws.ToString(out.Table.TableArn)
	}
	return res, nil
}
