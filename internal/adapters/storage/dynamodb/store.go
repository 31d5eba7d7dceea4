package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

const (
	backend = "dynamodb"

	keyAttr     = "session_id"
	historyAttr = "history"
)

// API is the part of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type Options struct {
	Table    string
	Region   string
	Endpoint string // empty means the AWS default endpoint

	// Static credentials, e.g. for LocalStack. Empty uses the default AWS chain.
	AccessKeyID     string
	SecretAccessKey string
}

// Store keeps one item per session: partition key session_id, string attribute history.
type Store struct {
	api   API
	table string
}

var _ domain.HistoryStore = (*Store)(nil)

// NewStore builds a DynamoDB client from opts.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Table == "" {
		return nil, errors.New("dynamodb history store: empty table")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "dynamodb history store: load aws config")
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewStoreWithAPI(client, opts.Table), nil
}

func NewStoreWithAPI(api API, table string) *Store {
	return &Store{api: api, table: table}
}

func (s *Store) GetHistory(ctx context.Context, id domain.SessionID) (string, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       sessionKey(id),
	})
	if err != nil {
		return "", false, domain.NewStoreError(backend, "get", errors.Wrapf(err, "session %s", id))
	}
	if out.Item == nil {
		return "", false, nil
	}

	blob, ok := out.Item[historyAttr].(*types.AttributeValueMemberS)
	if !ok {
		// an item created without history is the same as no history
		return "", false, nil
	}
	return blob.Value, true, nil
}

func (s *Store) PutHistory(ctx context.Context, id domain.SessionID, blob string) (string, error) {
	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              sessionKey(id),
		UpdateExpression: aws.String("SET #h = :val"),
		ExpressionAttributeNames: map[string]string{
			"#h": historyAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":val": &types.AttributeValueMemberS{Value: blob},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return "", domain.NewStoreError(backend, "put", errors.Wrapf(err, "session %s", id))
	}

	if v, ok := out.Attributes[historyAttr].(*types.AttributeValueMemberS); ok {
		return v.Value, nil
	}
	return blob, nil
}

func (s *Store) DescribeTable(ctx context.Context, table string) (domain.TableStatus, error) {
	out, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return domain.TableStatus{Table: table}, nil
		}
		return domain.TableStatus{}, domain.NewStoreError(backend, "describe", err)
	}
	if out.Table == nil {
		return domain.TableStatus{Table: table}, nil
	}
	return domain.TableStatus{Table: table, Status: string(out.Table.TableStatus), Found: true}, nil
}

// Close is a no-op: the AWS client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

func sessionKey(id domain.SessionID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyAttr: &types.AttributeValueMemberS{Value: string(id)},
	}
}
