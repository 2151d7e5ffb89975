// Package aws fetches EC2, S3 and RDS inventory with aws-sdk-go-v2.
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/providers"
	"go.uber.org/zap"
)

const defaultRegion = "us-east-1"

// APIs are the AWS service operations the client uses
type APIs struct {
	EC2 ec2.DescribeInstancesAPIClient
	S3  s3.ListBucketsAPIClient
	RDS rds.DescribeDBInstancesAPIClient
}

// Factory builds service clients for resolved credentials
type Factory func(ctx context.Context, creds *models.AWSCredentials, region string) (*APIs, error)

// SDKFactory builds real SDK clients authenticated with static credentials
func SDKFactory() Factory {
	return func(ctx context.Context, creds *models.AWSCredentials, region string) (*APIs, error) {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				creds.SessionToken,
			)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return &APIs{
			EC2: ec2.NewFromConfig(cfg),
			S3:  s3.NewFromConfig(cfg),
			RDS: rds.NewFromConfig(cfg),
		}, nil
	}
}

// Client reports AWS inventory
type Client struct {
	creds   providers.CredentialSource
	factory Factory
	region  string
	logger  *zap.Logger
}

var _ providers.Client = (*Client)(nil)

// NewClient creates an AWS inventory client. region is used when the
// resolved credentials do not name one.
func NewClient(creds providers.CredentialSource, factory Factory, region string, logger *zap.Logger) *Client {
	if factory == nil {
		factory = SDKFactory()
	}
	if region == "" {
		region = defaultRegion
	}
	return &Client{creds: creds, factory: factory, region: region, logger: logger}
}

// Provider implements providers.Client
func (c *Client) Provider() models.Provider {
	return models.ProviderAWS
}

// FetchInventory implements providers.Client
func (c *Client) FetchInventory(ctx context.Context, principal *models.Principal) (*models.ProviderInventory, error) {
	creds, err := c.creds.GetCredentials(ctx, models.ProviderAWS, principal)
	if err != nil {
		return nil, err
	}
	if creds.AWS == nil {
		return nil, providers.NewProviderError(models.ProviderAWS, "resolve credentials", errors.New("no AWS credentials in bundle"))
	}

	region := creds.AWS.Region
	if region == "" {
		region = c.region
	}
	apis, err := c.factory(ctx, creds.AWS, region)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderAWS, "create clients", err)
	}

	b := providers.NewInventoryBuilder(models.ProviderAWS, providers.AWSRates)

	stopped, err := c.addInstances(ctx, apis.EC2, b, region)
	if err != nil {
		return nil, providers.NewProviderError(models.ProviderAWS, "describe instances", err)
	}
	if err := c.addBuckets(ctx, apis.S3, b, region); err != nil {
		c.logger.Warn("failed to list S3 buckets", zap.Error(err))
	}
	if err := c.addDatabases(ctx, apis.RDS, b, region); err != nil {
		c.logger.Warn("failed to describe RDS instances", zap.Error(err))
	}
	if stopped > 0 {
		b.AddAlert("warning", "EC2", providers.StoppedAlert(stopped, "EC2"))
	}

	return b.Build(), nil
}

func (c *Client) addInstances(ctx context.Context, api ec2.DescribeInstancesAPIClient, b *providers.InventoryBuilder, region string) (int, error) {
	stopped := 0
	pager := ec2.NewDescribeInstancesPaginator(api, &ec2.DescribeInstancesInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				state := ec2types.InstanceStateName("unknown")
				if inst.State != nil {
					state = inst.State.Name
				}
				health := providers.Critical
				switch state {
				case ec2types.InstanceStateNameRunning:
					health = providers.Healthy
				case ec2types.InstanceStateNameStopped:
					health = providers.Warning
					stopped++
				}

				cpu := 2
				if inst.CpuOptions != nil && inst.CpuOptions.CoreCount != nil {
					cpu = int(*inst.CpuOptions.CoreCount)
				}
				size := string(inst.InstanceType)
				b.AddInstance(models.Instance{
					Name:     instanceName(inst),
					Type:     size,
					Status:   string(state),
					Region:   region,
					CPU:      cpu,
					MemoryGB: providers.MemoryForSize(size),
				}, health, "EC2 Instance")
			}
		}
	}
	return stopped, nil
}

func (c *Client) addBuckets(ctx context.Context, api s3.ListBucketsAPIClient, b *providers.InventoryBuilder, region string) error {
	pager := s3.NewListBucketsPaginator(api, &s3.ListBucketsInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, bucket := range page.Buckets {
			r := sdkaws.ToString(bucket.BucketRegion)
			if r == "" {
				r = region
			}
			b.AddStorage(models.StorageVolume{
				Name:   sdkaws.ToString(bucket.Name),
				Type:   "S3",
				Region: r,
			}, providers.Healthy)
		}
	}
	return nil
}

func (c *Client) addDatabases(ctx context.Context, api rds.DescribeDBInstancesAPIClient, b *providers.InventoryBuilder, region string) error {
	pager := rds.NewDescribeDBInstancesPaginator(api, &rds.DescribeDBInstancesInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, db := range page.DBInstances {
			b.AddDatabase(models.Database{
				Name:    sdkaws.ToString(db.DBInstanceIdentifier),
				Engine:  sdkaws.ToString(db.Engine),
				Version: sdkaws.ToString(db.EngineVersion),
				Size:    sdkaws.ToString(db.DBInstanceClass),
			}, databaseHealth(sdkaws.ToString(db.DBInstanceStatus)), "RDS Database", region)
		}
	}
	return nil
}

func instanceName(inst ec2types.Instance) string {
	for _, tag := range inst.Tags {
		if sdkaws.ToString(tag.Key) == "Name" && sdkaws.ToString(tag.Value) != "" {
			return sdkaws.ToString(tag.Value)
		}
	}
	return sdkaws.ToString(inst.InstanceId)
}

func databaseHealth(status string) providers.Health {
	switch {
	case status == "stopped" || status == "stopping":
		return providers.Warning
	case status == "failed" || status == "storage-full" ||
		strings.HasPrefix(status, "incompatible") || strings.HasPrefix(status, "inaccessible"):
		return providers.Critical
	}
	return providers.Healthy
}
