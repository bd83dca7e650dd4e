package ec2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/imamik/alpine-cloud-images/internal/tags"
)

// API is the part of the EC2 client the image tooling uses.
type API interface {
	DescribeRegions(ctx context.Context, in *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeImageAttribute(ctx context.Context, in *ec2.DescribeImageAttributeInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImageAttributeOutput, error)
	ImportSnapshot(ctx context.Context, in *ec2.ImportSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.ImportSnapshotOutput, error)
	DescribeImportSnapshotTasks(ctx context.Context, in *ec2.DescribeImportSnapshotTasksInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImportSnapshotTasksOutput, error)
	RegisterImage(ctx context.Context, in *ec2.RegisterImageInput, optFns ...func(*ec2.Options)) (*ec2.RegisterImageOutput, error)
	CopyImage(ctx context.Context, in *ec2.CopyImageInput, optFns ...func(*ec2.Options)) (*ec2.CopyImageOutput, error)
	CreateTags(ctx context.Context, in *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	ModifyImageAttribute(ctx context.Context, in *ec2.ModifyImageAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyImageAttributeOutput, error)
	EnableImageDeprecation(ctx context.Context, in *ec2.EnableImageDeprecationInput, optFns ...func(*ec2.Options)) (*ec2.EnableImageDeprecationOutput, error)
	DeregisterImage(ctx context.Context, in *ec2.DeregisterImageInput, optFns ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error)
	DeleteSnapshot(ctx context.Context, in *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

var _ API = (*ec2.Client)(nil)

// Options configures Clients.
type Options struct {
	// Region is the default region, used for imports.
	Region string
	// Endpoint overrides the EC2 endpoint, for testing against emulators.
	Endpoint string

	AccessKey string
	SecretKey string
	Profile   string
}

// Clients hands out one EC2 client per region.
type Clients struct {
	region    string
	newClient func(region string) API

	mu       sync.Mutex
	byRegion map[string]API
	regions  []string
}

// New loads the AWS configuration and returns a client factory.
func New(ctx context.Context, opts Options) (*Clients, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	} else if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithFactory(opts.Region, func(region string) API {
		return ec2.NewFromConfig(cfg, func(o *ec2.Options) {
			o.Region = region
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
		})
	}), nil
}

// NewWithFactory returns Clients that build region clients with newClient.
func NewWithFactory(defaultRegion string, newClient func(region string) API) *Clients {
	return &Clients{
		region:    defaultRegion,
		newClient: newClient,
		byRegion:  map[string]API{},
	}
}

// DefaultRegion is the region images are imported into.
func (c *Clients) DefaultRegion() string {
	return c.region
}

// Region returns the client for region, "" meaning the default region.
func (c *Clients) Region(region string) API {
	if region == "" {
		region = c.region
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.byRegion[region]; ok {
		return client
	}
	client := c.newClient(region)
	c.byRegion[region] = client
	return client
}

// Regions returns the regions enabled for the account, sorted.
func (c *Clients) Regions(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	cached := c.regions
	c.mu.Unlock()
	if cached != nil {
		return append([]string(nil), cached...), nil
	}

	out, err := c.Region("").DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if status := aws.ToString(r.OptInStatus); status == "not-opted-in" {
			continue
		}
		regions = append(regions, aws.ToString(r.RegionName))
	}
	sort.Strings(regions)

	c.mu.Lock()
	c.regions = regions
	c.mu.Unlock()
	return append([]string(nil), regions...), nil
}

// ToEC2Tags converts image tags to EC2 tags, sorted by key.
// EC2 rejects empty keys, so those are dropped.
func ToEC2Tags(t tags.Tags) []types.Tag {
	out := make([]types.Tag, 0, len(t))
	for _, k := range t.Keys() {
		if k == "" {
			continue
		}
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(t.Get(k))})
	}
	return out
}

// FromEC2Tags converts EC2 tags to image tags.
func FromEC2Tags(in []types.Tag) tags.Tags {
	t := make(tags.Tags, len(in))
	for _, tag := range in {
		t[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return t
}

// SnapshotIDs returns the EBS snapshots backing an image.
func SnapshotIDs(img types.Image) []string {
	var ids []string
	for _, bdm := range img.BlockDeviceMappings {
		if bdm.Ebs != nil && bdm.Ebs.SnapshotId != nil {
			ids = append(ids, *bdm.Ebs.SnapshotId)
		}
	}
	return ids
}

// IsNotFound reports EC2 errors for images or snapshots that do not exist.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return strings.HasSuffix(code, ".NotFound") || strings.HasSuffix(code, ".Malformed")
}
