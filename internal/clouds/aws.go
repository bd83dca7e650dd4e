package clouds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/inventory"
	"github.com/imamik/alpine-cloud-images/internal/platform/ec2"
	"github.com/imamik/alpine-cloud-images/internal/tags"
	"github.com/imamik/alpine-cloud-images/internal/util/async"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
	"github.com/imamik/alpine-cloud-images/internal/util/naming"
	"github.com/imamik/alpine-cloud-images/internal/util/retry"
)

var awsActions = []string{
	image.StepLocal, image.StepUpload, image.StepImport, image.StepPublish, image.StepRelease,
}

// EC2 snapshot import disk formats by image_format.
var awsImportFormats = map[string]string{
	"vhd": "VHD",
	"raw": "RAW",
}

var awsArchitectures = map[string]types.ArchitectureValues{
	"x86_64":  types.ArchitectureValuesX8664,
	"aarch64": types.ArchitectureValuesArm64,
}

var awsBootModes = map[string]types.BootModeValues{
	"bios": types.BootModeValuesLegacyBios,
	"uefi": types.BootModeValuesUefi,
}

const awsRootDevice = "/dev/xvda"

// ObjectStager stages images in S3 for EC2 snapshot import.
type ObjectStager interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// AWSOptions configures the AWS adapter. Clients are created on first use.
type AWSOptions struct {
	EC2    func(ctx context.Context) (*ec2.Clients, error)
	Stager func(ctx context.Context) (ObjectStager, error)

	// Bucket receives images before import; ImportRole is the service role
	// EC2 assumes to read it.
	Bucket     string
	ImportRole string

	Timeouts *config.Timeouts
	// Parallel limits concurrent region copies.
	Parallel int
	Now      func() time.Time
}

// AWS imports images as EBS snapshots and publishes AMIs.
type AWS struct {
	opts AWSOptions

	mu      sync.Mutex
	clients *ec2.Clients
	stager  ObjectStager
}

var (
	_ Adapter          = (*AWS)(nil)
	_ Tagger           = (*AWS)(nil)
	_ inventory.Source = (*AWS)(nil)
)

// NewAWS returns the AWS adapter.
func NewAWS(opts AWSOptions) *AWS {
	if opts.Timeouts == nil {
		opts.Timeouts = config.LoadTimeouts()
	}
	if opts.ImportRole == "" {
		opts.ImportRole = "vmimport"
	}
	if opts.Parallel < 1 {
		opts.Parallel = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AWS{opts: opts}
}

func (a *AWS) Name() string { return "aws" }

func (a *AWS) Actions() []string { return append([]string(nil), awsActions...) }

func (a *AWS) ec2(ctx context.Context) (*ec2.Clients, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clients != nil {
		return a.clients, nil
	}
	if a.opts.EC2 == nil {
		return nil, errors.New("aws: no EC2 client configured")
	}
	clients, err := a.opts.EC2(ctx)
	if err != nil {
		return nil, err
	}
	a.clients = clients
	return clients, nil
}

func (a *AWS) s3(ctx context.Context) (ObjectStager, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stager != nil {
		return a.stager, nil
	}
	if a.opts.Stager == nil {
		return nil, errors.New("aws: no S3 client configured for staging imports")
	}
	stager, err := a.opts.Stager(ctx)
	if err != nil {
		return nil, err
	}
	a.stager = stager
	return stager, nil
}

// Regions returns the regions enabled for the account.
func (a *AWS) Regions(ctx context.Context) ([]string, error) {
	clients, err := a.ec2(ctx)
	if err != nil {
		return nil, err
	}
	return clients.Regions(ctx)
}

// LatestImportedTags returns the tags of the newest image tagged with the
// config's project and image key in the import region.
func (a *AWS) LatestImportedTags(ctx context.Context, c *image.Config) (tags.Tags, error) {
	clients, err := a.ec2(ctx)
	if err != nil {
		return nil, err
	}
	images, err := a.taggedImages(ctx, clients.Region(""), c.Project(), c.ImageKey())
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}

	latest := images[0]
	t := ec2.FromEC2Tags(latest.Tags)
	t.Set("import_id", aws.ToString(latest.ImageId))
	t.Set("import_region", clients.DefaultRegion())
	return t, nil
}

// taggedImages returns the account's images for a project and image key,
// newest first.
func (a *AWS) taggedImages(ctx context.Context, api ec2.API, project, imageKey string) ([]types.Image, error) {
	out, err := api.DescribeImages(ctx, &awsec2.DescribeImagesInput{
		Owners: []string{"self"},
		Filters: []types.Filter{
			{Name: aws.String("tag:project"), Values: []string{project}},
			{Name: aws.String("tag:image_key"), Values: []string{imageKey}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe images for %s: %w", imageKey, err)
	}
	images := out.Images
	sort.SliceStable(images, func(i, j int) bool {
		return aws.ToString(images[i].CreationDate) > aws.ToString(images[j].CreationDate)
	})
	return images, nil
}

// ImportImage stages the image in S3, imports it as a snapshot and
// registers an AMI in the default region.
func (a *AWS) ImportImage(ctx context.Context, c *image.Config) error {
	format, ok := awsImportFormats[c.ImageFormat()]
	if !ok {
		return fmt.Errorf("aws: unsupported import format %q", c.ImageFormat())
	}
	arch, ok := awsArchitectures[c.Arch()]
	if !ok {
		return fmt.Errorf("aws: unsupported architecture %q", c.Arch())
	}
	bootMode, ok := awsBootModes[c.Firmware()]
	if !ok {
		return fmt.Errorf("aws: unsupported firmware %q", c.Firmware())
	}
	if a.opts.Bucket == "" {
		return errors.New("aws: no import bucket configured")
	}

	if err := ensureLocalImage(ctx, c); err != nil {
		return err
	}
	clients, err := a.ec2(ctx)
	if err != nil {
		return err
	}
	stager, err := a.s3(ctx)
	if err != nil {
		return err
	}
	api := clients.Region("")

	// the import service only reads uncompressed disks
	file := c.ImageName() + "." + c.ImageFormat()
	key := naming.ImportObjectKey(file, a.opts.Now())
	log.Printf("Staging %s in s3://%s/%s", file, a.opts.Bucket, key)
	if err := stageImage(ctx, stager, a.opts.Bucket, key, c); err != nil {
		return err
	}
	defer func() {
		// the import has its own copy once the task finishes
		if err := stager.DeleteObject(context.Background(), a.opts.Bucket, key); err != nil {
			logx.Warnf("failed to remove staged import object %s: %v", key, err)
		}
	}()

	snapshotID, err := a.importSnapshot(ctx, api, c, format, key)
	if err != nil {
		return err
	}

	log.Printf("Registering image %s from snapshot %s", c.ImageName(), snapshotID)
	reg, err := api.RegisterImage(ctx, &awsec2.RegisterImageInput{
		Name:               aws.String(c.ImageName()),
		Description:        aws.String(c.ImageDescription()),
		Architecture:       arch,
		BootMode:           bootMode,
		EnaSupport:         aws.Bool(true),
		ImdsSupport:        types.ImdsSupportValuesV20,
		RootDeviceName:     aws.String(awsRootDevice),
		VirtualizationType: aws.String("hvm"),
		BlockDeviceMappings: []types.BlockDeviceMapping{{
			DeviceName: aws.String(awsRootDevice),
			Ebs: &types.EbsBlockDevice{
				SnapshotId:          aws.String(snapshotID),
				VolumeType:          types.VolumeTypeGp3,
				DeleteOnTermination: aws.Bool(true),
			},
		}},
	})
	if err != nil {
		a.deleteSnapshot(ctx, api, snapshotID)
		return fmt.Errorf("failed to register image %s: %w", c.ImageName(), err)
	}
	imageID := aws.ToString(reg.ImageId)

	if err := a.waitAvailable(ctx, api, imageID); err != nil {
		return err
	}

	c.MarkImported(imageID, clients.DefaultRegion())
	return a.tag(ctx, api, c.Tags(), imageID, snapshotID)
}

// stageImage uploads the local image, decompressing a compressed one into
// a temporary file first so its size is known.
func stageImage(ctx context.Context, stager ObjectStager, bucket, key string, c *image.Config) error {
	if c.ImageCompression() == "" {
		return stageFile(ctx, stager, bucket, key, c.ImagePath())
	}

	src, err := openImage(c)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(c.LocalDir(), "import-*."+c.ImageFormat())
	if err != nil {
		return fmt.Errorf("failed to create decompressed image: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	log.Printf("Decompressing %s", c.ImageFile())
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to decompress %s: %w", c.ImageFile(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write decompressed image: %w", err)
	}
	return stageFile(ctx, stager, bucket, key, tmp.Name())
}

func stageFile(ctx context.Context, stager ObjectStager, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return stager.PutObject(ctx, bucket, key, f, info.Size())
}

func (a *AWS) importSnapshot(ctx context.Context, api ec2.API, c *image.Config, format, key string) (string, error) {
	out, err := api.ImportSnapshot(ctx, &awsec2.ImportSnapshotInput{
		Description: aws.String(c.ImageDescription()),
		DiskContainer: &types.SnapshotDiskContainer{
			Description: aws.String(c.ImageDescription()),
			Format:      aws.String(format),
			UserBucket: &types.UserBucket{
				S3Bucket: aws.String(a.opts.Bucket),
				S3Key:    aws.String(key),
			},
		},
		RoleName: aws.String(a.opts.ImportRole),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start snapshot import: %w", err)
	}
	taskID := aws.ToString(out.ImportTaskId)
	log.Printf("Waiting for snapshot import task %s", taskID)

	var snapshotID string
	err = retry.Poll(ctx, a.opts.Timeouts.PollInterval, a.opts.Timeouts.SnapshotImport, func(ctx context.Context) (bool, error) {
		tasks, err := api.DescribeImportSnapshotTasks(ctx, &awsec2.DescribeImportSnapshotTasksInput{
			ImportTaskIds: []string{taskID},
		})
		if err != nil {
			return false, fmt.Errorf("failed to describe import task %s: %w", taskID, err)
		}
		if len(tasks.ImportSnapshotTasks) == 0 || tasks.ImportSnapshotTasks[0].SnapshotTaskDetail == nil {
			return false, nil
		}
		detail := tasks.ImportSnapshotTasks[0].SnapshotTaskDetail
		status := aws.ToString(detail.Status)
		logx.Debugf("import task %s: %s %s", taskID, status, aws.ToString(detail.Progress))
		switch status {
		case "completed":
			snapshotID = aws.ToString(detail.SnapshotId)
			return true, nil
		case "deleting", "deleted":
			return false, fmt.Errorf("snapshot import task %s failed: %s", taskID, aws.ToString(detail.StatusMessage))
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return snapshotID, nil
}

func (a *AWS) waitAvailable(ctx context.Context, api ec2.API, imageID string) error {
	err := retry.Poll(ctx, a.opts.Timeouts.PollInterval, a.opts.Timeouts.ImageWait, func(ctx context.Context) (bool, error) {
		out, err := api.DescribeImages(ctx, &awsec2.DescribeImagesInput{ImageIds: []string{imageID}})
		if err != nil {
			if ec2.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if len(out.Images) == 0 {
			return false, nil
		}
		switch out.Images[0].State {
		case types.ImageStateAvailable:
			return true, nil
		case types.ImageStateFailed, types.ImageStateError:
			return false, fmt.Errorf("image %s is %s", imageID, out.Images[0].State)
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed waiting for image %s: %w", imageID, err)
	}
	return nil
}

func (a *AWS) tag(ctx context.Context, api ec2.API, t tags.Tags, ids ...string) error {
	_, err := api.CreateTags(ctx, &awsec2.CreateTagsInput{
		Resources: ids,
		Tags:      ec2.ToEC2Tags(t),
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", strings.Join(ids, ", "), err)
	}
	return nil
}

// DeleteImage deregisters an image in the import region and removes its
// snapshots.
func (a *AWS) DeleteImage(ctx context.Context, c *image.Config, imageID string) error {
	clients, err := a.ec2(ctx)
	if err != nil {
		return err
	}
	return a.deleteImage(ctx, clients.Region(c.String("import_region")), imageID)
}

func (a *AWS) deleteImage(ctx context.Context, api ec2.API, imageID string) error {
	out, err := api.DescribeImages(ctx, &awsec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil {
		if ec2.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to describe image %s: %w", imageID, err)
	}
	if len(out.Images) == 0 {
		return nil
	}

	log.Printf("Deregistering image %s", imageID)
	if _, err := api.DeregisterImage(ctx, &awsec2.DeregisterImageInput{ImageId: aws.String(imageID)}); err != nil && !ec2.IsNotFound(err) {
		return fmt.Errorf("failed to deregister image %s: %w", imageID, err)
	}
	for _, snapshotID := range ec2.SnapshotIDs(out.Images[0]) {
		a.deleteSnapshot(ctx, api, snapshotID)
	}
	return nil
}

func (a *AWS) deleteSnapshot(ctx context.Context, api ec2.API, snapshotID string) {
	log.Printf("Deleting snapshot %s", snapshotID)
	if _, err := api.DeleteSnapshot(ctx, &awsec2.DeleteSnapshotInput{SnapshotId: aws.String(snapshotID)}); err != nil && !ec2.IsNotFound(err) {
		logx.Warnf("failed to delete snapshot %s: %v", snapshotID, err)
	}
}

// PublishImage copies the imported image to every configured region, sets
// launch permissions and schedules deprecation at end of life.
func (a *AWS) PublishImage(ctx context.Context, c *image.Config) error {
	sourceID := c.String("import_id")
	if sourceID == "" {
		return fmt.Errorf("aws: %s has not been imported", c.ImageKey())
	}
	clients, err := a.ec2(ctx)
	if err != nil {
		return err
	}
	sourceRegion := c.String("import_region")
	if sourceRegion == "" {
		sourceRegion = clients.DefaultRegion()
	}

	regions, err := a.publishRegions(ctx, c, sourceRegion)
	if err != nil {
		return err
	}
	deprecateAt, hasEOL := endOfLife(c.EndOfLife())
	public := c.Attrs().Tree("access").Truthy("PUBLIC")

	var mu sync.Mutex
	artifacts := map[string]string{}
	err = async.ForEach(ctx, regions, a.opts.Parallel, func(ctx context.Context, region string) error {
		api := clients.Region(region)
		imageID, err := a.regionImage(ctx, api, c, sourceID, sourceRegion, region)
		if err != nil {
			return fmt.Errorf("%s: %w", region, err)
		}
		if err := a.setLaunchPermission(ctx, api, imageID, public); err != nil {
			return fmt.Errorf("%s: %w", region, err)
		}
		if hasEOL {
			if _, err := api.EnableImageDeprecation(ctx, &awsec2.EnableImageDeprecationInput{
				ImageId:     aws.String(imageID),
				DeprecateAt: aws.Time(deprecateAt),
			}); err != nil {
				return fmt.Errorf("%s: failed to set deprecation on %s: %w", region, imageID, err)
			}
		}

		mu.Lock()
		artifacts[region] = imageID
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	c.MarkPublished(artifacts)
	return a.TagImage(ctx, c)
}

// publishRegions resolves the regions attribute. ALL selects every enabled
// region; the import region is always included.
func (a *AWS) publishRegions(ctx context.Context, c *image.Config, sourceRegion string) ([]string, error) {
	selected := map[string]bool{sourceRegion: true}

	regions := c.Attrs().Tree("regions")
	if regions.Truthy("ALL") {
		all, err := a.Regions(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range all {
			selected[r] = true
		}
	} else {
		regions.Each(func(k string, v any) {
			if config.Truthy(v) {
				selected[k] = true
			}
		})
	}

	out := make([]string, 0, len(selected))
	for r := range selected {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

// regionImage returns the image in region, copying the source image there
// when no image with the same name exists yet.
func (a *AWS) regionImage(ctx context.Context, api ec2.API, c *image.Config, sourceID, sourceRegion, region string) (string, error) {
	if region == sourceRegion {
		return sourceID, nil
	}
	if id := c.Artifacts()[region]; id != "" {
		logx.Debugf("%s already published to %s as %s", c.ImageKey(), region, id)
		return id, nil
	}

	existing, err := api.DescribeImages(ctx, &awsec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: []types.Filter{{Name: aws.String("name"), Values: []string{c.ImageName()}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", c.ImageName(), err)
	}
	if len(existing.Images) > 0 {
		return aws.ToString(existing.Images[0].ImageId), nil
	}

	log.Printf("Copying %s to %s", c.ImageName(), region)
	out, err := api.CopyImage(ctx, &awsec2.CopyImageInput{
		Name:          aws.String(c.ImageName()),
		Description:   aws.String(c.ImageDescription()),
		SourceImageId: aws.String(sourceID),
		SourceRegion:  aws.String(sourceRegion),
		CopyImageTags: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy %s: %w", sourceID, err)
	}
	imageID := aws.ToString(out.ImageId)
	if err := a.waitAvailable(ctx, api, imageID); err != nil {
		return "", err
	}
	return imageID, nil
}

func (a *AWS) setLaunchPermission(ctx context.Context, api ec2.API, imageID string, public bool) error {
	perms := &types.LaunchPermissionModifications{}
	all := []types.LaunchPermission{{Group: types.PermissionGroupAll}}
	if public {
		perms.Add = all
	} else {
		perms.Remove = all
	}
	_, err := api.ModifyImageAttribute(ctx, &awsec2.ModifyImageAttributeInput{
		ImageId:          aws.String(imageID),
		LaunchPermission: perms,
	})
	if err != nil {
		return fmt.Errorf("failed to set launch permission on %s: %w", imageID, err)
	}
	return nil
}

// TagImage writes the current state tags to every published image and its
// snapshots.
func (a *AWS) TagImage(ctx context.Context, c *image.Config) error {
	clients, err := a.ec2(ctx)
	if err != nil {
		return err
	}
	artifacts := c.Artifacts()
	if len(artifacts) == 0 && c.String("import_id") != "" {
		artifacts = map[string]string{c.String("import_region"): c.String("import_id")}
	}

	regions := make([]string, 0, len(artifacts))
	for r := range artifacts {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	t := c.Tags()
	return async.ForEach(ctx, regions, a.opts.Parallel, func(ctx context.Context, region string) error {
		api := clients.Region(region)
		imageID := artifacts[region]
		ids := []string{imageID}
		out, err := api.DescribeImages(ctx, &awsec2.DescribeImagesInput{ImageIds: []string{imageID}})
		if err == nil && len(out.Images) > 0 {
			ids = append(ids, ec2.SnapshotIDs(out.Images[0])...)
		}
		return a.tag(ctx, api, t, ids...)
	})
}

// ListImages returns the available images owned by the account in region,
// oldest first.
func (a *AWS) ListImages(ctx context.Context, region string) ([]inventory.RawImage, error) {
	clients, err := a.ec2(ctx)
	if err != nil {
		return nil, err
	}
	api := clients.Region(region)

	out, err := api.DescribeImages(ctx, &awsec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: []types.Filter{{Name: aws.String("state"), Values: []string{"available"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe images in %s: %w", region, err)
	}
	images := out.Images
	sort.SliceStable(images, func(i, j int) bool {
		return aws.ToString(images[i].CreationDate) < aws.ToString(images[j].CreationDate)
	})

	raw := make([]inventory.RawImage, 0, len(images))
	for _, img := range images {
		r := inventory.RawImage{
			ID:         aws.ToString(img.ImageId),
			Name:       aws.ToString(img.Name),
			Created:    aws.ToString(img.CreationDate),
			Deprecated: aws.ToString(img.DeprecationTime),
			Public:     aws.ToBool(img.Public),
		}
		if ids := ec2.SnapshotIDs(img); len(ids) > 0 {
			r.SnapshotID = ids[0]
		}

		attr, err := api.DescribeImageAttribute(ctx, &awsec2.DescribeImageAttributeInput{
			ImageId:   img.ImageId,
			Attribute: types.ImageAttributeNameLastLaunchedTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get last launched time of %s: %w", r.ID, err)
		}
		if attr.LastLaunchedTime != nil {
			r.LastLaunched = aws.ToString(attr.LastLaunchedTime.Value)
		}
		raw = append(raw, r)
	}
	return raw, nil
}

// DeregisterImage deregisters imageID in region.
func (a *AWS) DeregisterImage(ctx context.Context, region, imageID string) error {
	clients, err := a.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := clients.Region(region).DeregisterImage(ctx, &awsec2.DeregisterImageInput{ImageId: aws.String(imageID)}); err != nil {
		return fmt.Errorf("failed to deregister %s in %s: %w", imageID, region, err)
	}
	return nil
}

// DeleteSnapshot deletes snapshotID in region.
func (a *AWS) DeleteSnapshot(ctx context.Context, region, snapshotID string) error {
	clients, err := a.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := clients.Region(region).DeleteSnapshot(ctx, &awsec2.DeleteSnapshotInput{SnapshotId: aws.String(snapshotID)}); err != nil {
		return fmt.Errorf("failed to delete snapshot %s in %s: %w", snapshotID, region, err)
	}
	return nil
}

// endOfLife parses an end_of_life value as a date or timestamp.
func endOfLife(eol string) (time.Time, bool) {
	if eol == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, image.TimeLayout, time.DateOnly} {
		if t, err := time.Parse(layout, eol); err == nil {
			return t.UTC(), true
		}
	}
	logx.Warnf("ignoring unparsable end_of_life %q", eol)
	return time.Time{}, false
}
