package clouds

import (
	"context"

	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/tags"
)

// stubActions are the steps a cloud without import support can run.
var stubActions = []string{image.StepLocal, image.StepUpload, image.StepRelease}

// Stub is an adapter for clouds whose images are built and uploaded but
// never imported, either because there is no provider behind the cloud
// (nocloud) or because import is not automated yet.
type Stub struct {
	name string
}

// NewStub returns a stub adapter for cloud.
func NewStub(cloud string) *Stub {
	return &Stub{name: cloud}
}

// Stubs returns the stub adapters for nocloud, azure, gcp and oci.
func Stubs() []Adapter {
	return []Adapter{NewStub("nocloud"), NewStub("azure"), NewStub("gcp"), NewStub("oci")}
}

func (s *Stub) Name() string { return s.name }

func (s *Stub) Actions() []string { return append([]string(nil), stubActions...) }

func (s *Stub) Regions(context.Context) ([]string, error) { return nil, nil }

func (s *Stub) LatestImportedTags(context.Context, *image.Config) (tags.Tags, error) {
	return nil, nil
}

func (s *Stub) ImportImage(context.Context, *image.Config) error { return nil }

func (s *Stub) DeleteImage(context.Context, *image.Config, string) error { return nil }

func (s *Stub) PublishImage(context.Context, *image.Config) error { return nil }
