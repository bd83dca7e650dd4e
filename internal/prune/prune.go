package prune

import (
	"context"
	"log"
	"sort"

	"github.com/imamik/alpine-cloud-images/internal/inventory"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// Reasons an image is pruned or kept, in the order they are checked.
const (
	ReasonPrivate            = "PRIVATE"
	ReasonEdgeEOL            = "EDGE-EOL"
	ReasonRC                 = "RC"
	ReasonUnknownVariant     = "__WTF__"
	ReasonEOLUnusedNotLatest = "EOL-UNUSED-NOT-LATEST"
	ReasonEOLNotLatest       = "EOL-NOT-LATEST"
	ReasonUnusedNotLatest    = "UNUSED-NOT-LATEST"
	ReasonKept               = "__KEPT__"
)

// Selection enables pruning for each kind of image.
type Selection struct {
	Private            bool
	EdgeEOL            bool
	RC                 bool
	EOLUnusedNotLatest bool
	EOLNotLatest       bool
	UnusedNotLatest    bool
}

// Removal is an image selected for removal.
type Removal struct {
	Region string
	ID     string
	Reason string
	Image  inventory.Image
}

// Plan is the outcome of classifying every cached image.
type Plan struct {
	Removals []Removal
	// Summary maps region, then reason, to image names by ID.
	Summary map[string]map[string]map[string]string
}

// Classify returns the reason an image is removed, or ReasonKept or
// ReasonUnknownVariant when it stays.
func Classify(img inventory.Image, latest map[string]inventory.Latest, sel Selection) string {
	switch {
	case sel.Private && img.Private:
		return ReasonPrivate
	case sel.EdgeEOL && img.Version == "edge" && img.EOL:
		return ReasonEdgeEOL
	case sel.RC && img.RC:
		return ReasonRC
	}

	l, ok := latest[img.VariantKey]
	if !ok {
		return ReasonUnknownVariant
	}
	unused := img.Launched == inventory.Never
	notLatest := img.ReleaseKey != l.ReleaseKey

	switch {
	case sel.EOLUnusedNotLatest && img.EOL && unused && notLatest:
		return ReasonEOLUnusedNotLatest
	case sel.EOLNotLatest && img.EOL && notLatest:
		return ReasonEOLNotLatest
	case sel.UnusedNotLatest && unused && notLatest:
		return ReasonUnusedNotLatest
	}
	return ReasonKept
}

// Removes reports whether reason means the image is removed.
func Removes(reason string) bool {
	return reason != ReasonKept && reason != ReasonUnknownVariant
}

// NewPlan classifies the cached images of regions; nil regions means every
// cached region. Regions missing from the cache are skipped.
func NewPlan(cache inventory.Cache, regions []string, sel Selection) *Plan {
	if regions == nil {
		regions = cache.Regions()
	}
	regions = append([]string(nil), regions...)
	sort.Strings(regions)

	p := &Plan{Summary: map[string]map[string]map[string]string{}}
	for _, region := range regions {
		r, ok := cache[region]
		if !ok {
			logx.Warnf("region %s is not in the image cache, skipping", region)
			continue
		}
		log.Printf("--- %s : %d ---", region, len(r.Images))

		ids := make([]string, 0, len(r.Images))
		for id := range r.Images {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			img := r.Images[id]
			reason := Classify(img, r.Latest, sel)
			switch {
			case reason == ReasonUnknownVariant:
				logx.Warnf("variant key '%s' not in latest, skipping.", img.VariantKey)
			case reason == ReasonKept:
				logx.Debugf("%s\t%s\t%s", region, reason, img.Name)
			default:
				log.Printf("%s\t%s\t%s", region, reason, img.Name)
				p.Removals = append(p.Removals, Removal{Region: region, ID: id, Reason: reason, Image: img})
			}
			p.add(region, reason, id, img.Name)
		}
	}
	return p
}

func (p *Plan) add(region, reason, id, name string) {
	reasons := p.Summary[region]
	if reasons == nil {
		reasons = map[string]map[string]string{}
		p.Summary[region] = reasons
	}
	if reasons[reason] == nil {
		reasons[reason] = map[string]string{}
	}
	reasons[reason][id] = name
}

// Count is a number of images for a reason.
type Count struct {
	Reason string
	Count  int
}

// RegionCounts returns the per-reason counts of region, sorted by reason.
func (p *Plan) RegionCounts(region string) []Count {
	reasons := p.Summary[region]
	out := make([]Count, 0, len(reasons))
	for reason, images := range reasons {
		out = append(out, Count{Reason: reason, Count: len(images)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out
}

// Regions returns the summarised regions, sorted.
func (p *Plan) Regions() []string {
	regions := make([]string, 0, len(p.Summary))
	for r := range p.Summary {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// Totals returns the counts per reason over all regions, sorted by reason.
func (p *Plan) Totals() []Count {
	totals := map[string]int{}
	for _, reasons := range p.Summary {
		for reason, images := range reasons {
			totals[reason] += len(images)
		}
	}
	out := make([]Count, 0, len(totals))
	for reason, n := range totals {
		out = append(out, Count{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out
}

// LogSummary logs the per-region summary followed by the totals.
func (p *Plan) LogSummary() {
	log.Printf("SUMMARY")
	for _, region := range p.Regions() {
		log.Printf("\t%s", region)
		for _, c := range p.RegionCounts(region) {
			log.Printf("\t\t%d\t%s", c.Count, c.Reason)
		}
	}
	log.Printf("TOTALS")
	for _, c := range p.Totals() {
		log.Printf("\t%d\t%s", c.Count, c.Reason)
	}
}

// Remover deletes images and their snapshots.
type Remover interface {
	DeregisterImage(ctx context.Context, region, imageID string) error
	DeleteSnapshot(ctx context.Context, region, snapshotID string) error
}

// Execute deregisters every planned image and deletes its snapshot.
// Failures are logged and counted; pruning carries on with the next image.
// observe, when set, is called with the outcome of each removal.
func (p *Plan) Execute(ctx context.Context, r Remover, observe ...func(Removal, error)) int {
	failed := 0
	for _, rm := range p.Removals {
		if err := ctx.Err(); err != nil {
			logx.Warnf("Failed: %v", err)
			return failed + 1
		}
		err := remove(ctx, r, rm)
		if err != nil {
			logx.Warnf("Failed: %v", err)
			failed++
		}
		for _, fn := range observe {
			fn(rm, err)
		}
	}
	log.Printf("DONE")
	return failed
}

func remove(ctx context.Context, r Remover, rm Removal) error {
	log.Printf("Deregistering: %s/%s: %s", rm.Region, rm.ID, rm.Image.Name)
	if err := r.DeregisterImage(ctx, rm.Region, rm.ID); err != nil {
		return err
	}
	if rm.Image.SnapshotID == "" {
		return nil
	}
	log.Printf("Deleting: %s/%s: %s", rm.Region, rm.Image.SnapshotID, rm.Image.Name)
	return r.DeleteSnapshot(ctx, rm.Region, rm.Image.SnapshotID)
}
