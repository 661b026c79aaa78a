package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bnema/regreport/pkg/logger"
	"github.com/bnema/regreport/pkg/rules"
)

// createdLayout is the timestamp format embedded in v1 manifest history,
// after the fractional-second suffix has been dropped.
const createdLayout = "2006-01-02T15:04:05"

// SortError reports that the chronological ordering of one image's tags
// could not be established. A partial ordering would silently misrepresent
// which tag is the newest, so the whole sort fails instead.
type SortError struct {
	Image string
	Err   error
}

func (e *SortError) Error() string {
	return fmt.Sprintf("could not sort %s: %v", e.Image, e.Err)
}

func (e *SortError) Unwrap() error {
	return e.Err
}

// Browser walks the catalog of a registry, filtering images and tags
// through the rule sets it was built with. The rule sets are read-only
// after construction.
type Browser struct {
	client     *Client
	imageRules rules.ImageRuleSet
	tagRules   rules.TagRuleSet
}

// NewBrowser builds a browser over client applying the given rule sets.
// Either set may be empty, an empty set filters nothing.
func NewBrowser(client *Client, imageRules rules.ImageRuleSet, tagRules rules.TagRuleSet) *Browser {
	return &Browser{
		client:     client,
		imageRules: imageRules,
		tagRules:   tagRules,
	}
}

// Images lists the catalog entries accepted by the image rules, preserving
// the order the registry returned them in.
func (b *Browser) Images(ctx context.Context) ([]string, error) {
	logger.Info("Fetching the image catalog", "registry", b.client.Host())
	pages, err := b.client.FetchAllPages(ctx, "/v2/_catalog")
	if err != nil {
		return nil, err
	}

	var images []string
	for _, page := range pages {
		var payload struct {
			Repositories []string `json:"repositories"`
		}
		if err := json.Unmarshal(page, &payload); err != nil {
			return nil, &RegistryError{Path: "/v2/_catalog", Err: err}
		}
		for _, name := range payload.Repositories {
			if b.imageRules.Accepts(name) {
				images = append(images, name)
			}
		}
	}
	return images, nil
}

// ImageTags maps every accepted image to its accepted tags. Images whose
// tags are all filtered out are omitted. With sorted set, each tag list is
// ordered oldest first.
func (b *Browser) ImageTags(ctx context.Context, sorted bool) (map[string][]string, error) {
	images, err := b.Images(ctx)
	if err != nil {
		return nil, err
	}

	imageTags := make(map[string][]string)
	for _, image := range images {
		all, err := b.client.Tags(ctx, image)
		if err != nil {
			return nil, err
		}
		var tags []string
		for _, tag := range all {
			if b.tagRules.Accepts(image, tag) {
				tags = append(tags, tag)
			}
		}
		if sorted {
			tags, err = b.SortTags(ctx, image, tags)
			if err != nil {
				return nil, err
			}
		}
		if len(tags) > 0 {
			imageTags[image] = tags
		}
	}
	return imageTags, nil
}

// SortTags orders an image's tags from oldest to newest, using the creation
// timestamp embedded in each tag's v1 manifest history. Any tag with
// missing or malformed history fails the whole sort with a *SortError.
func (b *Browser) SortTags(ctx context.Context, image string, tags []string) ([]string, error) {
	type datedTag struct {
		tag     string
		created time.Time
	}
	dated := make([]datedTag, 0, len(tags))
	for _, tag := range tags {
		created, err := b.tagDate(ctx, image, tag)
		if err != nil {
			// Transport failures are registry errors, only malformed
			// manifest data becomes a sort error.
			if regErr, ok := err.(*RegistryError); ok {
				return nil, regErr
			}
			logger.Error("Malformed manifest response", "image", image, "tag", tag, "error", err)
			return nil, &SortError{Image: image, Err: err}
		}
		dated = append(dated, datedTag{tag: tag, created: created})
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].created.Before(dated[j].created)
	})

	sorted := make([]string, len(dated))
	for i, d := range dated {
		sorted[i] = d.tag
	}
	return sorted, nil
}

// tagDate extracts the creation time of one tag from its schema-v1
// manifest. Only the first history entry is consulted.
func (b *Browser) tagDate(ctx context.Context, image, tag string) (time.Time, error) {
	// cache=busted keeps intermediary HTTP caches from serving a stale
	// manifest for a re-pushed tag.
	pathPart := fmt.Sprintf("/v2/%s/manifests/%s?cache=busted", image, tag)
	pages, err := b.client.FetchAllPages(ctx, pathPart)
	if err != nil {
		return time.Time{}, err
	}

	var manifest struct {
		History []struct {
			V1Compatibility string `json:"v1Compatibility"`
		} `json:"history"`
	}
	if err := json.Unmarshal(pages[0], &manifest); err != nil {
		return time.Time{}, fmt.Errorf("invalid manifest: %w", err)
	}
	if len(manifest.History) == 0 {
		return time.Time{}, fmt.Errorf("manifest for %s:%s has no history", image, tag)
	}

	var compat struct {
		Created string `json:"created"`
	}
	if err := json.Unmarshal([]byte(manifest.History[0].V1Compatibility), &compat); err != nil {
		return time.Time{}, fmt.Errorf("invalid v1Compatibility document: %w", err)
	}

	// Drop the fractional seconds and whatever timezone suffix follows
	// them; the remainder is a plain wall-clock timestamp.
	created, _, found := strings.Cut(compat.Created, ".")
	if !found || created == "" {
		return time.Time{}, fmt.Errorf("malformed created field %q", compat.Created)
	}
	return time.Parse(createdLayout, created)
}
