package registry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/opencontainers/go-digest"

	"github.com/bnema/regreport/pkg/logger"
	"github.com/bnema/regreport/pkg/rules"
)

// ManifestDigest resolves an image reference (tag or digest) to its content
// digest, taken from the Docker-Content-Digest response header.
func (c *Client) ManifestDigest(ctx context.Context, name, ref string) (digest.Digest, error) {
	pathPart := fmt.Sprintf("/v2/%s/manifests/%s", name, ref)
	resp, err := c.request(ctx, http.MethodGet, pathPart, manifestV2MediaType)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	dgst, err := digest.Parse(resp.Header.Get(digestHeader))
	if err != nil {
		return "", &RegistryError{Path: pathPart, Err: fmt.Errorf("invalid content digest: %w", err)}
	}
	return dgst, nil
}

// DeleteManifest removes a manifest by content digest. Deleting by digest
// drops every tag pointing at it.
func (c *Client) DeleteManifest(ctx context.Context, name string, dgst digest.Digest) error {
	pathPart := fmt.Sprintf("/v2/%s/manifests/%s", name, dgst)
	resp, err := c.request(ctx, http.MethodDelete, pathPart, manifestV2MediaType)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SelectTags filters tags through a shell glob pattern, preserving order.
// A malformed pattern (unterminated character class) selects nothing rather
// than being demoted to a literal, so a typo cannot silently select tags
// for deletion.
func SelectTags(tags []string, glob string) []string {
	pattern, err := rules.Glob(glob)
	if err != nil {
		logger.Warn("Invalid tag glob", "glob", glob, "error", err)
		return nil
	}
	var selected []string
	for _, tag := range tags {
		if pattern.Matches(tag) {
			selected = append(selected, tag)
		}
	}
	return selected
}

// DeleteTags deletes every tag of an image matching the glob. It returns
// the tags that were selected, the ones that failed to delete and the ones
// whose manifest was already gone. Per-tag failures do not stop the
// remaining deletions.
func (c *Client) DeleteTags(ctx context.Context, name, glob string) (selected, failed, notFound []string, err error) {
	tags, err := c.Tags(ctx, name)
	if err != nil {
		return nil, nil, nil, err
	}
	selected = SelectTags(tags, glob)
	for _, tag := range selected {
		if err := c.deleteTag(ctx, name, tag); err != nil {
			if regErr, ok := err.(*RegistryError); ok && regErr.StatusCode == http.StatusNotFound {
				notFound = append(notFound, tag)
				continue
			}
			logger.Error("Error deleting tag from the registry", "image", name, "tag", tag, "error", err)
			failed = append(failed, tag)
		}
	}
	return selected, failed, notFound, nil
}

func (c *Client) deleteTag(ctx context.Context, name, tag string) error {
	dgst, err := c.ManifestDigest(ctx, name, tag)
	if err != nil {
		return err
	}
	return c.DeleteManifest(ctx, name, dgst)
}
