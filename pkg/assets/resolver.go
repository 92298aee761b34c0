// Package assets resolves avatar model assets to fetchable URLs and downloads
// them.
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a resolver has no asset for a gender key.
var ErrNotFound = errors.New("asset not found")

// DefaultKeyTemplate maps a gender key to an asset name.
const DefaultKeyTemplate = "{gender}.glb"

// Resolver turns a gender key into a time-bounded, fetchable URL.
type Resolver interface {
	ResolveModelAsset(ctx context.Context, gender string) (string, error)
}

// KeyFor expands a key template for a gender.
func KeyFor(template, gender string) string {
	if template == "" {
		template = DefaultKeyTemplate
	}
	return strings.ReplaceAll(template, "{gender}", gender)
}

// DirResolver resolves assets from a local directory to file:// URLs.
type DirResolver struct {
	Dir         string
	KeyTemplate string
}

// NewDirResolver creates a resolver rooted at dir.
func NewDirResolver(dir, keyTemplate string) *DirResolver {
	return &DirResolver{Dir: dir, KeyTemplate: keyTemplate}
}

// ResolveModelAsset implements Resolver.
func (r *DirResolver) ResolveModelAsset(ctx context.Context, gender string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if gender == "" {
		return "", fmt.Errorf("%w: empty gender key", ErrNotFound)
	}

	path, err := filepath.Abs(filepath.Join(r.Dir, KeyFor(r.KeyTemplate, gender)))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

// StaticResolver serves fixed URLs per gender.
type StaticResolver map[string]string

// ResolveModelAsset implements Resolver.
func (r StaticResolver) ResolveModelAsset(_ context.Context, gender string) (string, error) {
	u, ok := r[gender]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, gender)
	}
	return u, nil
}
