package viewer

import (
	"errors"

	"github.com/taigrr/avatarview/pkg/assets"
)

var (
	// ErrAssetNotFound means the resolver had no asset for the gender key.
	ErrAssetNotFound = assets.ErrNotFound

	// ErrAssetResolutionFailed wraps resolve and download failures after
	// the fallback path has been tried. Fatal.
	ErrAssetResolutionFailed = errors.New("asset resolution failed")

	// ErrAssetParseFailed means the downloaded asset is malformed. Fatal.
	ErrAssetParseFailed = errors.New("asset parse failed")

	// ErrMappingUnavailable means no morphology mapping is loaded yet.
	// Morphs are skipped; it never reaches the viewer state.
	ErrMappingUnavailable = errors.New("morphology mapping unavailable")

	// ErrContainerNotReady is returned while the container is missing or
	// has zero size. It is a wait state, not a failure.
	ErrContainerNotReady = errors.New("container not ready")

	// ErrNotReady is returned by operations that need a ready viewer.
	ErrNotReady = errors.New("viewer not ready")

	// ErrModelDisposed guards writes to a superseded model instance.
	ErrModelDisposed = errors.New("model instance disposed")

	// ErrInvalidSkinTone rejects a skin tone that cannot be parsed. The
	// value is dropped; it never reaches the viewer state.
	ErrInvalidSkinTone = errors.New("invalid skin tone")
)
