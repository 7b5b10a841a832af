package screenshot

import (
	"errors"

	"github.com/suutaku/winshot/pkg/media"
)

var (
	// ErrNoActiveWindow means there was nothing to capture. No resources were
	// acquired.
	ErrNoActiveWindow = errors.New("no active window")
	// ErrPermissionDenied is wrapped by hosts when a capture request is
	// refused or cancelled.
	ErrPermissionDenied     = media.ErrPermissionDenied
	ErrNoVideoTrack         = errors.New("stream has no live video track")
	ErrNotReady             = errors.New("video sink did not become ready")
	ErrRenderingUnavailable = errors.New("offscreen bitmap unavailable")
	ErrEncodingFailed       = errors.New("failed to encode screenshot")
)
