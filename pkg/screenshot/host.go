package screenshot

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/browser"
	"github.com/suutaku/winshot/internal/generic"
	"github.com/suutaku/winshot/pkg/media"
)

// Backend names accepted by OpenHost.
const (
	BackendAuto    = "auto"
	BackendX11     = "x11"
	BackendWindows = "windows"
	BackendGeneric = "generic"
	BackendBrowser = "browser"
)

// Host is a media.Host that holds OS resources until closed.
type Host interface {
	media.Host
	io.Closer
}

type HostConfig struct {
	Backend string
	Browser browser.Options
}

// OpenHost opens the named backend. "auto" picks the platform's native
// backend and falls back to the generic one when it cannot start.
func OpenHost(ctx context.Context, cfg HostConfig, log *zap.Logger) (Host, error) {
	if log == nil {
		log = zap.NewNop()
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch name {
	case "", BackendAuto:
		h, err := openNative(nativeBackend, log)
		if err != nil {
			log.Warn("native capture backend unavailable, using generic", zap.String("backend", nativeBackend), zap.Error(err))
			return generic.New(log), nil
		}
		return h, nil
	case BackendGeneric:
		return generic.New(log), nil
	case BackendBrowser:
		h, err := browser.New(ctx, cfg.Browser, log)
		if err != nil {
			return nil, err
		}
		return h, nil
	case BackendX11, BackendWindows:
		return openNative(name, log)
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
}
