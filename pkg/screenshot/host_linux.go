//go:build linux || freebsd

package screenshot

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/x11"
)

const nativeBackend = BackendX11

func openNative(name string, log *zap.Logger) (Host, error) {
	if name != BackendX11 {
		return nil, fmt.Errorf("capture backend %q is not available on this platform", name)
	}
	h, err := x11.New(log)
	if err != nil {
		return nil, err
	}
	return h, nil
}
