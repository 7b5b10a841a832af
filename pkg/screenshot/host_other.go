//go:build !linux && !freebsd && !windows

package screenshot

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/generic"
)

const nativeBackend = BackendGeneric

func openNative(name string, log *zap.Logger) (Host, error) {
	if name != BackendGeneric {
		return nil, fmt.Errorf("capture backend %q is not available on this platform", name)
	}
	return generic.New(log), nil
}
