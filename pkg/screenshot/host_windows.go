package screenshot

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/win"
)

const nativeBackend = BackendWindows

func openNative(name string, log *zap.Logger) (Host, error) {
	if name != BackendWindows {
		return nil, fmt.Errorf("capture backend %q is not available on this platform", name)
	}
	h, err := win.New(log)
	if err != nil {
		return nil, err
	}
	return h, nil
}
