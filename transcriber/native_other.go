//go:build !darwin

package transcriber

import (
	"fmt"

	"murmur/config"
)

func newNative(config.STTConfig) (Transcriber, error) {
	return nil, fmt.Errorf("native provider is only available on darwin")
}
