package device

import (
	"github.com/norasector/uartscope/pkg/frame"
)

// Source is a byte stream with blocking, timeout-bounded reads.
//
// ReadTimeout returning fewer bytes than requested with a nil error means the timeout
// expired. Any error means the source is no longer usable.
type Source interface {
	frame.TimeoutReader
	Close() error
}
