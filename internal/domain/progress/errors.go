package progress

import "errors"

// ErrConnect is returned when the NATS upstream cannot connect.
var ErrConnect = errors.New("progress upstream connect failed")
