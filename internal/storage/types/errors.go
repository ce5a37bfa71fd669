package types

import "errors"

// ErrFormat is the base error for any record decode failure: a buffer
// whose length does not match the record's fixed size, or an unsupported
// layout version. Decode never truncates or pads silently.
var ErrFormat = errors.New("record format error")
