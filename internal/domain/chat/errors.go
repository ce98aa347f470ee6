package chat

import "errors"

// ErrProviderError signals a chat completion provider failure.
var ErrProviderError = errors.New("chat provider error")
