// Package storage defines the conversation store consumed by the
// post-processing stage: history fetch, assistant-message persistence,
// and conversation metadata patches. Implementations live in the memory
// and postgres subpackages.
package storage
