package domain

// Hasher digests payloads that must not be logged verbatim, such as prompts.
type Hasher interface {
	Hash(data []byte) string
}
