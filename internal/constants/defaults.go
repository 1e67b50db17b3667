package constants

// Default queue configuration values
const (
	DefaultMaxAttempts             = 5
	DefaultMaxConcurrentDeliveries = 3
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec      = 30
	DefaultGracefulShutdownSec = 30
)

// Encryption settings for the queue snapshot at rest
const (
	EncryptionSalt      = "sendqueue-snapshot-salt-v1"
	EncryptionKeySize   = 32
	EncryptionNonceSize = 12
	PBKDF2Iterations    = 100000
	MinSecretLength     = 32
)

// Environment variables controlling snapshot encryption
const (
	EnvEnableEncryption = "SENDQUEUE_ENABLE_ENCRYPTION"
	EnvEncryptionSecret = "SENDQUEUE_ENCRYPTION_SECRET"
)

// Privacy settings for log output
const (
	DefaultIDMaskLength = 8
)
