package models

// Load sources reported by LoadResult.
const (
	LoadSourceEncrypted = "encrypted"
	LoadSourcePlaintext = "plaintext"
)

type LoadResult struct {
	Source          string `json:"source"`
	Users           int    `json:"users"`
	Subscriptions   int    `json:"subscriptions"`
	Orphans         int    `json:"orphans"`
	DecryptFailures int    `json:"decrypt_failures"`
	MissingBlobs    int    `json:"missing_blobs"`
	// DuplicateEndpoints counts endpoints found under more than one user;
	// the first user loaded keeps them.
	DuplicateEndpoints int `json:"duplicate_endpoints"`
}

type Stats struct {
	UserCount         int  `json:"user_count"`
	SubscriptionCount int  `json:"subscription_count"`
	EncryptionEnabled bool `json:"encryption_enabled"`
}

type MigrationResult struct {
	MigratedUsers         int `json:"migrated_users"`
	MigratedSubscriptions int `json:"migrated_subscriptions"`
	FailedUsers           int `json:"failed_users"`
}
