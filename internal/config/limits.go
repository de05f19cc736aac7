package config

const (
	// MaxDisplayNameLength is the maximum length for display names.
	// Matches the VARCHAR(255) column.
	MaxDisplayNameLength = 255

	// MaxUsernameLength is the maximum username length Keycloak accepts by default.
	MaxUsernameLength = 255

	// MaxNameLength bounds first and last names pushed to the identity provider.
	MaxNameLength = 255

	// MaxProfilePictureLength is the maximum length for profile picture references.
	MaxProfilePictureLength = 2048

	// MaxDescriptionLength is the maximum length for user descriptions.
	MaxDescriptionLength = 4000

	// MaxLangLength fits BCP 47 tags such as "zh-Hant-TW".
	MaxLangLength = 35

	// MaxSubsPerRequest caps the number of subjects in one batch lookup.
	MaxSubsPerRequest = 100

	// DefaultPageSize and MaxPageSize apply to batch lookups.
	DefaultPageSize = 20
	MaxPageSize     = 100
)
