package migration

import (
	"strings"
)

const (
	databaseURLConfigKeyConstant       = "database_url"
	regionsManifestConfigKeyConstant   = "regions_manifest"
	bridgeBinaryConfigKeyConstant      = "bridge_binary"
	mirrorFolderConfigKeyConstant      = "mirror_folder"
	serviceUserConfigKeyConstant       = "service_user"
	actingUsernameConfigKeyConstant    = "acting_username"
	repositoryFoldersConfigKeyConstant = "repository_folders"
	createConfigKeyConstant            = "create"
	primeConfigKeyConstant             = "prime"
	reconfigureConfigKeyConstant       = "reconfigure"
	failFastConfigKeyConstant          = "failfast"
	debugConfigKeyConstant             = "debug"
	configurationKeySeparatorConstant  = "."
	defaultServiceUserConstant         = "git"
	defaultBridgeBinaryConstant        = "/usr/libexec/repobridge"
)

// CommandConfiguration captures persisted configuration for the migration commands.
type CommandConfiguration struct {
	DatabaseURL        string            `mapstructure:"database_url"`
	RegionsManifest    string            `mapstructure:"regions_manifest"`
	BridgeBinary       string            `mapstructure:"bridge_binary"`
	MirrorFolder       string            `mapstructure:"mirror_folder"`
	ServiceUser        string            `mapstructure:"service_user"`
	ActingUsername     string            `mapstructure:"acting_username"`
	RepositoryFolders  map[string]string `mapstructure:"repository_folders"`
	CreateRepositories bool              `mapstructure:"create"`
	PrimeMirrors       bool              `mapstructure:"prime"`
	Reconfigure        bool              `mapstructure:"reconfigure"`
	FailFast           bool              `mapstructure:"failfast"`
	EnableDebugLogging bool              `mapstructure:"debug"`
}

// DefaultCommandConfiguration returns baseline configuration values for migration.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		BridgeBinary:       defaultBridgeBinaryConstant,
		ServiceUser:        defaultServiceUserConstant,
		CreateRepositories: true,
		PrimeMirrors:       true,
		Reconfigure:        true,
		FailFast:           false,
		EnableDebugLogging: false,
	}
}

// DefaultConfigurationValues exposes migration defaults for configuration seeding.
func DefaultConfigurationValues(configurationKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	prefix := configurationKey + configurationKeySeparatorConstant
	return map[string]any{
		prefix + databaseURLConfigKeyConstant:     defaults.DatabaseURL,
		prefix + regionsManifestConfigKeyConstant: defaults.RegionsManifest,
		prefix + bridgeBinaryConfigKeyConstant:    defaults.BridgeBinary,
		prefix + mirrorFolderConfigKeyConstant:    defaults.MirrorFolder,
		prefix + serviceUserConfigKeyConstant:     defaults.ServiceUser,
		prefix + actingUsernameConfigKeyConstant:  defaults.ActingUsername,
		prefix + createConfigKeyConstant:          defaults.CreateRepositories,
		prefix + primeConfigKeyConstant:           defaults.PrimeMirrors,
		prefix + reconfigureConfigKeyConstant:     defaults.Reconfigure,
		prefix + failFastConfigKeyConstant:        defaults.FailFast,
		prefix + debugConfigKeyConstant:           defaults.EnableDebugLogging,
	}
}

// Sanitize trims configured values and removes empty repository folder entries.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.DatabaseURL = strings.TrimSpace(configuration.DatabaseURL)
	sanitized.RegionsManifest = strings.TrimSpace(configuration.RegionsManifest)
	sanitized.BridgeBinary = strings.TrimSpace(configuration.BridgeBinary)
	sanitized.MirrorFolder = strings.TrimSpace(configuration.MirrorFolder)
	sanitized.ServiceUser = strings.TrimSpace(configuration.ServiceUser)
	sanitized.ActingUsername = strings.TrimSpace(configuration.ActingUsername)

	sanitizedFolders := make(map[string]string, len(configuration.RepositoryFolders))
	for folderKind, folderPath := range configuration.RepositoryFolders {
		trimmedKind := strings.TrimSpace(folderKind)
		trimmedPath := strings.TrimSpace(folderPath)
		if len(trimmedKind) == 0 || len(trimmedPath) == 0 {
			continue
		}
		sanitizedFolders[trimmedKind] = trimmedPath
	}
	sanitized.RepositoryFolders = sanitizedFolders

	return sanitized
}
