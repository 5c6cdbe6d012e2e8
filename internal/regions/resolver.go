package regions

import (
	"fmt"
	"strings"

	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	defaultCertificateKeyConstant            = "default"
	unknownRegionReasonConstant              = "region is not configured"
	missingCertificateReasonTemplateConstant = "no push certificate configured for repository kind %s"
	notConfiguredErrorTemplateConstant       = "region %s: %s"
	repositoryURLTemplateConstant            = "%s/repo/%s.git"
	urlTrimSetConstant                       = "/"
)

// NotConfiguredError reports a credential lookup that cannot be satisfied.
type NotConfiguredError struct {
	Region string
	Reason string
}

// Error describes the missing configuration.
func (failure NotConfiguredError) Error() string {
	return fmt.Sprintf(notConfiguredErrorTemplateConstant, failure.Region, failure.Reason)
}

// RegionInfo bundles the connection material for one (project, kind, region)
// operation. It is fetched fresh per operation and never reused.
type RegionInfo struct {
	BaseURL             string
	CACertificatePath   string
	PushCertificatePath string
	PushKeyPath         string
}

// CredentialResolver resolves repository URLs and TLS material from the manifest.
type CredentialResolver struct {
	manifest Manifest
}

// NewCredentialResolver constructs a resolver over the supplied manifest.
func NewCredentialResolver(manifest Manifest) *CredentialResolver {
	return &CredentialResolver{manifest: manifest}
}

// KnownRegion reports whether the manifest configures the named region.
func (resolver *CredentialResolver) KnownRegion(region string) bool {
	_, regionConfigured := resolver.manifest.Regions[region]
	return regionConfigured
}

// Resolve returns the remote repository URL and credential bundle for the
// project repository of the given kind in the given region. Resolve validates
// region and certificate configuration only; whether the project actually has
// a repository of the kind on local disk is the RepositoryPathResolver's
// concern, and callers check presence there before resolving credentials.
func (resolver *CredentialResolver) Resolve(project registry.Project, kind registry.RepositoryKind, region string) (string, RegionInfo, error) {
	regionConfiguration, regionConfigured := resolver.manifest.Regions[region]
	if !regionConfigured {
		return "", RegionInfo{}, NotConfiguredError{Region: region, Reason: unknownRegionReasonConstant}
	}

	certificatePair, certificateConfigured := regionConfiguration.PushCertificates[string(kind)]
	if !certificateConfigured {
		certificatePair, certificateConfigured = regionConfiguration.PushCertificates[defaultCertificateKeyConstant]
	}
	if !certificateConfigured {
		return "", RegionInfo{}, NotConfiguredError{Region: region, Reason: fmt.Sprintf(missingCertificateReasonTemplateConstant, kind)}
	}

	regionInfo := RegionInfo{
		BaseURL:             regionConfiguration.URL,
		CACertificatePath:   regionConfiguration.CACertificatePath,
		PushCertificatePath: certificatePair.CertificatePath,
		PushKeyPath:         certificatePair.KeyPath,
	}

	repositoryURL := fmt.Sprintf(
		repositoryURLTemplateConstant,
		strings.TrimRight(regionConfiguration.URL, urlTrimSetConstant),
		project.RemoteRepositoryName(kind),
	)

	return repositoryURL, regionInfo, nil
}
