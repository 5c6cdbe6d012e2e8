package regions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	manifestReadErrorTemplateConstant  = "unable to read regions manifest %s: %w"
	manifestParseErrorTemplateConstant = "unable to parse regions manifest %s: %w"
)

// CertificatePair references a client certificate and its private key on disk.
type CertificatePair struct {
	CertificatePath string `yaml:"cert"`
	KeyPath         string `yaml:"key"`
}

// RegionConfiguration describes one region of the distributed repository service.
type RegionConfiguration struct {
	URL               string                     `yaml:"url"`
	CACertificatePath string                     `yaml:"ca"`
	PushCertificates  map[string]CertificatePair `yaml:"push_certificates"`
}

// Manifest holds every configured region keyed by region name.
type Manifest struct {
	Regions map[string]RegionConfiguration `yaml:"regions"`
}

// LoadManifest reads and parses the regions manifest at the supplied path.
func LoadManifest(manifestPath string) (Manifest, error) {
	manifestData, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return Manifest{}, fmt.Errorf(manifestReadErrorTemplateConstant, manifestPath, readError)
	}

	var manifest Manifest
	if parseError := yaml.Unmarshal(manifestData, &manifest); parseError != nil {
		return Manifest{}, fmt.Errorf(manifestParseErrorTemplateConstant, manifestPath, parseError)
	}

	return manifest, nil
}
