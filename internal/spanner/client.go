package spanner

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/forgeops/repomigrate/internal/regions"
	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	createRepositoryEndpointConstant        = "/admin/createrepo"
	createRepositoryURLTemplateConstant     = "%s%s"
	contentTypeHeaderNameConstant           = "Content-Type"
	jsonContentTypeConstant                 = "application/json"
	creationErrorTemplateConstant           = "creation of %s repository for %s rejected: %s"
	serviceRejectionReasonTemplateConstant  = "service answered %d: %s"
	loggerMissingMessageConstant            = "logger not configured"
	credentialSourceMissingMessageConstant  = "credential source not configured"
	caCertificateReadErrorTemplateConstant  = "unable to read CA certificate %s: %w"
	caCertificateParseErrorTemplateConstant = "unable to parse CA certificate %s"
	clientCertificateErrorTemplateConstant  = "unable to load client certificate: %w"
	createRequestErrorTemplateConstant      = "unable to send creation request: %w"
	createResponseErrorTemplateConstant     = "unable to decode creation response: %w"
	logMessageCreatingRepositoryConstant    = "Creating repository in distributed service"
	logFieldProjectConstant                 = "project"
	logFieldRepositoryKindConstant          = "repository_kind"
	logFieldRegionConstant                  = "region"
)

var (
	errLoggerMissing           = errors.New(loggerMissingMessageConstant)
	errCredentialSourceMissing = errors.New(credentialSourceMissingMessageConstant)
)

// CreationError reports that the distributed service rejected repository creation.
type CreationError struct {
	ProjectName    string
	RepositoryKind registry.RepositoryKind
	Reason         string
}

// Error describes the rejected creation.
func (failure CreationError) Error() string {
	return fmt.Sprintf(creationErrorTemplateConstant, failure.RepositoryKind, failure.ProjectName, failure.Reason)
}

// CredentialSource resolves per-operation repository URLs and TLS material.
type CredentialSource interface {
	Resolve(project registry.Project, kind registry.RepositoryKind, region string) (string, regions.RegionInfo, error)
}

type createRepositoryRequest struct {
	Reponame string `json:"Reponame"`
}

type createRepositoryResponse struct {
	Success bool   `json:"Success"`
	Error   string `json:"Error"`
}

// httpClientBuilder assembles the HTTP client used for one creation call.
// Tests substitute it to drive the endpoint without TLS material.
type httpClientBuilder func(regions.RegionInfo) (*http.Client, error)

// Client creates project repositories over the service's mutual-TLS admin API.
type Client struct {
	logger           *zap.Logger
	credentialSource CredentialSource
	clientBuilder    httpClientBuilder
}

// NewClient validates dependencies and constructs a Client.
func NewClient(logger *zap.Logger, credentialSource CredentialSource) (*Client, error) {
	if logger == nil {
		return nil, errLoggerMissing
	}
	if credentialSource == nil {
		return nil, errCredentialSourceMissing
	}
	return &Client{logger: logger, credentialSource: credentialSource, clientBuilder: buildTLSClient}, nil
}

// CreateRepositories requests creation of every repository kind for the
// project in the given region. The first rejection aborts the remaining kinds.
func (client *Client) CreateRepositories(executionContext context.Context, project registry.Project, region string) error {
	for _, repositoryKind := range registry.AllRepositoryKinds() {
		if creationError := client.createRepository(executionContext, project, repositoryKind, region); creationError != nil {
			return creationError
		}
	}
	return nil
}

func (client *Client) createRepository(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string) error {
	_, regionInfo, resolveError := client.credentialSource.Resolve(project, kind, region)
	if resolveError != nil {
		return resolveError
	}

	client.logger.Info(
		logMessageCreatingRepositoryConstant,
		zap.String(logFieldProjectConstant, project.FullName()),
		zap.String(logFieldRepositoryKindConstant, string(kind)),
		zap.String(logFieldRegionConstant, region),
	)

	httpClient, clientError := client.clientBuilder(regionInfo)
	if clientError != nil {
		return clientError
	}

	requestBody, marshalError := json.Marshal(createRepositoryRequest{Reponame: project.RemoteRepositoryName(kind)})
	if marshalError != nil {
		return marshalError
	}

	endpointURL := fmt.Sprintf(
		createRepositoryURLTemplateConstant,
		strings.TrimRight(regionInfo.BaseURL, "/"),
		createRepositoryEndpointConstant,
	)

	httpRequest, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, endpointURL, bytes.NewReader(requestBody))
	if requestError != nil {
		return requestError
	}
	httpRequest.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)

	httpResponse, sendError := httpClient.Do(httpRequest)
	if sendError != nil {
		return fmt.Errorf(createRequestErrorTemplateConstant, sendError)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return CreationError{
			ProjectName:    project.FullName(),
			RepositoryKind: kind,
			Reason:         fmt.Sprintf(serviceRejectionReasonTemplateConstant, httpResponse.StatusCode, httpResponse.Status),
		}
	}

	var creationResponse createRepositoryResponse
	if decodeError := json.NewDecoder(httpResponse.Body).Decode(&creationResponse); decodeError != nil {
		return fmt.Errorf(createResponseErrorTemplateConstant, decodeError)
	}

	if !creationResponse.Success {
		return CreationError{
			ProjectName:    project.FullName(),
			RepositoryKind: kind,
			Reason:         creationResponse.Error,
		}
	}

	return nil
}

// buildTLSClient assembles an HTTP client authenticated with the operation's
// client certificate and trusting only the region's CA.
func buildTLSClient(regionInfo regions.RegionInfo) (*http.Client, error) {
	caCertificateData, readError := os.ReadFile(regionInfo.CACertificatePath)
	if readError != nil {
		return nil, fmt.Errorf(caCertificateReadErrorTemplateConstant, regionInfo.CACertificatePath, readError)
	}

	certificatePool := x509.NewCertPool()
	if !certificatePool.AppendCertsFromPEM(caCertificateData) {
		return nil, fmt.Errorf(caCertificateParseErrorTemplateConstant, regionInfo.CACertificatePath)
	}

	clientCertificate, certificateError := tls.LoadX509KeyPair(regionInfo.PushCertificatePath, regionInfo.PushKeyPath)
	if certificateError != nil {
		return nil, fmt.Errorf(clientCertificateErrorTemplateConstant, certificateError)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs:      certificatePool,
			Certificates: []tls.Certificate{clientCertificate},
		},
	}

	return &http.Client{Transport: transport}, nil
}
