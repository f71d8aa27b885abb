package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/config"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// Supported cloud providers.
const (
	ProviderGoogleDrive = "google_drive"
	ProviderDropbox     = "dropbox"
	ProviderOneDrive    = "onedrive"
)

const cloudTokenKeyPrefix = "cloud_"

// providerAuth is the static OAuth surface of one provider.
type providerAuth struct {
	endpoint oauth2.Endpoint
	scopes   []string
}

var providerAuthConfigs = map[string]providerAuth{
	ProviderGoogleDrive: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		scopes: []string{"https://www.googleapis.com/auth/drive.file"},
	},
	ProviderDropbox: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://www.dropbox.com/oauth2/authorize",
			TokenURL: "https://api.dropboxapi.com/oauth2/token",
		},
		scopes: []string{"files.content.write", "files.content.read"},
	},
	ProviderOneDrive: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		},
		scopes: []string{"Files.ReadWrite"},
	},
}

// CloudUploadResult is the outcome of a provider upload.
type CloudUploadResult struct {
	OperationID string         `json:"operationId"`
	FileID      string         `json:"fileId"`
	Provider    string         `json:"provider"`
	Remote      map[string]any `json:"remote,omitempty"`
}

// CloudDownloadResult is the outcome of a provider download ingress.
type CloudDownloadResult struct {
	OperationID string `json:"operationId"`
	Provider    string `json:"provider"`
	RemoteID    string `json:"remoteId"`
	FileID      string `json:"fileId"`
	Size        int64  `json:"size"`
}

// Cloud bridges the file plane to external storage providers. Token
// exchange and all transfer traffic go through the backend; this service
// only builds the auth URL, keeps the (encrypted) provider token and
// materializes downloads into FileRecords.
type Cloud struct {
	*Base
	gateway *clients.Gateway
	storage *Storage
	kv      kvstore.Store
	cfg     config.CloudConfig
	log     *logger.Logger
}

// NewCloud creates the cloud integration service.
func NewCloud(gateway *clients.Gateway, storage *Storage, kv kvstore.Store, cfg config.CloudConfig, b *bus.Bus, log *logger.Logger) *Cloud {
	return &Cloud{
		Base:    NewBase("CloudIntegrationService", 100, b, log),
		gateway: gateway,
		storage: storage,
		kv:      kv,
		cfg:     cfg,
		log:     log.WithService("CloudIntegrationService"),
	}
}

func (c *Cloud) clientID(provider string) string {
	switch provider {
	case ProviderGoogleDrive:
		return c.cfg.GoogleClientID
	case ProviderDropbox:
		return c.cfg.DropboxClientID
	case ProviderOneDrive:
		return c.cfg.OneDriveClientID
	default:
		return ""
	}
}

// AuthURL builds the provider consent URL the UI opens in a popup.
func (c *Cloud) AuthURL(provider, state string) (string, error) {
	auth, ok := providerAuthConfigs[provider]
	if !ok {
		return "", errdomain.Newf(errdomain.KindNotSupported, "unsupported cloud provider %q", provider)
	}

	conf := &oauth2.Config{
		ClientID:    c.clientID(provider),
		Endpoint:    auth.endpoint,
		RedirectURL: c.cfg.RedirectURI,
		Scopes:      auth.scopes,
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteAuth exchanges the consent code for a provider token via the
// backend and stores it encrypted.
func (c *Cloud) CompleteAuth(ctx context.Context, provider, code string) error {
	if _, ok := providerAuthConfigs[provider]; !ok {
		return errdomain.Newf(errdomain.KindNotSupported, "unsupported cloud provider %q", provider)
	}

	token, err := c.gateway.CloudTokenExchange(ctx, provider, code, c.cfg.RedirectURI)
	if err != nil {
		return err
	}
	if token == "" {
		return errdomain.New(errdomain.KindAuthentication, "provider returned an empty token")
	}

	if err := c.kv.Put(ctx, cloudTokenKeyPrefix+provider, token, nil); err != nil {
		return errdomain.Wrap(errdomain.KindFile, "store provider token", err)
	}

	c.log.Info("cloud provider connected", "provider", provider)
	return nil
}

// IsConnected reports whether a token is stored for the provider.
func (c *Cloud) IsConnected(ctx context.Context, provider string) bool {
	var token string
	found, err := c.kv.Get(ctx, cloudTokenKeyPrefix+provider, &token)
	return err == nil && found && token != ""
}

// Upload pushes a stored file to the provider.
func (c *Cloud) Upload(ctx context.Context, provider, fileID, folder string) (*CloudUploadResult, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	opCtx, release := c.operation(ctx, operationID)
	result, err := c.upload(opCtx, operationID, provider, fileID, folder)
	release()
	err = c.opError(err)
	c.end(ctx, err)

	entry := models.HistoryEntry{
		ID:        operationID,
		Operation: "upload",
		FileIDs:   []string{fileID},
		Options:   map[string]any{"provider": provider, "folder": folder},
	}
	if err != nil {
		entry.Error = err.Error()
		c.RecordHistory(entry)
		c.EmitError(ctx, operationID, err, "cloudUpload")
		return nil, err
	}

	entry.Success = true
	entry.Result = result
	c.RecordHistory(entry)
	c.EmitComplete(ctx, operationID, result, "Cloud upload complete")
	return result, nil
}

func (c *Cloud) upload(ctx context.Context, operationID, provider, fileID, folder string) (*CloudUploadResult, error) {
	c.EmitProgress(ctx, operationID, 0, "Starting cloud upload", nil)

	if !c.IsConnected(ctx, provider) {
		return nil, errdomain.Newf(errdomain.KindAuthentication, "provider %s is not connected", provider)
	}

	file, err := c.RequestFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	c.EmitProgress(ctx, operationID, 30, "Uploading to provider", nil)

	remote, err := c.gateway.CloudUpload(ctx, provider, file.Metadata.Name, file.Blob.Data, folder)
	if err != nil {
		return nil, err
	}

	c.EmitProgress(ctx, operationID, 100, "Cloud upload complete", nil)

	return &CloudUploadResult{
		OperationID: operationID,
		FileID:      fileID,
		Provider:    provider,
		Remote:      remote,
	}, nil
}

// Download pulls a remote file and materializes it into the file plane as
// a processed record with no original lineage.
func (c *Cloud) Download(ctx context.Context, provider, remoteID, name string) (*CloudDownloadResult, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	opCtx, release := c.operation(ctx, operationID)
	result, err := c.download(opCtx, operationID, provider, remoteID, name)
	release()
	err = c.opError(err)
	c.end(ctx, err)

	entry := models.HistoryEntry{
		ID:        operationID,
		Operation: "download",
		Options:   map[string]any{"provider": provider, "remoteId": remoteID},
	}
	if err != nil {
		entry.Error = err.Error()
		c.RecordHistory(entry)
		c.EmitError(ctx, operationID, err, "cloudDownload")
		return nil, err
	}

	entry.Success = true
	entry.Result = result
	entry.FileIDs = []string{result.FileID}
	c.RecordHistory(entry)
	c.EmitComplete(ctx, operationID, result, "Cloud download complete")
	return result, nil
}

func (c *Cloud) download(ctx context.Context, operationID, provider, remoteID, name string) (*CloudDownloadResult, error) {
	c.EmitProgress(ctx, operationID, 0, "Starting cloud download", nil)

	if !c.IsConnected(ctx, provider) {
		return nil, errdomain.Newf(errdomain.KindAuthentication, "provider %s is not connected", provider)
	}

	data, err := c.gateway.CloudDownload(ctx, provider, remoteID)
	if err != nil {
		return nil, err
	}

	c.EmitProgress(ctx, operationID, 70, "Saving downloaded file", nil)

	if name == "" {
		name = "cloud_" + remoteID + ".pdf"
	}
	fileID := uuid.NewString()
	if err := c.storage.SaveFile(ctx, fileID, models.Blob{Data: data, MimeType: "application/pdf"}, models.FileMetadata{
		Name:           name,
		Type:           models.FileTypeProcessed,
		ProcessingType: models.ProcessingCloudDownload,
	}); err != nil {
		return nil, err
	}

	c.EmitProgress(ctx, operationID, 100, "Cloud download complete", nil)

	return &CloudDownloadResult{
		OperationID: operationID,
		Provider:    provider,
		RemoteID:    remoteID,
		FileID:      fileID,
		Size:        int64(len(data)),
	}, nil
}

// List enumerates remote files under a folder.
func (c *Cloud) List(ctx context.Context, provider, folder string) ([]clients.CloudEntry, error) {
	if !c.IsConnected(ctx, provider) {
		return nil, errdomain.Newf(errdomain.KindAuthentication, "provider %s is not connected", provider)
	}
	return c.gateway.CloudList(ctx, provider, folder)
}

// CreateFolder creates a remote folder.
func (c *Cloud) CreateFolder(ctx context.Context, provider, folderPath string) (map[string]any, error) {
	if !c.IsConnected(ctx, provider) {
		return nil, errdomain.Newf(errdomain.KindAuthentication, "provider %s is not connected", provider)
	}
	return c.gateway.CloudCreateFolder(ctx, provider, folderPath, nil)
}

// Revoke disconnects a provider. Server-side revocation is best-effort;
// the local token is always dropped.
func (c *Cloud) Revoke(ctx context.Context, provider string) error {
	if err := c.gateway.CloudRevoke(ctx, provider); err != nil {
		c.log.Warn("provider revocation failed", "provider", provider, "error", err)
	}
	return c.kv.Remove(ctx, cloudTokenKeyPrefix+provider)
}
