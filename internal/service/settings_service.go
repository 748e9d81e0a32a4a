package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/dto"
	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
	"github.com/fpnet-io/fpnet-api/pkg/storage"
)

type settingsRepository interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
	BulkUpsert(ctx context.Context, settings []models.Setting) error
}

type backupFormLister interface {
	List(ctx context.Context, filter models.FormFilter) ([]models.Form, int, error)
}

type backupResponseLister interface {
	ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error)
}

// settingSpec declares a known setting key, its type and default value.
// Unknown keys are rejected on write so typos never become silent state.
type settingSpec struct {
	Type        models.SettingType
	Default     string
	Description string
}

var knownSettings = map[string]settingSpec{
	"app.name":                    {Type: models.SettingTypeString, Default: "FPNet Admin", Description: "display name shown in the client"},
	"app.maintenance_mode":        {Type: models.SettingTypeBoolean, Default: "false", Description: "reject non-admin traffic when enabled"},
	"forms.default_page_size":     {Type: models.SettingTypeInteger, Default: "20", Description: "default page size for form listings"},
	"responses.autosave_interval": {Type: models.SettingTypeInteger, Default: "30", Description: "client draft autosave interval in seconds"},
	"messages.retention_days":     {Type: models.SettingTypeInteger, Default: "365", Description: "days before read messages may be purged"},
}

// SettingsService manages typed application settings, JSON snapshot backups
// and the release update check.
type SettingsService struct {
	repo      settingsRepository
	forms     backupFormLister
	responses backupResponseLister
	audit     auditLogger
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	client    *http.Client
	validator *validator.Validate
	logger    *zap.Logger

	releasesURL    string
	currentVersion string
}

// SettingsServiceParams groups constructor dependencies.
type SettingsServiceParams struct {
	Repo           settingsRepository
	Forms          backupFormLister
	Responses      backupResponseLister
	Audit          auditLogger
	BackupStore    *storage.LocalStorage
	BackupSigner   *storage.SignedURLSigner
	HTTPTimeout    time.Duration
	ReleasesURL    string
	CurrentVersion string
	Validator      *validator.Validate
	Logger         *zap.Logger
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(params SettingsServiceParams) *SettingsService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	timeout := params.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SettingsService{
		repo:           params.Repo,
		forms:          params.Forms,
		responses:      params.Responses,
		audit:          params.Audit,
		store:          params.BackupStore,
		signer:         params.BackupSigner,
		client:         &http.Client{Timeout: timeout},
		validator:      validate,
		logger:         logger,
		releasesURL:    params.ReleasesURL,
		currentVersion: params.CurrentVersion,
	}
}

// List returns every known setting, falling back to declared defaults for
// keys that were never written.
func (s *SettingsService) List(ctx context.Context) ([]dto.SettingItem, error) {
	keys := make([]string, 0, len(knownSettings))
	for key := range knownSettings {
		keys = append(keys, key)
	}

	stored, err := s.repo.ListByKeys(ctx, keys)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	byKey := make(map[string]models.Setting, len(stored))
	for _, setting := range stored {
		byKey[setting.Key] = setting
	}

	items := make([]dto.SettingItem, 0, len(knownSettings))
	for key, spec := range knownSettings {
		item := dto.SettingItem{Key: key, Value: spec.Default, Type: string(spec.Type), Description: spec.Description}
		if setting, ok := byKey[key]; ok {
			item.Value = setting.Value
			if setting.UpdatedBy != nil {
				item.UpdatedBy = *setting.UpdatedBy
			}
			updatedAt := setting.UpdatedAt
			item.UpdatedAt = &updatedAt
		}
		items = append(items, item)
	}
	sortSettingItems(items)
	return items, nil
}

// Update stores one setting after validating the key and value type.
func (s *SettingsService) Update(ctx context.Context, req dto.UpdateSettingRequest, actor *models.JWTClaims) (*dto.SettingItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid setting payload")
	}

	setting, err := s.buildSetting(req, actor)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to save setting")
	}

	item := dto.SettingItem{Key: setting.Key, Value: setting.Value, Type: string(setting.Type)}
	if setting.UpdatedBy != nil {
		item.UpdatedBy = *setting.UpdatedBy
	}
	item.UpdatedAt = &setting.UpdatedAt
	return &item, nil
}

// BulkUpdate stores several settings in one transaction. The whole batch is
// rejected when any item fails validation.
func (s *SettingsService) BulkUpdate(ctx context.Context, req dto.BulkUpdateSettingsRequest, actor *models.JWTClaims) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	settings := make([]models.Setting, 0, len(req.Items))
	for _, item := range req.Items {
		setting, err := s.buildSetting(item, actor)
		if err != nil {
			return err
		}
		settings = append(settings, *setting)
	}

	if err := s.repo.BulkUpsert(ctx, settings); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to save settings")
	}
	return nil
}

// CreateBackup writes a JSON snapshot of every form and its responses to the
// backup store and returns a signed download link.
func (s *SettingsService) CreateBackup(ctx context.Context, actor *models.JWTClaims) (*dto.BackupResponse, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "backups are not configured")
	}

	var forms []models.Form
	for page := 1; ; page++ {
		batch, _, err := s.forms.List(ctx, models.FormFilter{Page: page, PageSize: 100})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load forms")
		}
		forms = append(forms, batch...)
		if len(batch) < 100 {
			break
		}
	}

	type formSnapshot struct {
		Form      models.Form              `json:"form"`
		Responses []models.ResponseSession `json:"responses"`
	}
	snapshot := struct {
		Version   string         `json:"version"`
		CreatedAt time.Time      `json:"created_at"`
		Forms     []formSnapshot `json:"forms"`
	}{
		Version:   s.currentVersion,
		CreatedAt: time.Now().UTC(),
	}

	for _, form := range forms {
		sessions, err := s.responses.ListByForm(ctx, form.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load responses")
		}
		snapshot.Forms = append(snapshot.Forms, formSnapshot{Form: form, Responses: sessions})
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode backup")
	}

	backupID := uuid.NewString()
	filename := fmt.Sprintf("backup-%s.json", snapshot.CreatedAt.Format("20060102-150405"))
	if _, err := s.store.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store backup")
	}

	token, expiresAt, err := s.signer.Generate(backupID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign backup download")
	}

	if s.audit != nil && actor != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionBackupCreate,
			Resource:   "backups",
			ResourceID: &backupID,
			NewValues:  []byte(fmt.Sprintf(`{"file":%q}`, filename)),
		}); err != nil {
			s.logger.Warn("failed to record backup audit log", zap.Error(err))
		}
	}

	return &dto.BackupResponse{
		ID:          backupID,
		FileName:    filename,
		SizeBytes:   int64(len(payload)),
		DownloadURL: "/api/v1/settings/backups/download/" + token,
		ExpiresAt:   expiresAt,
		CreatedAt:   snapshot.CreatedAt,
	}, nil
}

// ResolveBackup validates a backup download token and returns the file path.
func (s *SettingsService) ResolveBackup(token string) (path, filename string, err error) {
	if s.signer == nil || s.store == nil {
		return "", "", appErrors.Clone(appErrors.ErrPreconditionFailed, "backups are not configured")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	return s.store.Path(relPath), relPath, nil
}

// CheckForUpdates queries the releases endpoint and compares the latest tag
// against the running version.
func (s *SettingsService) CheckForUpdates(ctx context.Context) (*dto.UpdateCheckResponse, error) {
	result := &dto.UpdateCheckResponse{
		CurrentVersion: s.currentVersion,
		CheckedAt:      time.Now().UTC(),
	}
	if s.releasesURL == "" {
		return result, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.releasesURL, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build update request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update check request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("update check returned status %d", resp.StatusCode))
	}

	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode release payload")
	}

	result.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	result.ReleaseURL = release.HTMLURL
	result.UpdateAvailable = versionLess(strings.TrimPrefix(s.currentVersion, "v"), result.LatestVersion)
	return result, nil
}

func (s *SettingsService) buildSetting(req dto.UpdateSettingRequest, actor *models.JWTClaims) (*models.Setting, error) {
	spec, ok := knownSettings[req.Key]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown setting key %q", req.Key))
	}
	if err := validateSettingValue(spec.Type, req.Value); err != nil {
		return nil, err
	}

	setting := &models.Setting{
		Key:       req.Key,
		Value:     req.Value,
		Type:      spec.Type,
		UpdatedAt: time.Now().UTC(),
	}
	if spec.Description != "" {
		desc := spec.Description
		setting.Description = &desc
	}
	if actor != nil {
		userID := actor.UserID
		setting.UpdatedBy = &userID
	}
	return setting, nil
}

func validateSettingValue(settingType models.SettingType, value string) error {
	switch settingType {
	case models.SettingTypeBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "value must be a boolean")
		}
	case models.SettingTypeInteger:
		if _, err := strconv.Atoi(value); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "value must be an integer")
		}
	}
	return nil
}

func sortSettingItems(items []dto.SettingItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
}

// versionLess compares dotted numeric versions, treating missing segments
// as zero. Non-numeric segments fall back to string comparison.
func versionLess(current, latest string) bool {
	if current == "" || latest == "" {
		return current == "" && latest != ""
	}
	curParts := strings.Split(current, ".")
	latParts := strings.Split(latest, ".")
	for i := 0; i < len(curParts) || i < len(latParts); i++ {
		var cur, lat string
		if i < len(curParts) {
			cur = curParts[i]
		}
		if i < len(latParts) {
			lat = latParts[i]
		}
		curN, errC := strconv.Atoi(cur)
		latN, errL := strconv.Atoi(lat)
		if errC != nil || errL != nil {
			if cur != lat {
				return cur < lat
			}
			continue
		}
		if curN != latN {
			return curN < latN
		}
	}
	return false
}
