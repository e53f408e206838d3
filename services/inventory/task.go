package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"progression-engine/pkg/config"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// AssetResolver turns a catalog asset id into a display URL.
type AssetResolver interface {
	Resolve(ctx context.Context, assetID string) (string, error)
}

// TemplateResolver formats the asset id into a URL template with one %s verb.
type TemplateResolver struct {
	Template string
}

func NewTemplateResolver(cfg *config.Config) AssetResolver {
	return TemplateResolver{Template: cfg.Progression.AssetURLTemplate}
}

func (r TemplateResolver) Resolve(ctx context.Context, assetID string) (string, error) {
	if assetID == "" {
		return "", fmt.Errorf("empty asset id")
	}
	return fmt.Sprintf(r.Template, url.PathEscape(assetID)), nil
}

// Presigner is satisfied by *minio.Client.
type Presigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// ObjectResolver hands out presigned URLs for assets stored as objects
// named by their asset id.
type ObjectResolver struct {
	Client Presigner
	Bucket string
	TTL    time.Duration
}

func (r ObjectResolver) Resolve(ctx context.Context, assetID string) (string, error) {
	if assetID == "" {
		return "", fmt.Errorf("empty asset id")
	}
	u, err := r.Client.PresignedGetObject(ctx, r.Bucket, assetID, r.TTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", r.Bucket, assetID, err)
	}
	return u.String(), nil
}

type resolverParams struct {
	fx.In
	Config *config.Config
	Minio  *minio.Client `optional:"true"`
}

func provideResolver(p resolverParams) AssetResolver {
	if p.Minio != nil {
		return ObjectResolver{Client: p.Minio, Bucket: p.Config.Minio.BucketName, TTL: p.Config.Minio.PresignTTL}
	}
	return NewTemplateResolver(p.Config)
}

type Task struct {
	svc      *Service
	resolver AssetResolver
}

type TaskParams struct {
	fx.In
	Service  *Service
	Resolver AssetResolver
}

func NewTask(p TaskParams) *Task {
	return &Task{svc: p.Service, resolver: p.Resolver}
}

// HandleResolveAsset is the asynq handler for TypeResolveAsset.
func (t *Task) HandleResolveAsset(ctx context.Context, task *asynq.Task) error {
	var payload resolveAssetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		zap.L().Error("invalid resolve asset payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	item, err := t.svc.Get(ctx, payload.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		// The granting transaction may not be visible yet; retries are bounded
		// by MaxRetry at enqueue time.
		assetResolutions.WithLabelValues("missing").Inc()
		zap.L().Warn("resolve asset: item not found", zap.String("item_id", payload.ItemID))
		return fmt.Errorf("item %s not found", payload.ItemID)
	}
	if item.ImageURL != "" {
		assetResolutions.WithLabelValues("skipped").Inc()
		return nil
	}

	imageURL, err := t.resolver.Resolve(ctx, item.AssetID)
	if err != nil {
		assetResolutions.WithLabelValues("error").Inc()
		zap.L().Warn("resolve asset failed", zap.String("item_id", item.ID), zap.Error(err))
		return err
	}

	if _, err := t.svc.setImageURL(ctx, item.ID, imageURL); err != nil {
		return err
	}

	assetResolutions.WithLabelValues("resolved").Inc()
	zap.L().Info("resolved item asset", zap.String("item_id", item.ID), zap.String("image_url", imageURL))
	return nil
}
