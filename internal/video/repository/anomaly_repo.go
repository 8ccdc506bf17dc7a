package repository

import (
	"context"
	"fmt"

	"tiered_video_service/internal/video/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AnomalyCollection 矛盾事件稽核 collection
const AnomalyCollection = "reconcile_anomalies"

// AnomalyRepo definition reconcile anomaly log
type AnomalyRepo interface {
	Insert(ctx context.Context, a domain.Anomaly) error
	// List 依觀察時間新到舊，videoID 空字串代表全部
	List(ctx context.Context, videoID string, limit int64) ([]domain.Anomaly, error)
}

type anomalyRepo struct {
	collection *mongo.Collection
}

// NewAnomalyRepo create AnomalyRepo
func NewAnomalyRepo(db *mongo.Database) AnomalyRepo {
	return &anomalyRepo{collection: db.Collection(AnomalyCollection)}
}

func (r *anomalyRepo) Insert(ctx context.Context, a domain.Anomaly) error {
	if _, err := r.collection.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert anomaly video[%s]: %w", a.VideoID, err)
	}
	return nil
}

func (r *anomalyRepo) List(ctx context.Context, videoID string, limit int64) ([]domain.Anomaly, error) {
	filter := bson.M{}
	if videoID != "" {
		filter["video_id"] = videoID
	}
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "observed_at", Value: -1}}).SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find anomalies: %w", err)
	}
	defer cursor.Close(ctx)

	var anomalies []domain.Anomaly
	if err := cursor.All(ctx, &anomalies); err != nil {
		return nil, fmt.Errorf("decode anomalies: %w", err)
	}
	return anomalies, nil
}
