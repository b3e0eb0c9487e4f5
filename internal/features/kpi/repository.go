package kpi

import (
	"context"

	"go-kpi/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type LoadAuditRepository interface {
	Create(ctx context.Context, audit LoadAudit) error
	ListByKPI(ctx context.Context, kpiID string, limit int64) ([]LoadAudit, error)
}

type LoadAuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewLoadAuditRepository(mongodb *database.MongodbDB) LoadAuditRepository {
	return &LoadAuditRepositoryImpl{
		Collection: mongodb.DB.Collection("kpi_load_audit"),
	}
}

func (r *LoadAuditRepositoryImpl) Create(ctx context.Context, audit LoadAudit) error {
	_, err := r.Collection.InsertOne(ctx, audit)
	return err
}

// ListByKPI returns the most recent loads of a KPI, newest first.
func (r *LoadAuditRepositoryImpl) ListByKPI(ctx context.Context, kpiID string, limit int64) ([]LoadAudit, error) {
	opts := options.Find().SetLimit(limit).SetSort(bson.M{"timestamp": -1})

	cursor, err := r.Collection.Find(ctx, bson.M{"kpi_id": kpiID}, opts)
	if err != nil {
		return nil, err
	}
	var audits []LoadAudit
	if err = cursor.All(ctx, &audits); err != nil {
		return nil, err
	}
	return audits, nil
}
