package cacheentry

import (
	"database/sql"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	cacheTable = "cluster_cache"
)

// EntryRow represents the database row for one cached cluster
type EntryRow struct {
	BatchID         sql.NullString                      `db:"batch_id"`
	ClusterKey      sql.NullString                      `db:"cluster_key"`
	ClusterRank     sql.NullInt64                       `db:"cluster_rank"`
	Kind            sql.NullString                      `db:"kind"`
	MemberCount     sql.NullInt64                       `db:"member_count"`
	Identifiers     database.JSONB[[]models.Identifier] `db:"identifiers"`
	MemberRecordIDs database.JSONB[[]int64]             `db:"member_record_ids"`
}

// KindCountRow is one row of the per-kind statistics query
type KindCountRow struct {
	Kind    sql.NullString `db:"kind"`
	Groups  sql.NullInt64  `db:"group_count"`
	Members sql.NullInt64  `db:"member_total"`
}

var entryStruct = database.NewStruct(new(EntryRow))

// FromCluster converts a ranked cluster to a database row
func FromCluster(batchID string, rank int, c *models.Cluster) *EntryRow {
	return &EntryRow{
		BatchID:         sql.NullString{String: batchID, Valid: true},
		ClusterKey:      sql.NullString{String: c.Key, Valid: true},
		ClusterRank:     sql.NullInt64{Int64: int64(rank), Valid: true},
		Kind:            sql.NullString{String: string(c.Kind), Valid: true},
		MemberCount:     sql.NullInt64{Int64: int64(len(c.MemberIDs)), Valid: true},
		Identifiers:     database.JSONB[[]models.Identifier]{Data: c.Identifiers},
		MemberRecordIDs: database.JSONB[[]int64]{Data: c.MemberIDs},
	}
}

// ToCluster converts a database row to a domain model
func ToCluster(row *EntryRow) *models.Cluster {
	return &models.Cluster{
		Key:         row.ClusterKey.String,
		Kind:        models.ClusterKind(row.Kind.String),
		Identifiers: row.Identifiers.Data,
		MemberIDs:   row.MemberRecordIDs.Data,
	}
}

// ToClusters converts a slice of database rows to domain models
func ToClusters(rows []EntryRow) []models.Cluster {
	clusters := make([]models.Cluster, len(rows))
	for i := range rows {
		clusters[i] = *ToCluster(&rows[i])
	}
	return clusters
}
