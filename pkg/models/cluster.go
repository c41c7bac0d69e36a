package models

import (
	"fmt"
	"time"
)

type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierPhone IdentifierKind = "phone"
)

// Identifier is a normalized email or phone value. Shared is set on the
// identifiers of a cluster that at least two members carry; those are the
// links that formed it.
type Identifier struct {
	Kind   IdentifierKind `json:"kind"`
	Value  string         `json:"value"`
	Shared bool           `json:"shared,omitempty"`
}

// Key is the canonical string form used to order identifiers and clusters.
func (i Identifier) Key() string {
	return string(i.Kind) + ":" + i.Value
}

type ClusterKind string

const (
	ClusterKindEmail  ClusterKind = "email"
	ClusterKindPhone  ClusterKind = "phone"
	ClusterKindMerged ClusterKind = "merged"
)

// KindFilter selects clusters by kind. KindAll matches every cluster.
type KindFilter string

const (
	KindAll    KindFilter = "all"
	KindEmail  KindFilter = KindFilter(ClusterKindEmail)
	KindPhone  KindFilter = KindFilter(ClusterKindPhone)
	KindMerged KindFilter = KindFilter(ClusterKindMerged)
)

// ParseKindFilter accepts "", "all", "email", "phone" and "merged". The
// original API called merged clusters "both", so that alias is accepted too.
func ParseKindFilter(s string) (KindFilter, error) {
	switch s {
	case "", string(KindAll):
		return KindAll, nil
	case string(KindEmail), string(KindPhone), string(KindMerged):
		return KindFilter(s), nil
	case "both":
		return KindMerged, nil
	}
	return "", fmt.Errorf("invalid cluster kind %q: must be one of all, email, phone, merged", s)
}

// Matches reports whether a cluster of kind k passes the filter.
func (f KindFilter) Matches(k ClusterKind) bool {
	return f == KindAll || f == "" || ClusterKind(f) == k
}

// Cluster is a connected component of records linked by shared identifiers.
// Identifiers holds every identifier its members carry, sorted by key, and
// Kind is derived from them. MemberIDs is ascending.
type Cluster struct {
	Key         string       `json:"key"`
	Kind        ClusterKind  `json:"kind"`
	Identifiers []Identifier `json:"identifiers"`
	MemberIDs   []int64      `json:"member_ids"`
}

func (c Cluster) MemberCount() int {
	return len(c.MemberIDs)
}

// ClusterGroup is a cluster as returned to callers, with member records.
type ClusterGroup struct {
	Key         string       `json:"key"`
	Kind        ClusterKind  `json:"kind"`
	Identifiers []Identifier `json:"identifiers"`
	MemberCount int          `json:"member_count"`
	Members     []Record     `json:"members"`
}

// ClusterPage is one page of clusters in rank order.
type ClusterPage struct {
	BatchID     string         `json:"batch_id"`
	Kind        KindFilter     `json:"kind"`
	TotalGroups int64          `json:"total_groups"`
	Page        int            `json:"page"`
	PageSize    int            `json:"page_size"`
	Groups      []ClusterGroup `json:"groups"`
	BuiltAt     *time.Time     `json:"built_at,omitempty"`
}

// ClusterStats counts cached clusters per kind.
type ClusterStats struct {
	BatchID       string     `json:"batch_id"`
	EmailGroups   int64      `json:"email_groups"`
	PhoneGroups   int64      `json:"phone_groups"`
	MergedGroups  int64      `json:"merged_groups"`
	TotalGroups   int64      `json:"total_groups"`
	LinkedRecords int64      `json:"linked_records"`
	BuiltAt       *time.Time `json:"built_at,omitempty"`
}

// RebuildResult describes a completed cache rebuild.
type RebuildResult struct {
	BatchID       string        `json:"batch_id"`
	Clusters      int           `json:"clusters"`
	LinkedRecords int           `json:"linked_records"`
	Duration      time.Duration `json:"duration"`
	BuiltAt       time.Time     `json:"built_at"`
}
