package resolver

import (
	"cmp"
	"slices"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Format turns components into clusters. Kind is decided from the complete
// component, identifiers are sorted by key, members by id, and clusters by
// member count descending then key ascending.
func Format(g *Graph, comps []Component) []models.Cluster {
	clusters := make([]models.Cluster, 0, len(comps))
	for _, comp := range comps {
		identifiers := make([]models.Identifier, len(comp.Nodes))
		for i, n := range comp.Nodes {
			identifiers[i] = g.Node(n).Identifier()
		}
		slices.SortFunc(identifiers, func(a, b models.Identifier) int {
			return cmp.Compare(a.Key(), b.Key())
		})

		members := make([]int64, len(comp.Records))
		for i, r := range comp.Records {
			members[i] = g.RecordID(r)
		}
		slices.Sort(members)

		clusters = append(clusters, models.Cluster{
			Key:         identifiers[0].Key(),
			Kind:        classify(identifiers),
			Identifiers: identifiers,
			MemberIDs:   members,
		})
	}

	SortClusters(clusters)
	return clusters
}

func classify(identifiers []models.Identifier) models.ClusterKind {
	var hasEmail, hasPhone bool
	for _, id := range identifiers {
		switch id.Kind {
		case models.IdentifierEmail:
			hasEmail = true
		case models.IdentifierPhone:
			hasPhone = true
		}
	}
	switch {
	case hasEmail && hasPhone:
		return models.ClusterKindMerged
	case hasPhone:
		return models.ClusterKindPhone
	default:
		return models.ClusterKindEmail
	}
}

// SortClusters orders clusters by member count descending, then key.
func SortClusters(clusters []models.Cluster) {
	slices.SortFunc(clusters, func(a, b models.Cluster) int {
		if c := cmp.Compare(b.MemberCount(), a.MemberCount()); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
}

// Paginate filters sorted clusters by kind and returns one 1-based page with
// the number of clusters that passed the filter.
func Paginate(clusters []models.Cluster, filter models.KindFilter, page, pageSize int) ([]models.Cluster, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	matched := clusters
	if filter != models.KindAll && filter != "" {
		matched = make([]models.Cluster, 0, len(clusters))
		for _, c := range clusters {
			if filter.Matches(c.Kind) {
				matched = append(matched, c)
			}
		}
	}

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []models.Cluster{}, len(matched)
	}
	end := min(start+pageSize, len(matched))
	return matched[start:end], len(matched)
}
