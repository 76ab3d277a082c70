// Package analytics reports how the memory bank grows over time: upload
// velocity, topics trending up or down between windows, and an overall
// knowledge summary.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/data/repos"
	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

const trendLimit = 10

// TopicTrend compares a topic's mention counts between the earlier and
// recent halves of the analysis window.
type TopicTrend struct {
	Topic       string  `json:"topic"`
	EarlyCount  int64   `json:"early_count"`
	RecentCount int64   `json:"recent_count"`
	ChangeRate  float64 `json:"change_rate"` // percent, positive in both directions
}

// EvolutionReport is the knowledge-evolution view over a trailing window.
type EvolutionReport struct {
	PeriodDays     int       `json:"period_days"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
	TotalDocuments int64     `json:"total_documents"`

	// UploadVelocity is documents per day over the window.
	UploadVelocity float64 `json:"upload_velocity"`

	TrendingUp   []TopicTrend `json:"trending_up"`
	TrendingDown []TopicTrend `json:"trending_down"`
	NewTopics    []TopicTrend `json:"new_topics"`
}

// ConceptSummary is one top concept in the knowledge summary.
type ConceptSummary struct {
	Label      string  `json:"label"`
	Kind       string  `json:"kind"`
	Importance float64 `json:"importance"`
	Mentions   int     `json:"mentions"`
}

// Summary is the whole-bank overview.
type Summary struct {
	Documents     int64 `json:"documents"`
	Concepts      int   `json:"concepts"`
	Relationships int   `json:"relationships"`
	TotalMentions int   `json:"total_mentions"`

	// NetworkDensity is actual edges over possible edges in the graph.
	NetworkDensity float64 `json:"network_density"`

	TopConcepts []ConceptSummary `json:"top_concepts"`
}

type Service struct {
	log      *logger.Logger
	docs     repos.DocumentRepo
	concepts repos.ConceptRepo
	graph    kg.Graph
	now      func() time.Time
}

func NewService(log *logger.Logger, docs repos.DocumentRepo, concepts repos.ConceptRepo, graph kg.Graph) *Service {
	return &Service{
		log:      log.With("service", "Analytics"),
		docs:     docs,
		concepts: concepts,
		graph:    graph,
		now:      time.Now,
	}
}

// Evolution splits the trailing window in half and compares per-topic
// mention counts between the halves.
func (s *Service) Evolution(ctx context.Context, daysBack int) (EvolutionReport, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	now := s.now()
	windowStart := now.AddDate(0, 0, -daysBack)
	midpoint := now.Add(-time.Duration(daysBack) * 24 * time.Hour / 2)

	report := EvolutionReport{PeriodDays: daysBack, AnalyzedAt: now}

	total, err := s.docs.CountUploadedBetween(ctx, nil, windowStart, now)
	if err != nil {
		return report, err
	}
	report.TotalDocuments = total
	report.UploadVelocity = round2(float64(total) / float64(daysBack))

	early, err := s.concepts.MentionCountsBetween(ctx, nil, windowStart, midpoint)
	if err != nil {
		return report, err
	}
	recent, err := s.concepts.MentionCountsBetween(ctx, nil, midpoint, now)
	if err != nil {
		return report, err
	}

	earlyByID := make(map[uuid.UUID]int64, len(early))
	for _, mc := range early {
		earlyByID[mc.ConceptID] = mc.Count
	}
	recentByID := make(map[uuid.UUID]int64, len(recent))
	for _, mc := range recent {
		recentByID[mc.ConceptID] = mc.Count
	}

	labels, err := s.conceptLabels(ctx, earlyByID, recentByID)
	if err != nil {
		return report, err
	}

	seen := map[uuid.UUID]bool{}
	consider := func(id uuid.UUID) {
		if seen[id] {
			return
		}
		seen[id] = true
		label, ok := labels[id]
		if !ok {
			return
		}
		e, r := earlyByID[id], recentByID[id]
		switch {
		case e == 0 && r > 0:
			report.NewTopics = append(report.NewTopics, TopicTrend{Topic: label, RecentCount: r})
		case e > 0 && r > e:
			report.TrendingUp = append(report.TrendingUp, TopicTrend{
				Topic: label, EarlyCount: e, RecentCount: r,
				ChangeRate: round1(float64(r-e) / float64(e) * 100),
			})
		case e > 0 && r < e:
			report.TrendingDown = append(report.TrendingDown, TopicTrend{
				Topic: label, EarlyCount: e, RecentCount: r,
				ChangeRate: round1(float64(e-r) / float64(e) * 100),
			})
		}
	}
	for id := range earlyByID {
		consider(id)
	}
	for id := range recentByID {
		consider(id)
	}

	sortTrends(report.TrendingUp)
	sortTrends(report.TrendingDown)
	sort.Slice(report.NewTopics, func(i, j int) bool {
		if report.NewTopics[i].RecentCount != report.NewTopics[j].RecentCount {
			return report.NewTopics[i].RecentCount > report.NewTopics[j].RecentCount
		}
		return report.NewTopics[i].Topic < report.NewTopics[j].Topic
	})
	report.TrendingUp = capTrends(report.TrendingUp)
	report.TrendingDown = capTrends(report.TrendingDown)
	report.NewTopics = capTrends(report.NewTopics)
	return report, nil
}

// KnowledgeSummary combines document counts with live graph stats.
func (s *Service) KnowledgeSummary(ctx context.Context, topN int) (Summary, error) {
	if topN <= 0 {
		topN = 10
	}
	docs, err := s.docs.Count(ctx, nil)
	if err != nil {
		return Summary{}, err
	}

	stats := s.graph.Stats()
	out := Summary{
		Documents:     docs,
		Concepts:      stats.Concepts,
		Relationships: stats.Relationships,
		TotalMentions: stats.TotalMentions,
	}
	if stats.Concepts > 1 {
		possible := float64(stats.Concepts) * float64(stats.Concepts-1) / 2
		out.NetworkDensity = round4(float64(stats.Relationships) / possible)
	}

	for _, node := range s.graph.TopConcepts(topN) {
		out.TopConcepts = append(out.TopConcepts, ConceptSummary{
			Label:      node.Label,
			Kind:       node.Kind,
			Importance: node.Importance,
			Mentions:   node.Mentions,
		})
	}
	return out, nil
}

func (s *Service) conceptLabels(ctx context.Context, sets ...map[uuid.UUID]int64) (map[uuid.UUID]string, error) {
	idSet := map[uuid.UUID]bool{}
	for _, set := range sets {
		for id := range set {
			idSet[id] = true
		}
	}
	if len(idSet) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	rows, err := s.concepts.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	labels := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		labels[row.ID] = row.Label
	}
	return labels, nil
}

func sortTrends(trends []TopicTrend) {
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].ChangeRate != trends[j].ChangeRate {
			return trends[i].ChangeRate > trends[j].ChangeRate
		}
		return trends[i].Topic < trends[j].Topic
	})
}

func capTrends(trends []TopicTrend) []TopicTrend {
	if len(trends) > trendLimit {
		return trends[:trendLimit]
	}
	return trends
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
