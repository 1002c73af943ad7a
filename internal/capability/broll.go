package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/havenos/haven/internal/store"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// BRollSuggestion is one ranked asset.
type BRollSuggestion struct {
	AssetID   string          `json:"assetId"`
	Name      string          `json:"name"`
	Kind      store.AssetKind `json:"kind"`
	URL       string          `json:"url"`
	Score     int             `json:"score"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RankBRoll scores each asset by how many keywords its lower-cased name
// contains. Higher scores come first, ties go to the newer asset, and
// unmatched assets are kept at the end.
func RankBRoll(keywords []string, assets []store.Asset) []BRollSuggestion {
	var kws []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}

	out := make([]BRollSuggestion, 0, len(assets))
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		score := 0
		for _, k := range kws {
			if strings.Contains(name, k) {
				score++
			}
		}
		out = append(out, BRollSuggestion{
			AssetID:   a.ID,
			Name:      a.Name,
			Kind:      a.Kind,
			URL:       a.URL,
			Score:     score,
			CreatedAt: a.CreatedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// rankUserAssets replaces the model's keyword list with ranked assets.
func rankUserAssets(ctx context.Context, inv *Invoker, in *Input, parsed map[string]any) (map[string]any, error) {
	if inv.assets == nil {
		return nil, havenerr.NotConfigured("asset store")
	}

	var keywords []string
	if list, ok := parsed["keywords"].([]any); ok {
		for _, k := range list {
			if s, ok := k.(string); ok {
				keywords = append(keywords, s)
			}
		}
	}

	assets, err := inv.assets.ListAssets(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}

	return normalizeMap(map[string]any{
		"keywords":    keywords,
		"suggestions": RankBRoll(keywords, assets),
	})
}
