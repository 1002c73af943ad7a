package capability

import (
	"context"
	"errors"
	"strconv"

	"github.com/havenos/haven/internal/websearch"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// withProfile loads the requesting user's profile when one exists.
func withProfile(ctx context.Context, inv *Invoker, in *Input) error {
	if inv.profiles == nil || in.UserID == "" {
		return nil
	}
	p, err := inv.profiles.GetProfile(ctx, in.UserID)
	if errors.Is(err, havenerr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	in.Profile = &p
	return nil
}

// withResearch adds the profile and, when the request sets research and a
// search key is configured, web sources for the topic.
func withResearch(ctx context.Context, inv *Invoker, in *Input) error {
	if err := withProfile(ctx, inv, in); err != nil {
		return err
	}
	if research, _ := in.Fields["research"].(bool); !research {
		return nil
	}
	if !inv.web.Configured() {
		inv.logger.WarnContext(ctx, "research requested but web search is not configured")
		in.Extra["grounded"] = false
		return nil
	}

	query := in.String("topic")
	if query == "" {
		query = in.Title()
	}
	results, err := inv.web.Search(ctx, query, 5)
	if err != nil {
		inv.logger.WarnContext(ctx, "web search failed, continuing without sources",
			"error", err)
		in.Extra["grounded"] = false
		return nil
	}
	in.Sources = websearch.FormatSources(results)
	in.Extra["grounded"] = len(results) > 0
	return nil
}

// intOption parses a numeric option, returning def when it is not a number.
func intOption(in *Input, name string, def int) int {
	n, err := strconv.Atoi(in.Option(name))
	if err != nil {
		return def
	}
	return n
}
