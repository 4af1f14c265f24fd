package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mailgate/mailgate/internal/logging"
)

// Search strategy labels, reported to the caller so results say how they
// were found.
const (
	StrategyCombined = "combined search"
	StrategySubject  = "subject search"
	StrategyFrom     = "from search"
	StrategyQuery    = "query search"
	StrategyRecent   = "recent emails fallback"
)

// SearchParams are the user-facing search criteria.
type SearchParams struct {
	Query          string
	FromAddress    string
	Subject        string
	HasAttachments bool
	UnreadOnly     bool
	Count          int
}

// SearchEngine runs mailbox searches with progressive fallback. The combined
// query is attempted first; if it errors or matches nothing, each provided
// term is retried on its own, and as a last resort the most recent messages
// are returned unfiltered.
type SearchEngine struct {
	client     *Client
	logger     *slog.Logger
	listFields string
}

// NewSearchEngine creates a SearchEngine. listFields is the $select
// projection applied to every search request.
func NewSearchEngine(client *Client, logger *slog.Logger, listFields string) *SearchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchEngine{client: client, logger: logger, listFields: listFields}
}

// searchAttempt is one labeled strategy in the fallback chain.
type searchAttempt struct {
	strategy string
	params   url.Values
}

// Search runs the fallback chain against a folder endpoint and returns the
// matches together with the strategy that produced them. Failures of
// intermediate strategies are logged and swallowed; only an error from the
// final unfiltered fallback is returned to the caller.
func (e *SearchEngine) Search(ctx context.Context, endpoint string, p SearchParams) ([]Message, string, error) {
	attempts := e.buildAttempts(p)
	last := len(attempts) - 1

	for i, attempt := range attempts {
		messages, err := e.client.GetPaginated(ctx, endpoint, attempt.params, p.Count)
		if err != nil {
			if i == last {
				return nil, "", fmt.Errorf("%s: %w", attempt.strategy, err)
			}
			e.logger.Warn("search strategy failed, falling back",
				logging.Strategy(attempt.strategy), logging.Err(err))
			continue
		}
		if len(messages) > 0 || i == last {
			return messages, attempt.strategy, nil
		}
		e.logger.Debug("search strategy matched nothing, falling back",
			logging.Strategy(attempt.strategy))
	}

	// buildAttempts always yields at least the recent fallback
	return nil, "", fmt.Errorf("no search strategies attempted")
}

// buildAttempts assembles the strategy chain for the given criteria, ending
// with the unconditional recent-messages fallback.
func (e *SearchEngine) buildAttempts(p SearchParams) []searchAttempt {
	var attempts []searchAttempt

	combined := e.baseParams(p.Count)
	var terms []string
	if p.Query != "" {
		terms = append(terms, fmt.Sprintf("%q", p.Query))
	}
	if p.Subject != "" {
		terms = append(terms, fmt.Sprintf("subject:%q", p.Subject))
	}
	if p.FromAddress != "" {
		terms = append(terms, fmt.Sprintf("from:%q", p.FromAddress))
	}
	if len(terms) > 0 {
		combined.Set("$search", strings.Join(terms, " "))
	}

	var filters []string
	if p.HasAttachments {
		filters = append(filters, "hasAttachments eq true")
	}
	if p.UnreadOnly {
		filters = append(filters, "isRead eq false")
	}
	if len(filters) > 0 {
		combined.Set("$filter", strings.Join(filters, " and "))
	}
	attempts = append(attempts, searchAttempt{strategy: StrategyCombined, params: combined})

	// Per-term fallbacks drop the boolean filters: a term match alone is
	// better than no result at all.
	singles := []struct {
		strategy string
		search   string
		value    string
	}{
		{StrategySubject, "subject:%q", p.Subject},
		{StrategyFrom, "from:%q", p.FromAddress},
		{StrategyQuery, "%q", p.Query},
	}
	for _, s := range singles {
		if s.value == "" {
			continue
		}
		params := e.baseParams(p.Count)
		params.Set("$search", fmt.Sprintf(s.search, s.value))
		attempts = append(attempts, searchAttempt{strategy: s.strategy, params: params})
	}

	attempts = append(attempts, searchAttempt{strategy: StrategyRecent, params: e.baseParams(p.Count)})
	return attempts
}

func (e *SearchEngine) baseParams(count int) url.Values {
	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", count))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", e.listFields)
	return params
}
