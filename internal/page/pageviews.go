package page

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"wiki_harvester/internal/models"
)

const monthLayout = "200601"

// maxMonthFetches bounds concurrent requests to the statistics service.
const maxMonthFetches = 4

// Months expands an inclusive YYYYMM range into its calendar months. An
// empty to means the month of now.
func Months(from, to string, now time.Time) ([]string, error) {
	start, err := time.Parse(monthLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid start month %q: %w", from, err)
	}

	var end time.Time
	if to == "" {
		end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else if end, err = time.Parse(monthLayout, to); err != nil {
		return nil, fmt.Errorf("invalid end month %q: %w", to, err)
	}

	if end.Before(start) {
		return nil, fmt.Errorf("start month %s is after end month %s", from, to)
	}

	var months []string
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m.Format(monthLayout))
	}
	return months, nil
}

// PageViews fetches daily views one calendar month per request, the only
// granularity the statistics service accepts, and returns them in
// chronological order.
func (a *Accessor) PageViews(ctx context.Context, from, to string) ([]models.MonthViews, error) {
	months, err := Months(from, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	results := make([]models.MonthViews, len(months))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxMonthFetches)

	for i, month := range months {
		g.Go(func() error {
			monthURL := fmt.Sprintf("%s/%s/%s/%s",
				a.viewsEndpoint, a.identity.Language, month, url.PathEscape(a.identity.Title))

			var resp struct {
				DailyViews map[string]int `json:"daily_views"`
			}
			if err := a.client.GetURL(gctx, monthURL, &resp); err != nil {
				return fmt.Errorf("page views for %s: %w", month, err)
			}
			results[i] = models.MonthViews{Month: month, DailyViews: resp.DailyViews}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.logger.Debug("page views fetched", "title", a.identity.Title, "months", len(months))
	return results, nil
}
