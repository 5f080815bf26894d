package qualtrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

const (
	// expirationLayout is the format of expirationDate in create requests.
	expirationLayout = "2006-01-02 15:04:05"
	// maxPages guards pagination against a server that never stops.
	maxPages = 1000
)

// ErrMalformedLink is returned when a distribution row has no usable expiration.
var ErrMalformedLink = errors.New("malformed distribution link")

var _ personallinks.LinkSource = (*Client)(nil)

type createDistributionRequest struct {
	SurveyID       string `json:"surveyId"`
	LinkType       string `json:"linkType"`
	Description    string `json:"description"`
	Action         string `json:"action"`
	ExpirationDate string `json:"expirationDate"`
	MailingListID  string `json:"mailingListId"`
}

// CreateIndividualLinks creates a distribution with one single-use link per
// contact of the mailing list and returns the distribution id.
func (c *Client) CreateIndividualLinks(ctx context.Context, surveyID, contactListID string) (string, error) {
	now := c.now().UTC()
	body := createDistributionRequest{
		SurveyID:       surveyID,
		LinkType:       "Individual",
		Description:    "personal links " + now.Format(time.RFC3339),
		Action:         "CreateDistribution",
		ExpirationDate: now.Add(c.linkExpiry).Format(expirationLayout),
		MailingListID:  contactListID,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "create_distribution", http.MethodPost, "/distributions", body, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("qualtrics create_distribution: response carries no distribution id")
	}

	c.log.Debug("Created individual links distribution",
		logger.SurveyID(surveyID),
		logger.String("distribution_id", result.ID),
	)
	return result.ID, nil
}

type page[T any] struct {
	Elements []T    `json:"elements"`
	NextPage string `json:"nextPage"`
}

// ListDistributionLinks returns every link of a distribution, following
// nextPage until the last page.
func (c *Client) ListDistributionLinks(
	ctx context.Context,
	distributionID, surveyID string,
) ([]personallinks.DistributionLink, error) {
	first := "/distributions/" + url.PathEscape(distributionID) + "/links?" + url.Values{"surveyId": {surveyID}}.Encode()

	rows, err := collect[map[string]any](ctx, c, "list_distribution_links", first)
	if err != nil {
		return nil, err
	}

	links := make([]personallinks.DistributionLink, 0, len(rows))
	for _, row := range rows {
		// Contacts that opted out come back without a link.
		if l, _ := row["link"].(string); l == "" {
			continue
		}
		link, convErr := toDistributionLink(row)
		if convErr != nil {
			return nil, fmt.Errorf("distribution %s: %w", distributionID, convErr)
		}
		links = append(links, link)
	}
	return links, nil
}

// Distribution is a summary row of the distributions list.
type Distribution struct {
	ID           string    `json:"id"`
	SurveyID     string    `json:"-"`
	RequestType  string    `json:"requestType"`
	CreatedDate  time.Time `json:"createdDate"`
	ModifiedDate time.Time `json:"modifiedDate"`
}

// ListDistributions returns the distributions of a survey.
func (c *Client) ListDistributions(ctx context.Context, surveyID string) ([]Distribution, error) {
	first := "/distributions?" + url.Values{"surveyId": {surveyID}}.Encode()

	dists, err := collect[Distribution](ctx, c, "list_distributions", first)
	if err != nil {
		return nil, err
	}
	for i := range dists {
		dists[i].SurveyID = surveyID
	}
	return dists, nil
}

// DeleteDistribution removes a distribution and invalidates its links.
func (c *Client) DeleteDistribution(ctx context.Context, distributionID string) error {
	return c.do(ctx, "delete_distribution", http.MethodDelete, "/distributions/"+url.PathEscape(distributionID), nil, nil)
}

func collect[T any](ctx context.Context, c *Client, operation, next string) ([]T, error) {
	var all []T
	for range maxPages {
		var p page[T]
		if err := c.do(ctx, operation, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Elements...)
		if p.NextPage == "" {
			return all, nil
		}
		next = p.NextPage
	}
	return nil, fmt.Errorf("qualtrics %s: more than %d pages", operation, maxPages)
}

// toDistributionLink splits a links row into the URL, its expiration and the
// remaining contact metadata.
func toDistributionLink(row map[string]any) (personallinks.DistributionLink, error) {
	link, _ := row["link"].(string)
	if link == "" {
		return personallinks.DistributionLink{}, fmt.Errorf("%w: no link", ErrMalformedLink)
	}

	raw, _ := row["linkExpiration"].(string)
	expires, err := parseExpiration(raw)
	if err != nil {
		return personallinks.DistributionLink{}, fmt.Errorf("%w: %s: %w", ErrMalformedLink, link, err)
	}

	details := make(map[string]any, len(row))
	for k, v := range row {
		if k == "link" || k == "linkExpiration" {
			continue
		}
		details[k] = v
	}

	return personallinks.DistributionLink{URL: link, Expires: expires, Details: details}, nil
}

func parseExpiration(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("no linkExpiration")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(expirationLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse linkExpiration %q: %w", s, err)
	}
	return t.UTC(), nil
}
