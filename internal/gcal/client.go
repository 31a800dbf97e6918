package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Client wraps the Google Calendar API for the calendar tool.
type Client struct {
	service   *calendar.Service
	config    *oauth2.Config
	tokenFile string
	token     *oauth2.Token
}

// EventInput represents the input for creating a calendar event
type EventInput struct {
	Summary     string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
}

// EventDetails represents a single Google Calendar event.
type EventDetails struct {
	ID        string
	Summary   string
	Location  string
	StartTime time.Time
	EndTime   *time.Time
	AllDay    bool
}

// NewClient creates a Google Calendar client from a credentials file and a
// previously stored token. The token is refreshed on use when possible.
func NewClient(credentialsFile, tokenFile string) (*Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OAuth config: %w", err)
	}

	client := &Client{
		config:    config,
		tokenFile: tokenFile,
	}

	token, err := loadToken(tokenFile)
	if err != nil {
		// Not authorized yet; the calendar tool stays disabled until a
		// token file appears.
		fmt.Printf("Google Calendar: no stored token (%v), calendar tool disabled\n", err)
		return client, nil
	}
	client.token = token

	if err := client.initService(context.Background()); err != nil {
		fmt.Printf("Google Calendar: could not initialize service: %v\n", err)
	}

	return client, nil
}

// IsAuthenticated returns true if the client is authenticated
func (c *Client) IsAuthenticated() bool {
	return c.service != nil
}

func (c *Client) initService(ctx context.Context) error {
	if c.token == nil {
		return fmt.Errorf("no token available")
	}

	if !c.token.Valid() && c.token.RefreshToken != "" {
		tokenSource := c.config.TokenSource(ctx, c.token)
		newToken, err := tokenSource.Token()
		if err != nil {
			return fmt.Errorf("failed to refresh token: %w", err)
		}
		c.token = newToken
		if err := saveToken(c.tokenFile, newToken); err != nil {
			fmt.Printf("Warning: could not save refreshed token: %v\n", err)
		}
	}

	httpClient := c.config.Client(ctx, c.token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}

	c.service = service
	return nil
}

// ListUpcomingEvents returns events in the primary calendar between now and
// now plus the given window.
func (c *Client) ListUpcomingEvents(window time.Duration, maxResults int64) ([]EventDetails, error) {
	if c.service == nil {
		return nil, fmt.Errorf("calendar service not initialized")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	now := time.Now()
	call := c.service.Events.List("primary").
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.Add(window).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults)

	result, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]EventDetails, 0, len(result.Items))
	for _, item := range result.Items {
		details, err := eventDetailsFromItem(item)
		if err != nil {
			fmt.Printf("Google Calendar: skipping unparseable event %s: %v\n", item.Id, err)
			continue
		}
		events = append(events, details)
	}

	return events, nil
}

// CreateEvent creates a new event in the primary calendar and returns its ID.
func (c *Client) CreateEvent(input EventInput) (string, error) {
	if c.service == nil {
		return "", fmt.Errorf("calendar service not initialized")
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		Start:       &calendar.EventDateTime{DateTime: input.StartTime.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: input.EndTime.Format(time.RFC3339)},
	}

	created, err := c.service.Events.Insert("primary", event).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}

	return created.Id, nil
}

func eventDetailsFromItem(item *calendar.Event) (EventDetails, error) {
	if item == nil || item.Start == nil {
		return EventDetails{}, fmt.Errorf("event is missing start")
	}

	details := EventDetails{
		ID:       item.Id,
		Summary:  item.Summary,
		Location: item.Location,
	}

	// All-day events use Date instead of DateTime.
	if item.Start.Date != "" {
		startDate, err := time.Parse("2006-01-02", item.Start.Date)
		if err != nil {
			return EventDetails{}, fmt.Errorf("failed to parse all-day start date: %w", err)
		}
		details.StartTime = startDate
		details.AllDay = true
		return details, nil
	}

	startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return EventDetails{}, fmt.Errorf("failed to parse start datetime: %w", err)
	}
	details.StartTime = startTime

	if item.End != nil && item.End.DateTime != "" {
		endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err == nil {
			details.EndTime = &endTime
		}
	}

	return details, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}
