package repo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/models"
)

const (
	entriesPath    = "/api/v1/entries/sgv.json"
	treatmentsPath = "/api/v1/treatments.json"

	eventHeartRate     = "HeartRate"
	eventTempBasal     = "Temp Basal"
	eventProfileSwitch = "Profile Switch"

	// Temp basals starting this long before a window may still reach into it.
	overrideLookback = 12 * time.Hour
)

// NightscoutClient reads glucose, treatments and profile switches from a
// Nightscout site.
type NightscoutClient struct {
	baseURL    string
	secretHash string
	token      string
	pageSize   int
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNightscoutClient constructs a client for the configured site. The API
// secret is sent as its SHA-1 hex digest, the token as a bearer token.
func NewNightscoutClient(cfg config.NightscoutConfig, logger *slog.Logger) *NightscoutClient {
	if logger == nil {
		logger = slog.Default()
	}
	var secretHash string
	if cfg.APISecret != "" {
		sum := sha1.Sum([]byte(cfg.APISecret))
		secretHash = hex.EncodeToString(sum[:])
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 10000
	}
	return &NightscoutClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretHash: secretHash,
		token:      cfg.APIToken,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(limit, burst),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type sgvEntry struct {
	Date int64   `json:"date"`
	SGV  float64 `json:"sgv"`
}

type treatment struct {
	CreatedAt          string   `json:"created_at"`
	Date               int64    `json:"date"`
	EventType          string   `json:"eventType"`
	Carbs              *float64 `json:"carbs"`
	Insulin            *float64 `json:"insulin"`
	BeatsPerMinute     float64  `json:"beatsPerMinute"`
	Duration           float64  `json:"duration"`
	DurationMillis     int64    `json:"durationInMilliseconds"`
	Percent            *float64 `json:"percent"`
	Absolute           *float64 `json:"absolute"`
	Profile            string   `json:"profile"`
	ProfileJSON        string   `json:"profileJson"`
	OriginalDuration   int64    `json:"originalDuration"`
	OriginalPercentage float64  `json:"originalPercentage"`
}

func (t treatment) timestamp() (time.Time, error) {
	if t.Date > 0 {
		return time.UnixMilli(t.Date).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("treatment %q has invalid created_at %q: %w", t.EventType, t.CreatedAt, err)
	}
	return ts.UTC(), nil
}

func (t treatment) duration() time.Duration {
	if t.DurationMillis > 0 {
		return time.Duration(t.DurationMillis) * time.Millisecond
	}
	return time.Duration(t.Duration * float64(time.Minute))
}

// GlucoseReadings returns sensor glucose values in [from, to).
func (c *NightscoutClient) GlucoseReadings(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	q := url.Values{}
	q.Set("find[date][$gte]", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("find[date][$lt]", strconv.FormatInt(to.UnixMilli(), 10))
	q.Set("count", strconv.Itoa(c.pageSize))

	var entries []sgvEntry
	if err := c.getJSON(ctx, entriesPath, q, &entries); err != nil {
		return nil, fmt.Errorf("nightscout entries request failed: %w", err)
	}
	out := make([]models.TimedValue, 0, len(entries))
	for _, e := range entries {
		if e.SGV <= 0 {
			continue
		}
		out = append(out, models.TimedValue{Timestamp: time.UnixMilli(e.Date).UTC(), Value: e.SGV})
	}
	sortTimed(out)
	return out, nil
}

// HeartRates returns HeartRate treatments in [from, to).
func (c *NightscoutClient) HeartRates(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return c.treatmentValues(ctx, from, to, "find[eventType]", eventHeartRate, func(t treatment) (float64, bool) {
		return t.BeatsPerMinute, t.BeatsPerMinute > 0
	})
}

// Carbs returns carbohydrate entries in grams in [from, to).
func (c *NightscoutClient) Carbs(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return c.treatmentValues(ctx, from, to, "find[carbs][$gt]", "0", func(t treatment) (float64, bool) {
		if t.Carbs == nil {
			return 0, false
		}
		return *t.Carbs, *t.Carbs > 0
	})
}

// Boluses returns insulin boluses in units in [from, to).
func (c *NightscoutClient) Boluses(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return c.treatmentValues(ctx, from, to, "find[insulin][$gt]", "0", func(t treatment) (float64, bool) {
		if t.Insulin == nil {
			return 0, false
		}
		return *t.Insulin, *t.Insulin > 0
	})
}

// TemporaryOverrides returns temp basals that may affect [from, to). A
// percentage is turned into a multiplier of the scheduled rate, an absolute
// rate replaces it.
func (c *NightscoutClient) TemporaryOverrides(ctx context.Context, from, to time.Time) ([]models.TemporaryOverride, error) {
	items, err := c.treatments(ctx, from.Add(-overrideLookback), to, "find[eventType]", eventTempBasal)
	if err != nil {
		return nil, err
	}
	out := make([]models.TemporaryOverride, 0, len(items))
	for _, t := range items {
		ts, err := t.timestamp()
		if err != nil {
			return nil, err
		}
		out = append(out, tempBasalOverride(ts, t.duration(), t.Percent, t.Absolute))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// ProfileHistory resolves the basal profiles in effect during [from, to).
func (c *NightscoutClient) ProfileHistory(ctx context.Context, from, to time.Time) (*models.ProfileHistory, error) {
	q := url.Values{}
	q.Set("find[eventType]", eventProfileSwitch)
	q.Set("find[created_at][$lt]", to.UTC().Format(time.RFC3339))
	q.Set("count", strconv.Itoa(c.pageSize))

	var items []treatment
	if err := c.getJSON(ctx, treatmentsPath, q, &items); err != nil {
		return nil, fmt.Errorf("nightscout profile switch request failed: %w", err)
	}
	switches := make([]models.DailyProfile, 0, len(items))
	for _, t := range items {
		ts, err := t.timestamp()
		if err != nil {
			return nil, err
		}
		p, err := profileSwitch(t, ts)
		if err != nil {
			c.logger.Warn("skipping profile switch", slog.Time("start", ts), slog.Any("error", err))
			continue
		}
		switches = append(switches, p)
	}
	return resolveHistory(switches, from, to), nil
}

func profileSwitch(t treatment, start time.Time) (models.DailyProfile, error) {
	var store struct {
		Basal []basalEntry `json:"basal"`
	}
	if err := json.Unmarshal([]byte(t.ProfileJSON), &store); err != nil {
		return models.DailyProfile{}, fmt.Errorf("decode profileJson: %w", err)
	}
	segments, err := segmentsFromEntries(store.Basal)
	if err != nil {
		return models.DailyProfile{}, err
	}
	multiplier := 1.0
	if t.OriginalPercentage > 0 {
		multiplier = t.OriginalPercentage / 100
	}
	return models.DailyProfile{
		Name:               t.Profile,
		Start:              start,
		Segments:           segments,
		PermanenceDuration: time.Duration(t.OriginalDuration) * time.Millisecond,
		RateMultiplier:     multiplier,
	}, nil
}

func (c *NightscoutClient) treatmentValues(ctx context.Context, from, to time.Time, filterKey, filterValue string, value func(treatment) (float64, bool)) ([]models.TimedValue, error) {
	items, err := c.treatments(ctx, from, to, filterKey, filterValue)
	if err != nil {
		return nil, err
	}
	out := make([]models.TimedValue, 0, len(items))
	for _, t := range items {
		v, ok := value(t)
		if !ok {
			continue
		}
		ts, err := t.timestamp()
		if err != nil {
			return nil, err
		}
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		out = append(out, models.TimedValue{Timestamp: ts, Value: v})
	}
	sortTimed(out)
	return out, nil
}

func (c *NightscoutClient) treatments(ctx context.Context, from, to time.Time, filterKey, filterValue string) ([]treatment, error) {
	q := url.Values{}
	q.Set(filterKey, filterValue)
	q.Set("find[created_at][$gte]", from.UTC().Format(time.RFC3339))
	q.Set("find[created_at][$lt]", to.UTC().Format(time.RFC3339))
	q.Set("count", strconv.Itoa(c.pageSize))

	var items []treatment
	if err := c.getJSON(ctx, treatmentsPath, q, &items); err != nil {
		return nil, fmt.Errorf("nightscout treatments request failed: %w", err)
	}
	return items, nil
}

func (c *NightscoutClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + p
	}
	u.Path = path.Join(u.Path, p)
	return u.String()
}

func (c *NightscoutClient) getJSON(ctx context.Context, p string, query url.Values, out any) error {
	if c == nil {
		return fmt.Errorf("nightscout client not initialised")
	}
	endpoint := c.resolvePath(p)
	if endpoint == "" {
		return fmt.Errorf("nightscout base URL not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.secretHash != "" {
		req.Header.Set("API-SECRET", c.secretHash)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nightscout returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
