package withings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"w2wcli/internal/errors"
)

// MeasureType is a Withings measure type code.
type MeasureType int

// Scale (body composition) measure types.
const (
	MeasureWeightKG      MeasureType = 1
	MeasureFatFreeMassKG MeasureType = 5
	MeasureFatMassKG     MeasureType = 8
	MeasureMuscleMassKG  MeasureType = 76
	MeasureHydrationKG   MeasureType = 77
	MeasureBoneMassKG    MeasureType = 88
)

// ScaleTypes returns the measure types requested for scale measurements.
func ScaleTypes() []MeasureType {
	return []MeasureType{
		MeasureWeightKG,
		MeasureFatFreeMassKG,
		MeasureFatMassKG,
		MeasureMuscleMassKG,
		MeasureBoneMassKG,
		MeasureHydrationKG,
	}
}

// categoryReal marks real measurements (as opposed to user objectives).
const categoryReal = 1

// Measure is one value inside a measure group.
type Measure struct {
	Type  int   `json:"type"`
	Value int64 `json:"value"`
	Unit  int   `json:"unit"`
}

// MeasureGroup is one weigh-in event as returned by getmeas.
type MeasureGroup struct {
	GrpID    int64     `json:"grpid"`
	Category int       `json:"category"`
	Date     int64     `json:"date"`
	DeviceID string    `json:"deviceid"`
	Measures []Measure `json:"measures"`
}

type measureEnvelope struct {
	Status int         `json:"status"`
	Error  string      `json:"error"`
	Body   measureBody `json:"body"`
}

type measureBody struct {
	MeasureGroups []MeasureGroup `json:"measuregrps"`
	More          int            `json:"more"`
	Offset        *int64         `json:"offset"`
	Timezone      string         `json:"timezone"`
}

// Record is a decoded weigh-in: one timestamp with the metric values that
// were measured.
type Record struct {
	Timestamp time.Time
	GroupID   int64
	DeviceID  string
	Values    map[MeasureType]float64
}

// MeasurePage is one page of decoded measurements plus pagination state.
type MeasurePage struct {
	Records  []Record
	More     bool
	Offset   *int64
	Timezone string
}

// FetchOptions tunes a measure fetch.
type FetchOptions struct {
	Types      []MeasureType
	Offset     *int64
	LastUpdate time.Time // only groups modified since this instant
	MaxPages   int       // safety cap for FetchAllMeasures, 0 for unlimited
}

// DecodeValue decodes a raw measure value: the real value is value * 10^unit.
func DecodeValue(value int64, unit int) float64 {
	return float64(value) * math.Pow(10, float64(unit))
}

// TransformGroups decodes measure groups into records. Only real
// measurements (category 1) are kept; unknown measure types are skipped.
// Records come back sorted by timestamp.
func TransformGroups(groups []MeasureGroup) []Record {
	known := make(map[int]MeasureType)
	for _, mt := range ScaleTypes() {
		known[int(mt)] = mt
	}

	var records []Record
	for _, grp := range groups {
		if grp.Category != categoryReal {
			continue
		}
		values := make(map[MeasureType]float64)
		for _, m := range grp.Measures {
			mt, ok := known[m.Type]
			if !ok {
				continue
			}
			values[mt] = DecodeValue(m.Value, m.Unit)
		}
		records = append(records, Record{
			Timestamp: time.Unix(grp.Date, 0),
			GroupID:   grp.GrpID,
			DeviceID:  grp.DeviceID,
			Values:    values,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

// FetchMeasures fetches one page of scale measurements between start and end
// (both inclusive).
func (c *Client) FetchMeasures(ctx context.Context, start, end time.Time, opts FetchOptions) (*MeasurePage, error) {
	accessToken, err := c.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	types := opts.Types
	if len(types) == 0 {
		types = ScaleTypes()
	}
	typeParams := make([]string, len(types))
	for i, t := range types {
		typeParams[i] = strconv.Itoa(int(t))
	}

	params := url.Values{
		"action":    {"getmeas"},
		"meastypes": {strings.Join(typeParams, ",")},
		"startdate": {strconv.FormatInt(start.Unix(), 10)},
		"enddate":   {strconv.FormatInt(end.Unix(), 10)},
	}
	if opts.Offset != nil {
		params.Set("offset", strconv.FormatInt(*opts.Offset, 10))
	}
	if !opts.LastUpdate.IsZero() {
		params.Set("lastupdate", strconv.FormatInt(opts.LastUpdate.Unix(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.measureURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.NewNetworkError("failed to build getmeas request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError("getmeas request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError(fmt.Sprintf("getmeas HTTP %d", resp.StatusCode), nil)
	}

	var envelope measureEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.NewNetworkError("failed to decode getmeas response", err)
	}
	if envelope.Status != 0 {
		return nil, errors.NewNetworkError(fmt.Sprintf("getmeas failed with status %d", envelope.Status), nil).
			WithContext("api_error", envelope.Error)
	}

	return &MeasurePage{
		Records:  TransformGroups(envelope.Body.MeasureGroups),
		More:     envelope.Body.More == 1,
		Offset:   envelope.Body.Offset,
		Timezone: envelope.Body.Timezone,
	}, nil
}

// FetchAllMeasures follows the more/offset pagination chain until the API
// reports no further pages. Page requests are paced by the client's rate
// limiter. Overlapping pages are de-duplicated by group id, keeping the
// latest occurrence.
func (c *Client) FetchAllMeasures(ctx context.Context, start, end time.Time, opts FetchOptions) ([]Record, error) {
	var all []Record
	pages := 0
	offset := opts.Offset

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.NewNetworkError("pagination interrupted", err)
		}

		pageOpts := opts
		pageOpts.Offset = offset
		page, err := c.FetchMeasures(ctx, start, end, pageOpts)
		if err != nil {
			return nil, err
		}
		pages++
		c.logger.DebugContext(ctx, "fetched measure page",
			slog.Int("page", pages),
			slog.Int("records", len(page.Records)),
			slog.Bool("more", page.More))

		all = append(all, page.Records...)

		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			break
		}
		if !page.More || page.Offset == nil {
			break
		}
		offset = page.Offset
	}

	return dedupeByGroup(all), nil
}

// dedupeByGroup drops duplicate group ids, keeping the last occurrence, and
// restores timestamp order.
func dedupeByGroup(records []Record) []Record {
	byGroup := make(map[int64]Record, len(records))
	for _, r := range records {
		byGroup[r.GroupID] = r
	}
	out := make([]Record, 0, len(byGroup))
	for _, r := range byGroup {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
