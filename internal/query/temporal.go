package query

import (
	"strings"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// TemporalFragment builds a temporal fragment from a STAC datetime parameter:
// a single RFC 3339 instant, or an interval "start/end" where either side may
// be ".." (or empty) for an open end. A fully open interval produces no
// fragment.
func TemporalFragment(datetime string) (*Fragment, error) {
	start, end, err := ParseInterval(datetime)
	if err != nil {
		return nil, err
	}
	if start == nil && end == nil {
		return nil, nil
	}
	return &Fragment{Kind: KindTemporal, Start: start, End: end}, nil
}

// ParseInterval parses a STAC datetime parameter into an interval. A single
// instant yields equal start and end. Either side may be nil for an
// open-ended interval.
func ParseInterval(datetime string) (start, end *time.Time, err error) {
	datetime = strings.TrimSpace(datetime)
	if datetime == "" {
		return nil, nil, nil
	}

	if !strings.Contains(datetime, "/") {
		t, err := time.Parse(time.RFC3339, datetime)
		if err != nil {
			return nil, nil, catalog.Wrap(catalog.KindInvalidParameter, err, "invalid datetime")
		}
		t = t.UTC()
		return &t, &t, nil
	}

	parts := strings.Split(datetime, "/")
	if len(parts) != 2 {
		return nil, nil, catalog.Errorf(catalog.KindInvalidParameter,
			"datetime interval must be 'start/end', got %q", datetime)
	}

	if s := strings.TrimSpace(parts[0]); s != "" && s != ".." {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, nil, catalog.Wrap(catalog.KindInvalidParameter, err, "invalid start datetime")
		}
		t = t.UTC()
		start = &t
	}
	if s := strings.TrimSpace(parts[1]); s != "" && s != ".." {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, nil, catalog.Wrap(catalog.KindInvalidParameter, err, "invalid end datetime")
		}
		t = t.UTC()
		end = &t
	}

	if start != nil && end != nil && start.After(*end) {
		return nil, nil, catalog.Errorf(catalog.KindInvalidParameter,
			"datetime start %s is after end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	return start, end, nil
}

// IntervalOverlaps reports whether the item interval [itemStart, itemEnd]
// overlaps the query interval: itemStart <= queryEnd AND itemEnd >= queryStart.
// Nil query ends are unbounded. An instant-valued item has itemStart equal to
// itemEnd, which makes an instant query match iff it falls inside the item
// interval.
func IntervalOverlaps(itemStart, itemEnd time.Time, queryStart, queryEnd *time.Time) bool {
	if queryEnd != nil && itemStart.After(*queryEnd) {
		return false
	}
	if queryStart != nil && itemEnd.Before(*queryStart) {
		return false
	}
	return true
}
