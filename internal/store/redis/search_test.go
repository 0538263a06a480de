package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/query"
)

func buildPlan(t *testing.T, in query.PlanInput) *query.Plan {
	t.Helper()
	planner := query.NewPlanner(config.DefaultQueryables(), 10, 10000)
	plan, err := planner.Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return plan
}

func TestCompilePlanEmpty(t *testing.T) {
	plan := buildPlan(t, query.PlanInput{})
	if got := compilePlan(plan, nil); got != "*" {
		t.Errorf("compilePlan() = %q, want *", got)
	}
}

func TestCompilePlanScopes(t *testing.T) {
	plan := buildPlan(t, query.PlanInput{
		Collections: []string{"sentinel-2", "landsat-8"},
		IDs:         []string{"item-1"},
	})
	got := compilePlan(plan, nil)
	if !strings.Contains(got, `@collection:{sentinel\-2 | landsat\-8}`) {
		t.Errorf("compilePlan() = %q, missing collection tag clause", got)
	}
	if !strings.Contains(got, `@id:{item\-1}`) {
		t.Errorf("compilePlan() = %q, missing id tag clause", got)
	}
}

func TestCompilePlanBBox(t *testing.T) {
	plan := buildPlan(t, query.PlanInput{BBox: []float64{10, 40, 20, 50}})
	got := compilePlan(plan, nil)
	for _, clause := range []string{
		"@west:[-inf 20]",
		"@east:[10 +inf]",
		"@south:[-inf 50]",
		"@north:[40 +inf]",
	} {
		if !strings.Contains(got, clause) {
			t.Errorf("compilePlan() = %q, missing %q", got, clause)
		}
	}
}

func TestCompilePlanAntimeridianBBox(t *testing.T) {
	plan := buildPlan(t, query.PlanInput{BBox: []float64{170, -10, -170, 10}})
	got := compilePlan(plan, nil)
	if !strings.Contains(got, " | ") {
		t.Errorf("compilePlan() = %q, want an OR of the two split boxes", got)
	}
	if !strings.Contains(got, "@east:[170 +inf]") || !strings.Contains(got, "@west:[-inf -170]") {
		t.Errorf("compilePlan() = %q, missing hemisphere bounds", got)
	}
}

func TestCompilePlanTemporal(t *testing.T) {
	cases := []struct {
		name     string
		datetime string
		want     []string
		absent   []string
	}{
		{
			name:     "closed interval",
			datetime: "2024-01-01T00:00:00Z/2024-06-01T00:00:00Z",
			want:     []string{"@start:[-inf 1717200000]", "@end:[1704067200 +inf]"},
		},
		{
			name:     "open start",
			datetime: "../2024-06-01T00:00:00Z",
			want:     []string{"@start:[-inf 1717200000]"},
			absent:   []string{"@end:"},
		},
		{
			name:     "open end",
			datetime: "2024-01-01T00:00:00Z/..",
			want:     []string{"@end:[1704067200 +inf]"},
			absent:   []string{"@start:"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := buildPlan(t, query.PlanInput{Datetime: tc.datetime})
			got := compilePlan(plan, nil)
			for _, clause := range tc.want {
				if !strings.Contains(got, clause) {
					t.Errorf("compilePlan(%s) = %q, missing %q", tc.datetime, got, clause)
				}
			}
			for _, clause := range tc.absent {
				if strings.Contains(got, clause) {
					t.Errorf("compilePlan(%s) = %q, should not contain %q", tc.datetime, got, clause)
				}
			}
		})
	}
}

func TestCompilePlanPropertyFilter(t *testing.T) {
	plan := buildPlan(t, query.PlanInput{
		Filter: map[string]any{
			"op": "and",
			"args": []any{
				map[string]any{
					"op": "<=",
					"args": []any{
						map[string]any{"property": "eo:cloud_cover"},
						20.5,
					},
				},
				map[string]any{
					"op": "=",
					"args": []any{
						map[string]any{"property": "platform"},
						"sentinel-2a",
					},
				},
			},
		},
	})
	got := compilePlan(plan, nil)
	if !strings.Contains(got, "@eo_cloud_cover:[-inf 20.5]") {
		t.Errorf("compilePlan() = %q, missing sanitized numeric clause", got)
	}
	if !strings.Contains(got, `@platform:{sentinel\-2a}`) {
		t.Errorf("compilePlan() = %q, missing tag clause", got)
	}
}

func TestCompileFragmentNegation(t *testing.T) {
	registry := config.DefaultQueryables()
	gsd := registry.Get("gsd")
	platform := registry.Get("platform")

	t.Run("exact inner clause negates", func(t *testing.T) {
		f := query.Not(&query.Fragment{
			Kind: query.KindCompare, Property: gsd, Op: query.OpEq, Value: 10.0,
		})
		expr, exact := compileFragment(f)
		if expr != "(-@gsd:[10 10])" || !exact {
			t.Errorf("compileFragment() = %q, %v", expr, exact)
		}
	})

	t.Run("inexact inner clause widens to no constraint", func(t *testing.T) {
		// like over-selects at the index, so its negation must not prune.
		f := query.Not(&query.Fragment{
			Kind: query.KindCompare, Property: platform, Op: query.OpLike, Value: "sentinel%",
		})
		expr, _ := compileFragment(f)
		if expr != "" {
			t.Errorf("compileFragment(not like) = %q, want no constraint", expr)
		}
	})

	t.Run("or with unprunable branch widens", func(t *testing.T) {
		f := query.Or(
			&query.Fragment{Kind: query.KindCompare, Property: gsd, Op: query.OpEq, Value: 10.0},
			&query.Fragment{Kind: query.KindCompare, Property: platform, Op: query.OpLike, Value: "s%"},
		)
		expr, _ := compileFragment(f)
		if expr != "" {
			t.Errorf("compileFragment(or) = %q, want no constraint", expr)
		}
	})
}

func TestSeekBound(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("descending datetime", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{})
		got := seekBound(plan, []any{base.UnixNano(), "item-5"})
		if got != "@start:[-inf 1709251200]" {
			t.Errorf("seekBound() = %q", got)
		}
	})

	t.Run("ascending numeric", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{
			Sort: []query.SortSpec{{Field: "gsd"}},
		})
		got := seekBound(plan, []any{float64(30), "item-5"})
		if got != "@gsd:[30 +inf]" {
			t.Errorf("seekBound() = %q", got)
		}
	})

	t.Run("nil primary yields no bound", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{})
		if got := seekBound(plan, []any{nil, "item-5"}); got != "" {
			t.Errorf("seekBound() = %q, want empty", got)
		}
	})
}

func TestIndexSchema(t *testing.T) {
	args := indexSchema(config.DefaultQueryables())
	schema := strings.Join(args, " ")

	for _, want := range []string{
		"$.idx.start AS start NUMERIC SORTABLE",
		"$.idx.west AS west NUMERIC",
		"$.idx.platform AS platform TAG",
		"$.idx.eo_cloud_cover AS eo_cloud_cover NUMERIC SORTABLE",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("indexSchema() missing %q in %q", want, schema)
		}
	}
	if strings.Contains(schema, "$.idx.geometry") {
		t.Error("indexSchema() should not index geometry directly")
	}
	if strings.Contains(schema, "AS datetime") {
		t.Error("indexSchema() should fold datetime into start/end")
	}
}
