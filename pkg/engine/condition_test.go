package engine

import (
	"encoding/json"
	"testing"
	"time"

	"ShopPilot/pkg/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cond(field string, op model.Operator, v model.Literal) model.Condition {
	return model.Condition{Field: field, Operator: op, Value: v}
}

func TestEvaluateConditionTable(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fields := map[string]interface{}{
		"available":        float64(7),
		"order.total":      json.Number("1250.50"),
		"order.item_count": 3,
		"order.currency":   "JPY",
		"price":            decimal.RequireFromString("99.90"),
		"sku":              "SKU-RED-42",
		"rating_text":      "10",
		"order.tags":       []interface{}{"vip", "gift"},
		"order.created_at": created.Format(time.RFC3339),
		"scheduled_at":     created,
		"order.is_first":   true,
	}

	tests := []struct {
		name string
		c    model.Condition
		want bool
	}{
		{"number LT", cond("available", model.OpLT, model.IntLiteral(10)), true},
		{"number GT false", cond("available", model.OpGT, model.IntLiteral(10)), false},
		{"number EQ int vs float", cond("available", model.OpEQ, model.IntLiteral(7)), true},
		{"json number GTE", cond("order.total", model.OpGTE, model.NumberLiteral(decimal.RequireFromString("1250.5"))), true},
		{"int field NEQ", cond("order.item_count", model.OpNEQ, model.IntLiteral(3)), false},
		{"decimal field LTE", cond("price", model.OpLTE, model.IntLiteral(100)), true},
		{"numeric string field vs number", cond("rating_text", model.OpGT, model.IntLiteral(9)), true},
		{"number field vs numeric string literal", cond("available", model.OpLT, model.StringLiteral("10")), true},
		{"numeric strings compare numerically", cond("rating_text", model.OpGT, model.StringLiteral("9")), true},
		{"string EQ", cond("order.currency", model.OpEQ, model.StringLiteral("JPY")), true},
		{"string lexical LT", cond("order.currency", model.OpLT, model.StringLiteral("USD")), true},
		{"substring CONTAINS", cond("sku", model.OpContains, model.StringLiteral("RED")), true},
		{"substring CONTAINS miss", cond("sku", model.OpContains, model.StringLiteral("BLUE")), false},
		{"list membership", cond("order.tags", model.OpContains, model.StringLiteral("vip")), true},
		{"list membership miss", cond("order.tags", model.OpContains, model.StringLiteral("wholesale")), false},
		{"list EQ as set", cond("order.tags", model.OpEQ, model.ListLiteral("gift", "vip")), true},
		{"list CONTAINS all", cond("order.tags", model.OpContains, model.ListLiteral("gift", "vip")), true},
		{"time string GT", cond("order.created_at", model.OpGT, model.StringLiteral("2026-02-28T23:59:59Z")), true},
		{"time value LT", cond("scheduled_at", model.OpLT, model.StringLiteral("2026-03-01T09:00:00Z")), false},
		{"time across zones EQ", cond("scheduled_at", model.OpEQ, model.StringLiteral("2026-03-01T19:00:00+09:00")), true},
		{"bool EQ", cond("order.is_first", model.OpEQ, model.BoolLiteral(true)), true},
		{"bool NEQ", cond("order.is_first", model.OpNEQ, model.BoolLiteral(true)), false},
		{"bool ordering is false", cond("order.is_first", model.OpGT, model.BoolLiteral(false)), false},
		{"type mismatch string field vs number", cond("sku", model.OpEQ, model.IntLiteral(1)), false},
		{"type mismatch number field vs bool", cond("available", model.OpEQ, model.BoolLiteral(true)), false},
		{"number CONTAINS is false", cond("available", model.OpContains, model.IntLiteral(7)), false},
		{"null literal never matches", cond("sku", model.OpEQ, model.Literal{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.c, fields))
		})
	}
}

func TestEvaluateConditionNumericLookingStrings(t *testing.T) {
	fields := map[string]interface{}{
		"sku":          "12345",
		"order.number": "1001",
		"channel":      "2026-03-01T10:00:00Z",
		"code":         "12345",
	}

	tests := []struct {
		name string
		c    model.Condition
		want bool
	}{
		{"sku NEQ non numeric literal", cond("sku", model.OpNEQ, model.StringLiteral("ABC-1")), true},
		{"sku EQ non numeric literal", cond("sku", model.OpEQ, model.StringLiteral("ABC-1")), false},
		{"sku leading zero is a different sku", cond("sku", model.OpEQ, model.StringLiteral("012345")), false},
		{"sku EQ same text", cond("sku", model.OpEQ, model.StringLiteral("12345")), true},
		{"order number is ordered lexically", cond("order.number", model.OpLT, model.StringLiteral("999")), true},
		{"time looking value NEQ plain text", cond("channel", model.OpNEQ, model.StringLiteral("shopee")), true},
		{"time looking value LT plain text", cond("channel", model.OpLT, model.StringLiteral("shopee")), true},
		{"undeclared field NEQ non numeric literal", cond("code", model.OpNEQ, model.StringLiteral("X")), true},
		{"undeclared field numeric on both sides", cond("code", model.OpEQ, model.StringLiteral("012345")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.c, fields))
		})
	}
}

func TestEvaluateConditionsIsConjunction(t *testing.T) {
	fields := map[string]interface{}{"available": 7, "sku": "A-1"}

	assert.True(t, EvaluateConditions([]model.Condition{
		cond("available", model.OpLT, model.IntLiteral(10)),
		cond("sku", model.OpEQ, model.StringLiteral("A-1")),
	}, fields))

	assert.False(t, EvaluateConditions([]model.Condition{
		cond("available", model.OpLT, model.IntLiteral(10)),
		cond("sku", model.OpEQ, model.StringLiteral("B-2")),
	}, fields))
}

func TestNewEventContextFlattensPayload(t *testing.T) {
	ev := model.NewEvent("org-1", model.TriggerOrderCreated, map[string]interface{}{
		"order": map[string]interface{}{
			"id":    "o-1",
			"total": 1200.0,
			"customer": map[string]interface{}{
				"email": "a@example.com",
			},
		},
	})

	evctx := NewEventContext(ev)
	assert.Equal(t, "o-1", evctx.Fields["order.id"])
	assert.Equal(t, 1200.0, evctx.Fields["order.total"])
	assert.Equal(t, "a@example.com", evctx.Fields["order.customer.email"])
	assert.Equal(t, "org-1", evctx.Fields["org_id"])
	assert.Equal(t, "ORDER_CREATED", evctx.Fields["event_type"])
	assert.Equal(t, "1200", evctx.Lookup("order.total"))
	assert.Equal(t, "", evctx.Lookup("order.missing"))
}

func TestConditionLiteralJSON(t *testing.T) {
	var conds []model.Condition
	require.NoError(t, json.Unmarshal([]byte(`[
		{"field":"available","operator":"LT","value":10},
		{"field":"sku","operator":"EQ","value":"A-1"},
		{"field":"order.is_first_order","operator":"EQ","value":true},
		{"field":"order.tags","operator":"EQ","value":["a","b"]}
	]`), &conds))

	require.Len(t, conds, 4)
	assert.Equal(t, model.LiteralNumber, conds[0].Value.Kind())
	assert.True(t, conds[0].Value.Number().Equal(decimal.NewFromInt(10)))
	assert.Equal(t, model.LiteralString, conds[1].Value.Kind())
	assert.Equal(t, model.LiteralBool, conds[2].Value.Kind())
	assert.Equal(t, []string{"a", "b"}, conds[3].Value.List())

	out, err := json.Marshal(conds[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"available","operator":"LT","value":10}`, string(out))

	var bad model.Condition
	assert.Error(t, json.Unmarshal([]byte(`{"field":"x","operator":"EQ","value":{"a":1}}`), &bad))
}

func TestConditionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	operators := gen.OneConstOf(model.OpEQ, model.OpNEQ, model.OpGT, model.OpGTE, model.OpLT, model.OpLTE, model.OpContains)

	properties.Property("empty condition list always matches", prop.ForAll(
		func(keys []string, n int64) bool {
			fields := make(map[string]interface{}, len(keys))
			for _, k := range keys {
				fields[k] = n
			}
			return EvaluateConditions(nil, fields) && EvaluateConditions([]model.Condition{}, fields)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Int64(),
	))

	properties.Property("a missing field never matches", prop.ForAll(
		func(field string, op model.Operator, n int64, s string) bool {
			fields := map[string]interface{}{"present": n}
			missing := "missing." + field
			for _, lit := range []model.Literal{model.IntLiteral(n), model.StringLiteral(s), model.BoolLiteral(true), model.ListLiteral(s)} {
				if EvaluateCondition(cond(missing, op, lit), fields) {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		operators,
		gen.Int64(),
		gen.AlphaString(),
	))

	properties.Property("EQ and NEQ on numbers are complementary", prop.ForAll(
		func(a, b int64) bool {
			fields := map[string]interface{}{"n": a}
			eq := EvaluateCondition(cond("n", model.OpEQ, model.IntLiteral(b)), fields)
			neq := EvaluateCondition(cond("n", model.OpNEQ, model.IntLiteral(b)), fields)
			return eq != neq
		},
		gen.Int64Range(-1000, 1000),
		gen.Int64Range(-1000, 1000),
	))

	properties.Property("EQ and NEQ on sku text are complementary", prop.ForAll(
		func(a, b string) bool {
			fields := map[string]interface{}{"sku": a}
			eq := EvaluateCondition(cond("sku", model.OpEQ, model.StringLiteral(b)), fields)
			neq := EvaluateCondition(cond("sku", model.OpNEQ, model.StringLiteral(b)), fields)
			return eq != neq && eq == (a == b)
		},
		gen.OneGenOf(gen.AlphaString(), gen.NumString()),
		gen.OneGenOf(gen.AlphaString(), gen.NumString()),
	))

	properties.TestingRun(t)
}
