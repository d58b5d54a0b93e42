package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"ShopPilot/pkg/bootstrap"
	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/messaging"
	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// verify_system wires the configured backends and runs one pass of every pipeline against them.
// STORE_BACKEND=memory keeps it off shared databases.
func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Log.Fatal("Failed to load config", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.Named("verify")
	log.Info("Starting system verification", zap.String("store", cfg.Store.Backend), zap.String("quota", cfg.Quota.Backend))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to wire application", zap.Error(err))
	}
	defer app.Close()

	orgID := "verify-" + time.Now().UTC().Format("20060102150405")
	failed := 0
	for _, check := range []struct {
		name string
		run  func(context.Context, *bootstrap.App, string) error
	}{
		{"health", testHealth},
		{"vault", testVault},
		{"rule engine", testRuleEngine},
		{"fulfillment preview", testFulfillmentPreview},
		{"bus", testBus},
	} {
		start := time.Now()
		if err := check.run(ctx, app, orgID); err != nil {
			failed++
			log.Error("Check failed", zap.String("check", check.name), zap.Error(err))
			continue
		}
		log.Info("Check passed", zap.String("check", check.name), zap.Duration("took", time.Since(start)))
	}

	if failed > 0 {
		log.Error("System verification failed", zap.Int("failed", failed))
		os.Exit(1)
	}
	log.Info("System verification passed")
}

func testHealth(ctx context.Context, app *bootstrap.App, _ string) error {
	app.Monitor.CheckAll(ctx)
	for _, s := range app.Monitor.GetAllStatus() {
		logger.Log.Info("Component", zap.String("component", s.Component), zap.String("status", s.Status), zap.String("message", s.Message))
	}
	return nil
}

func testVault(ctx context.Context, app *bootstrap.App, orgID string) error {
	ref, err := app.Vault.Seal(ctx, orgID, model.Credentials{AccountEmail: "verify@example.com", Password: "verify"})
	if err != nil {
		return err
	}
	_, err = app.Vault.Open(ctx, ref)
	return err
}

func testRuleEngine(ctx context.Context, app *bootstrap.App, orgID string) error {
	var params model.CreateTaskParams
	if err := json.Unmarshal([]byte(`{"title": "Restock {{sku}}"}`), &params); err != nil {
		return err
	}
	rule := &model.AutomationRule{
		OrgID:       orgID,
		Name:        "verify low stock",
		Status:      model.RuleStatusActive,
		TriggerType: model.TriggerInventoryBelowThreshold,
		Conditions: datatypes.JSONSlice[model.Condition]{
			{Field: "available", Operator: model.OpLT, Value: model.IntLiteral(5)},
		},
		Actions: datatypes.JSONSlice[model.Action]{model.NewAction("restock", &params)},
	}
	if err := app.Stores.Rules.CreateRule(ctx, rule); err != nil {
		return err
	}
	defer app.Stores.Rules.DeleteRule(ctx, orgID, rule.ID)

	execs, err := app.Engine.OnEvent(ctx, model.NewEvent(orgID, model.TriggerInventoryBelowThreshold, map[string]interface{}{
		"sku":       "VERIFY-1",
		"available": 2,
		"threshold": 5,
	}))
	if err != nil {
		return err
	}
	for _, e := range execs {
		logger.Log.Info("Execution", zap.String("rule_id", e.RuleID), zap.String("status", string(e.Status)))
	}
	return nil
}

func testFulfillmentPreview(ctx context.Context, app *bootstrap.App, orgID string) error {
	if app.DB != nil {
		logger.Log.Info("Skipping fulfillment preview against the postgres store")
		return nil
	}
	orders, ok := app.Stores.Orders.(interface {
		SaveOrder(ctx context.Context, order *model.Order) error
	})
	if !ok {
		return nil
	}
	if err := orders.SaveOrder(ctx, &model.Order{
		ID:          "verify-order",
		OrgID:       orgID,
		ChannelID:   "verify",
		TotalAmount: decimal.NewFromInt(3000),
		Currency:    "JPY",
		LineItems: datatypes.JSONSlice[model.LineItem]{
			{ID: "li-1", SKU: "VERIFY-1", Quantity: 1, UnitPrice: decimal.NewFromInt(3000), Currency: "JPY"},
		},
	}); err != nil {
		return err
	}

	res, err := app.Service.Preview(ctx, orgID, "verify-order", "li-1")
	if err != nil {
		return err
	}
	logger.Log.Info("Eligibility", zap.Bool("eligible", res.Eligible), zap.String("reason_code", string(res.ReasonCode)))
	return nil
}

func testBus(ctx context.Context, app *bootstrap.App, orgID string) error {
	if app.NATS == nil {
		logger.Log.Info("NATS disabled, skipping bus check")
		return nil
	}
	return messaging.NewEventPublisher(app.NATS).PublishEvent(ctx, model.NewEvent(orgID, model.TriggerDailySchedule, map[string]interface{}{
		"date": time.Now().UTC().Format("2006-01-02"),
	}))
}
