// Command migrate applies the SQL migrations and can seed demo orders.
//
//	migrate up | down | version | to <n> | seed
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ms-delivery/internal/config"
	"ms-delivery/internal/database"
	"ms-delivery/internal/database/migrations"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order"
	"ms-delivery/internal/order/db"
)

func main() {
	log := logger.NewConsoleLogger()
	_ = godotenv.Load()
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|version|to <n>|seed")
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, log, os.Args[1:]); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	bunDB, err := database.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.OptionsFrom(cfg.Database), log)
	defer runner.Close()

	switch args[0] {
	case "up":
		return runner.Run()
	case "down":
		return runner.Down()
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		log.Info("MIGRATE", fmt.Sprintf("version %d (dirty=%t)", version, dirty))
		return nil
	case "to":
		if len(args) < 2 {
			return fmt.Errorf("to needs a version")
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("bad version %q: %w", args[1], err)
		}
		return runner.To(uint(v))
	case "seed":
		if err := runner.Run(); err != nil {
			return err
		}
		return seed(ctx, order.NewOrderService(db.New(bunDB), nil, log, cfg.Order.DeliveryFee), log)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// seed places a handful of demo orders and moves them along the kitchen flow.
func seed(ctx context.Context, svc *order.OrderService, log *logger.Logger) error {
	admin := models.Actor{ID: "seed", Name: "Seed", Role: models.RoleAdmin}
	address := &models.Address{Street: "Rua das Flores", Number: "123", Neighborhood: "Centro", City: "São Paulo"}

	demo := []struct {
		name     string
		delivery bool
		steps    []models.OrderStatus
	}{
		{"Maria Silva", true, nil},
		{"João Santos", true, []models.OrderStatus{models.StatusPreparing}},
		{"Ana Oliveira", true, []models.OrderStatus{models.StatusPreparing, models.StatusReady, models.StatusAwaitingPickup}},
		{"Pedro Costa", false, []models.OrderStatus{models.StatusPreparing, models.StatusReady}},
	}

	for _, d := range demo {
		req := models.PlaceOrderRequest{
			CustomerName:  d.name,
			CustomerPhone: "11987654321",
			Items: []models.OrderItem{
				{MenuItemID: "x-burger", Name: "X-Burger", UnitPrice: 25.5, Quantity: 2},
				{MenuItemID: "refri", Name: "Refrigerante", UnitPrice: 6, Quantity: 1},
			},
			PaymentMethod: models.PaymentPix,
		}
		if d.delivery {
			req.Address = address
		}

		placed, err := svc.PlaceOrder(ctx, req)
		if err != nil {
			return fmt.Errorf("seed %s: %w", d.name, err)
		}
		for _, st := range d.steps {
			if _, err := svc.SetStatus(ctx, admin, placed.ID, st); err != nil {
				return fmt.Errorf("seed %s -> %s: %w", d.name, st, err)
			}
		}
		log.LogOrder("SEED", placed.ID, fmt.Sprintf("%s (%d steps)", d.name, len(d.steps)))
	}
	return nil
}
