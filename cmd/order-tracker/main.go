// Command order-tracker follows one order until it is delivered or
// cancelled. With -place it first submits a demo checkout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"ms-delivery/internal/client"
	"ms-delivery/internal/config"
	"ms-delivery/internal/customer"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

var statusText = map[models.OrderStatus]string{
	models.StatusPending:        "Pedido recebido",
	models.StatusPreparing:      "Em preparo",
	models.StatusReady:          "Pronto",
	models.StatusAwaitingPickup: "Aguardando entregador",
	models.StatusInTransit:      "Saiu para entrega",
	models.StatusDelivered:      "Entregue",
	models.StatusCancelled:      "Cancelado",
}

func main() {
	place := flag.Bool("place", false, "place a demo delivery order and track it")
	devID := flag.String("dev-id", "", "mint a dev token for this customer id")
	flag.Parse()

	log := logger.NewConsoleLogger()
	log.SetLevel(logger.WARN)
	_ = godotenv.Load()
	cfg := config.Load()

	if *devID != "" {
		if err := client.DevLogin(cfg, *devID, "", models.RoleCustomer); err != nil {
			log.Fatal("TRACKER", err.Error())
		}
	}
	backend, err := client.Connect(cfg, log)
	if err != nil {
		log.Fatal("TRACKER", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buyer := customer.NewClient(backend, cfg.Sync.OrderInterval, log)
	orderID := flag.Arg(0)
	if *place {
		orderID, err = buyer.PlaceOrder(ctx, demoOrder())
		if err != nil {
			log.Fatal("TRACKER", err.Error())
		}
		fmt.Printf("Pedido %s criado\n", orderID)
	}
	if orderID == "" {
		fmt.Fprintln(os.Stderr, "usage: order-tracker [-place] <order-id>")
		os.Exit(2)
	}

	updates, err := buyer.WatchStatus(ctx, orderID)
	if err != nil {
		log.Fatal("TRACKER", err.Error())
	}
	for o := range updates {
		c := color.New(color.FgCyan)
		switch o.Status {
		case models.StatusDelivered:
			c = color.New(color.FgGreen, color.Bold)
		case models.StatusCancelled:
			c = color.New(color.FgRed, color.Bold)
		}
		line := statusText[o.Status]
		if o.CourierName != "" && o.Status == models.StatusInTransit {
			line += " com " + o.CourierName
		}
		if o.CourierArrived {
			line += " (entregador na porta)"
		}
		c.Println(line)
	}
}

func demoOrder() models.PlaceOrderRequest {
	return models.PlaceOrderRequest{
		CustomerName:  "Cliente Demo",
		CustomerPhone: "11987654321",
		Items: []models.OrderItem{
			{MenuItemID: "x-bacon", Name: "X-Bacon", UnitPrice: 29.9, Quantity: 1},
			{MenuItemID: "batata", Name: "Batata Frita", UnitPrice: 12, Quantity: 1},
		},
		Address:       &models.Address{Street: "Rua das Flores", Number: "123", Neighborhood: "Centro", City: "São Paulo"},
		PaymentMethod: models.PaymentPix,
	}
}
