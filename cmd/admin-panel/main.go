// Command admin-panel is the store manager's terminal panel.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ms-delivery/internal/admin"
	"ms-delivery/internal/client"
	"ms-delivery/internal/config"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/syncloop"
)

var (
	title = color.New(color.FgCyan, color.Bold)
	late  = color.New(color.FgRed, color.Bold)
	faint = color.New(color.Faint)
	errc  = color.New(color.FgRed)
)

func main() {
	devID := flag.String("dev-id", "", "mint a dev token for this admin id")
	flag.Parse()

	log := logger.NewConsoleLogger()
	log.SetLevel(logger.WARN)
	_ = godotenv.Load()
	cfg := config.Load()

	if *devID != "" {
		if err := client.DevLogin(cfg, *devID, "Gerente", models.RoleAdmin); err != nil {
			log.Fatal("ADMIN", err.Error())
		}
	}
	backend, err := client.Connect(cfg, log)
	if err != nil {
		log.Fatal("ADMIN", err.Error())
	}
	if err := client.RequireRole(backend, models.RoleAdmin); err != nil {
		log.Fatal("ADMIN", err.Error())
	}

	panel := admin.NewPanel(backend, cfg.Sync.AdminInterval, log)
	panel.Loop.OnSnapshot(func(syncloop.Snapshot) { render(os.Stdout, panel, time.Now()) })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return panel.Run(gctx) })
	go func() {
		prompt(gctx, panel, os.Stdin, os.Stdout)
		cancel()
	}()

	if err := g.Wait(); err != nil {
		log.Error("ADMIN", err.Error())
	}
}

func render(w io.Writer, panel *admin.Panel, now time.Time) {
	info := panel.StoreInfo()
	lateIDs := map[string]bool{}
	for _, o := range panel.LateOrders(now) {
		lateIDs[o.ID] = true
	}

	fmt.Fprintln(w)
	title.Fprintf(w, "== Painel ==  preparo máx %d min  promo: %s\n", info.MaxPrepMinutes, info.DailyPromo)
	counts := panel.StatusCounts()
	parts := make([]string, 0, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	faint.Fprintln(w, strings.Join(parts, "  "))

	for i, o := range panel.Orders() {
		mode := "retirada"
		if o.IsDelivery {
			mode = "entrega"
		}
		line := fmt.Sprintf("[%d] %s  %-16s %-9s %-15s R$ %7.2f  %s", i+1, short(o.ID), o.CustomerName, mode, o.Status, o.Total, o.CreatedAt.Local().Format("15:04"))
		if o.CourierName != "" {
			line += "  motoboy " + o.CourierName
		}
		if lateIDs[o.ID] {
			late.Fprintln(w, line+"  ATRASADO")
		} else {
			fmt.Fprintln(w, line)
		}
	}
	faint.Fprintln(w, "n <n> avançar | x <n> cancelar | p <min> [promo] | q sair")
}

func prompt(ctx context.Context, panel *admin.Panel, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "q":
			return
		case "n", "x":
			var id string
			if id, err = pick(panel, fields); err == nil {
				if fields[0] == "n" {
					_, err = panel.Advance(ctx, id)
				} else {
					_, err = panel.Cancel(ctx, id)
				}
			}
		case "p":
			err = updateInfo(ctx, panel, fields)
		default:
			err = fmt.Errorf("comando desconhecido %q", fields[0])
		}
		if err != nil {
			errc.Fprintln(out, err)
		}
		render(out, panel, time.Now())
	}
}

func pick(panel *admin.Panel, fields []string) (string, error) {
	if len(fields) < 2 {
		return "", errors.New("informe o número do pedido")
	}
	orders := panel.Orders()
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(orders) {
		return "", fmt.Errorf("pedido %q não está na lista", fields[1])
	}
	return orders[n-1].ID, nil
}

func updateInfo(ctx context.Context, panel *admin.Panel, fields []string) error {
	if len(fields) < 2 {
		return errors.New("uso: p <minutos> [promo]")
	}
	minutes, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("minutos inválidos %q", fields[1])
	}
	promo := panel.StoreInfo().DailyPromo
	if len(fields) > 2 {
		promo = strings.Join(fields[2:], " ")
	}
	_, err = panel.UpdateStoreInfo(ctx, models.StoreInfoUpdate{MaxPrepMinutes: minutes, DailyPromo: promo})
	return err
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
