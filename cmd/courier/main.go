// Command courier is the courier's terminal app: it rings when a delivery is
// waiting and lets the courier collect, arrive and deliver.
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

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ms-delivery/internal/alert"
	"ms-delivery/internal/client"
	"ms-delivery/internal/config"
	"ms-delivery/internal/courier"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/syncloop"
)

var (
	title   = color.New(color.FgCyan, color.Bold)
	waiting = color.New(color.FgYellow)
	mine    = color.New(color.FgGreen, color.Bold)
	faint   = color.New(color.Faint)
)

func main() {
	devID := flag.String("dev-id", "", "mint a dev token for this courier id")
	devName := flag.String("dev-name", "", "display name for -dev-id")
	flag.Parse()

	log := logger.NewConsoleLogger()
	log.SetLevel(logger.WARN)
	_ = godotenv.Load()
	cfg := config.Load()

	if *devID != "" {
		if err := client.DevLogin(cfg, *devID, *devName, models.RoleCourier); err != nil {
			log.Fatal("COURIER", err.Error())
		}
	}
	backend, err := client.Connect(cfg, log)
	if err != nil {
		log.Fatal("COURIER", err.Error())
	}
	if err := client.RequireRole(backend, models.RoleCourier); err != nil {
		log.Fatal("COURIER", err.Error())
	}

	alarm := alert.NewAlarm(
		alert.NewTerminalSound(os.Stdout, cfg.Alarm.RepeatInterval),
		alert.TerminalVibrator{Out: os.Stdout},
		cfg.Alarm.VibrationPattern,
		log,
	)
	view := courier.NewView(backend, alert.NewTrigger(alarm), cfg.Sync.CourierInterval, log)
	view.Loop.OnSnapshot(func(syncloop.Snapshot) { render(os.Stdout, view) })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return view.Run(gctx) })

	// stdin cannot be interrupted, so the prompt lives outside the group
	go func() {
		prompt(gctx, view, os.Stdin, os.Stdout)
		cancel()
	}()

	if err := g.Wait(); err != nil {
		log.Error("COURIER", err.Error())
	}
	alarm.Stop()
}

func render(w io.Writer, view *courier.View) {
	fmt.Fprintln(w)
	title.Fprintln(w, "== Entregas ==")
	if cur := view.CurrentDelivery(); cur != nil {
		mine.Fprintf(w, "Em rota: %s  %s\n", short(cur.ID), cur.CustomerName)
		fmt.Fprintf(w, "  %s  tel %s  R$ %.2f (%s)\n", cur.DeliveryAddress, cur.CustomerPhone, cur.Total, cur.PaymentMethod)
		if cur.CourierArrived {
			fmt.Fprintln(w, "  no local do cliente")
		}
	}

	available := view.AvailableOrders()
	if len(available) == 0 {
		faint.Fprintln(w, "Nenhum pedido aguardando entregador")
	}
	for i, o := range available {
		waiting.Fprintf(w, "[%d] %s  %s  %s  R$ %.2f\n", i+1, short(o.ID), o.CustomerName, o.DeliveryAddress, o.Total)
	}
	faint.Fprintln(w, "c <n> coletar | a chegou | d entregue | s silenciar | q sair")
}

func prompt(ctx context.Context, view *courier.View, in io.Reader, out io.Writer) {
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
		case "s":
			view.SilenceAlarm()
		case "c":
			err = collect(ctx, view, fields, out)
		case "a", "d":
			cur := view.CurrentDelivery()
			if cur == nil {
				err = errors.New("nenhuma entrega em andamento")
			} else if fields[0] == "a" {
				err = view.MarkArrived(ctx, cur.ID)
			} else {
				err = view.CompleteDelivery(ctx, cur.ID)
			}
		default:
			err = fmt.Errorf("comando desconhecido %q", fields[0])
		}
		if err != nil {
			color.New(color.FgRed).Fprintln(out, err)
		}
		render(out, view)
	}
}

func collect(ctx context.Context, view *courier.View, fields []string, out io.Writer) error {
	available := view.AvailableOrders()
	if len(fields) < 2 {
		return errors.New("uso: c <n>")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(available) {
		return fmt.Errorf("pedido %q não está na lista", fields[1])
	}

	won, err := view.Collect(ctx, available[n-1].ID)
	if err != nil {
		return err
	}
	if !won {
		waiting.Fprintln(out, "Outro entregador pegou este pedido")
	}
	return nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
