// Package customer places orders and follows a single order until it ends.
package customer

import (
	"context"
	"fmt"
	"time"

	"ms-delivery/internal/client"
	"ms-delivery/internal/lifecycle"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/syncloop"
)

type Client struct {
	Backend  client.Backend
	Interval time.Duration
	Logger   *logger.Logger
}

func NewClient(backend client.Backend, interval time.Duration, log *logger.Logger) *Client {
	return &Client{Backend: backend, Interval: interval, Logger: log}
}

// PlaceOrder submits the checkout and returns the new order's id.
func (c *Client) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (string, error) {
	placed, err := c.Backend.PlaceOrder(ctx, req)
	if err != nil {
		return "", err
	}
	c.Logger.LogOrder("PLACED", placed.ID, fmt.Sprintf("total %.2f", placed.Total))
	return placed.ID, nil
}

// WatchStatus emits the order every time it changes, starting with its
// current state. The channel closes after a terminal status or when ctx is
// done.
func (c *Client) WatchStatus(ctx context.Context, orderID string) (<-chan models.Order, error) {
	if _, err := c.Backend.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	loop := syncloop.New("tracker", func(ctx context.Context) ([]models.Order, error) {
		o, err := c.Backend.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return []models.Order{*o}, nil
	}, c.Backend, orderID, c.Interval, c.Logger)

	// latest keeps only the newest state; the loop never waits on the reader.
	latest := make(chan models.Order, 1)
	loop.OnSnapshot(func(s syncloop.Snapshot) {
		if len(s.Orders) != 1 {
			return
		}
		select {
		case <-latest:
		default:
		}
		latest <- s.Orders[0]
	})

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()

	out := make(chan models.Order)
	go func() {
		defer close(out)
		defer func() {
			cancel()
			<-loopDone
		}()

		var last *models.Order
		for {
			select {
			case <-ctx.Done():
				return
			case o := <-latest:
				if last != nil && !changed(*last, o) {
					continue
				}
				select {
				case out <- o:
				case <-ctx.Done():
					return
				}
				last = &o
				if lifecycle.IsTerminal(o.Status) {
					c.Logger.LogOrder("TRACKED", o.ID, fmt.Sprintf("finished as %s", o.Status))
					return
				}
			}
		}
	}()
	return out, nil
}

func changed(a, b models.Order) bool {
	return a.Status != b.Status ||
		a.CourierArrived != b.CourierArrived ||
		a.CourierName != b.CourierName ||
		a.Claimed() != b.Claimed() ||
		!a.UpdatedAt.Equal(b.UpdatedAt)
}
