// Package notify fans pending change records out to subscribers.
//
// Delivery state lives on the change rows themselves: one flag per
// channel, flipped false to true after the first delivery attempt with
// at least one success. The fan-out is therefore safe to re-run at any
// time; already-notified changes are never resent.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"idlwatch/internal/store"
)

// Sender delivers one rendered message to one subscriber on a specific
// channel.
type Sender interface {
	Deliver(ctx context.Context, sub *store.Subscriber, msg *Message) error
}

// Config controls the fan-out.
type Config struct {
	// PreviewLimit caps items shown per severity bucket.
	PreviewLimit int
	// Concurrency bounds parallel deliveries per target group.
	Concurrency int
	// DeliveryDelay is slept after every delivery attempt.
	DeliveryDelay time.Duration
}

func (c *Config) defaults() {
	if c.PreviewLimit <= 0 {
		c.PreviewLimit = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.DeliveryDelay <= 0 {
		c.DeliveryDelay = 200 * time.Millisecond
	}
}

// DeliveryError records one failed delivery to one subscriber.
type DeliveryError struct {
	SubscriberID string `json:"subscriber_id"`
	Channel      string `json:"channel"`
	Err          error  `json:"-"`
	Message      string `json:"message"`
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: delivery to %s on %s failed: %v", e.SubscriberID, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// SendResult summarises one fan-out pass on one channel.
type SendResult struct {
	Sent   int             `json:"sent"`
	Failed int             `json:"failed"`
	Errors []DeliveryError `json:"errors,omitempty"`
}

// Fanout drains pending changes into channel senders.
type Fanout struct {
	store   *store.Store
	senders map[string]Sender
	config  Config
	logger  *slog.Logger
}

// NewFanout wires a fan-out over the given channel senders, keyed by
// channel name.
func NewFanout(st *store.Store, senders map[string]Sender, cfg Config, logger *slog.Logger) *Fanout {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		store:   st,
		senders: senders,
		config:  cfg,
		logger:  logger.With("component", "notify"),
	}
}

// Channels returns the channel names this fan-out can deliver on.
func (f *Fanout) Channels() []string {
	names := make([]string, 0, len(f.senders))
	for _, ch := range store.Channels {
		if _, ok := f.senders[ch]; ok {
			names = append(names, ch)
		}
	}
	return names
}

// SendPending delivers every pending change on the channel, grouped by
// target. A group is marked notified when it has no interested
// subscribers, or when at least one delivery succeeded.
func (f *Fanout) SendPending(ctx context.Context, channel string) (*SendResult, error) {
	sender, ok := f.senders[channel]
	if !ok {
		return nil, fmt.Errorf("notify: no sender for channel %q", channel)
	}
	log := f.logger.With("channel", channel)

	pending, err := f.store.PendingChanges(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("notify: pending changes: %w", err)
	}
	if len(pending) == 0 {
		return &SendResult{}, nil
	}

	// Group by target, preserving oldest-first order.
	var order []string
	groups := make(map[string][]*store.ChangeRecord)
	for _, c := range pending {
		if _, seen := groups[c.TargetID]; !seen {
			order = append(order, c.TargetID)
		}
		groups[c.TargetID] = append(groups[c.TargetID], c)
	}

	res := &SendResult{}
	for _, targetID := range order {
		changes := groups[targetID]
		ids := make([]string, len(changes))
		for i, c := range changes {
			ids[i] = c.ID
		}

		target, err := f.store.GetTarget(ctx, targetID)
		if err != nil {
			return res, fmt.Errorf("notify: load target %s: %w", targetID, err)
		}
		if target == nil {
			// Target row gone; nothing to address the message to.
			log.Warn("pending changes for missing target", "target", targetID)
			if err := f.store.MarkNotified(ctx, channel, ids); err != nil {
				return res, err
			}
			continue
		}

		subs, err := f.store.SubscribersForTarget(ctx, targetID, channel)
		if err != nil {
			return res, fmt.Errorf("notify: subscribers for %s: %w", targetID, err)
		}
		if len(subs) == 0 {
			log.Debug("no interested subscribers", "target", targetID)
			if err := f.store.MarkNotified(ctx, channel, ids); err != nil {
				return res, err
			}
			continue
		}

		msg := buildMessage(target, changes, f.config.PreviewLimit)
		successes, failures := f.deliverAll(ctx, channel, sender, subs, msg, res)
		res.Sent += successes
		res.Failed += failures

		if successes > 0 {
			if err := f.store.MarkNotified(ctx, channel, ids); err != nil {
				return res, err
			}
		}
		log.Info("group delivered",
			"target", targetID, "changes", len(changes),
			"sent", successes, "failed", failures)
	}
	return res, nil
}

// deliverAll sends one message to every subscriber with bounded
// concurrency, appending failures to res.Errors.
func (f *Fanout) deliverAll(ctx context.Context, channel string, sender Sender, subs []*store.Subscriber, msg *Message, res *SendResult) (successes, failures int) {
	sem := make(chan struct{}, f.config.Concurrency)
	var wg sync.WaitGroup
	errs := make([]error, len(subs))

	for i, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, sub *store.Subscriber) {
			defer wg.Done()
			defer func() { <-sem }()

			errs[idx] = sender.Deliver(ctx, sub, msg)
			// Pace deliveries so a large roster does not hammer the
			// receiving side.
			select {
			case <-time.After(f.config.DeliveryDelay):
			case <-ctx.Done():
			}
		}(i, sub)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			successes++
			continue
		}
		failures++
		res.Errors = append(res.Errors, DeliveryError{
			SubscriberID: subs[i].ID,
			Channel:      channel,
			Err:          err,
			Message:      err.Error(),
		})
	}
	return successes, failures
}
