package pgwatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/access"
	"github.com/receiptly/team-api/internal/repository"
)

// memberEventsChannel is the NOTIFY channel fed by the team_members trigger.
const memberEventsChannel = "team_member_events"

const (
	minReconnectInterval = time.Second
	maxReconnectInterval = time.Minute
	snapshotTimeout      = 5 * time.Second
	pingInterval         = 90 * time.Second
)

type memberEventPayload struct {
	Op       string `json:"op"`
	MemberID string `json:"member_id"`
}

// Watcher implements access.MembershipWatcher on top of Postgres
// LISTEN/NOTIFY. One connection listens for member events; per-member
// subscribers receive a fresh row snapshot for every notification. A listener
// reconnect re-delivers the current snapshot to every subscriber, which keeps
// delivery at-least-once across connection loss.
type Watcher struct {
	listener *pq.Listener
	members  repository.MemberRepository
	logger   zerolog.Logger

	mu     sync.Mutex
	nextID int64
	subs   map[string]map[int64]chan access.MembershipEvent
	closed bool
	done   chan struct{}
}

func NewWatcher(databaseURL string, members repository.MemberRepository, logger zerolog.Logger) (*Watcher, error) {
	log := logger.With().Str("component", "membership_watcher").Logger()

	listener := pq.NewListener(databaseURL, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("listener connection event")
		}
	})
	if err := listener.Listen(memberEventsChannel); err != nil {
		listener.Close()
		return nil, errors.Wrap(err, "listen on member events channel")
	}

	w := &Watcher{
		listener: listener,
		members:  members,
		logger:   log,
		subs:     make(map[string]map[int64]chan access.MembershipEvent),
		done:     make(chan struct{}),
	}
	go w.run()

	return w, nil
}

// Watch subscribes to change notifications for one membership document. The
// cancel func is idempotent and closes the event channel.
func (w *Watcher) Watch(ctx context.Context, memberID string) (<-chan access.MembershipEvent, func(), error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, nil, errors.New("membership watcher is closed")
	}
	w.nextID++
	id := w.nextID
	ch := make(chan access.MembershipEvent, 8)
	if w.subs[memberID] == nil {
		w.subs[memberID] = make(map[int64]chan access.MembershipEvent)
	}
	w.subs[memberID][id] = ch
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		channels, ok := w.subs[memberID]
		if !ok {
			return
		}
		if _, ok := channels[id]; !ok {
			return
		}
		delete(channels, id)
		if len(channels) == 0 {
			delete(w.subs, memberID)
		}
		close(ch)
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}

// Close tears down the listener and closes every subscriber channel.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	for memberID, channels := range w.subs {
		for id, ch := range channels {
			delete(channels, id)
			close(ch)
		}
		delete(w.subs, memberID)
	}
	w.mu.Unlock()

	return w.listener.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case n, ok := <-w.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected: notifications may have been missed while the
				// connection was down, so refresh every watched member.
				w.refreshAll()
				continue
			}

			var payload memberEventPayload
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
				w.logger.Warn().Err(err).Str("payload", n.Extra).Msg("undecodable member event")
				continue
			}
			w.dispatch(payload.MemberID)
		case <-time.After(pingInterval):
			if err := w.listener.Ping(); err != nil {
				w.logger.Warn().Err(err).Msg("listener ping failed")
			}
		}
	}
}

func (w *Watcher) refreshAll() {
	w.mu.Lock()
	memberIDs := make([]string, 0, len(w.subs))
	for memberID := range w.subs {
		memberIDs = append(memberIDs, memberID)
	}
	w.mu.Unlock()

	for _, memberID := range memberIDs {
		w.dispatch(memberID)
	}
}

func (w *Watcher) dispatch(memberID string) {
	w.mu.Lock()
	hasSubs := len(w.subs[memberID]) > 0
	w.mu.Unlock()
	if !hasSubs {
		return
	}

	event := w.snapshotEvent(memberID)

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs[memberID] {
		select {
		case ch <- event:
		default:
			// Subscriber is not draining; the next notification or a
			// reconnect refresh will deliver a newer snapshot anyway.
			w.logger.Warn().Str("member_id", memberID).Msg("dropping membership event, subscriber backlog full")
		}
	}
}

func (w *Watcher) snapshotEvent(memberID string) access.MembershipEvent {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	member, err := w.members.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.MembershipEvent{}
		}
		return access.MembershipEvent{Err: classifyStoreError(err)}
	}

	return access.MembershipEvent{Member: &member}
}

// classifyStoreError maps permission failures onto the unauthorized sentinel
// so the controller treats them as revocation rather than transient noise.
func classifyStoreError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "42501" || pqErr.Code.Class() == "28" {
			return errors.Wrap(access.ErrWatchUnauthorized, pqErr.Message)
		}
	}
	return err
}
