/*
Copyright 2026 The Refresh Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bus

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	minReconnectInterval = time.Second
	maxReconnectInterval = time.Minute
)

type pgNotifier struct {
	db *sql.DB
}

// NewPostgresNotifier returns a Notifier publishing on the "revision"
// channel of the PostgreSQL database at conninfo.
func NewPostgresNotifier(ctx context.Context, conninfo string) (Notifier, error) {
	db, err := sql.Open("postgres", conninfo)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &pgNotifier{db: db}, nil
}

func (n *pgNotifier) Notify(ctx context.Context, revID string) error {
	// NOTIFY does not take bind parameters; pg_notify does.
	_, err := n.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, revID)
	return err
}

func (n *pgNotifier) Close() error { return n.db.Close() }

type pgSubscriber struct {
	listener *pq.Listener
	wake     chan struct{}
	done     chan struct{}
}

// NewPostgresSubscriber returns a Subscriber on the "revision" channel
// of the PostgreSQL database at conninfo. Reconnects are handled by
// the underlying listener; a reconnect counts as a wakeup, since
// notifications may have been missed while disconnected.
func NewPostgresSubscriber(conninfo string) (Subscriber, error) {
	listener := pq.NewListener(conninfo, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logrus.WithError(err).Warn("revision listener event")
			}
		})
	if err := listener.Listen(Channel); err != nil {
		listener.Close()
		return nil, err
	}
	s := &pgSubscriber{
		listener: listener,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *pgSubscriber) pump() {
	for {
		select {
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n != nil {
				logrus.WithField("revision", n.Extra).Debug("revision notification")
			}
			// A nil notification means the connection was
			// re-established; wake anyway and let the receiver
			// re-read state.
			select {
			case s.wake <- struct{}{}:
			default:
			}
		case <-s.done:
			return
		}
	}
}

func (s *pgSubscriber) Wake() <-chan struct{} { return s.wake }

func (s *pgSubscriber) Close() error {
	close(s.done)
	return s.listener.Close()
}
