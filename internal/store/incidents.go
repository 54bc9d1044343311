// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package store persists incident records to an embedded BadgerDB so
// operators can review what happened after the fact. Entries carry a TTL;
// expired incidents disappear during Badger's normal value log GC.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/dispatch"
	"github.com/kestrelsec/kestrel/internal/logging"
)

const (
	incidentKeyPrefix = "incident:"

	// DefaultRetention is how long incidents are kept when the
	// configuration does not say otherwise.
	DefaultRetention = 30 * 24 * time.Hour
)

// IncidentStore is a Badger-backed incident journal. Keys are ordered by
// timestamp so recency queries are a reverse prefix scan.
type IncidentStore struct {
	db        *badger.DB
	retention time.Duration
}

// Open opens or creates the incident store at path.
func Open(path string, retention time.Duration) (*IncidentStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open incident store at %s: %w", path, err)
	}
	logging.Info().Str("path", path).Dur("retention", retention).Msg("incident store opened")
	return &IncidentStore{db: db, retention: retention}, nil
}

// SaveIncident persists one incident with the configured TTL.
func (s *IncidentStore) SaveIncident(ctx context.Context, incident *dispatch.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	key := incidentKey(incident)
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, body).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("save incident %s: %w", incident.ID, err)
	}
	return nil
}

// Recent returns up to limit incidents for the source, newest first. An
// empty sourceID matches every source.
func (s *IncidentStore) Recent(sourceID string, limit int) ([]*dispatch.Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*dispatch.Incident
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(incidentKeyPrefix)
		// In reverse iteration, seek past the last possible incident key.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var incident dispatch.Incident
				if err := json.Unmarshal(val, &incident); err != nil {
					return err
				}
				if sourceID == "" || incident.SourceID == sourceID {
					out = append(out, &incident)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan incidents: %w", err)
	}
	return out, nil
}

// Serve runs Badger's value log garbage collection until the context is
// canceled. Implements suture.Service.
func (s *IncidentStore) Serve(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				logging.Error().Err(err).Msg("incident store GC failed")
			}
		}
	}
}

// Close flushes and closes the store.
func (s *IncidentStore) Close() error {
	return s.db.Close()
}

// incidentKey orders incidents by time, with the UUID as a tiebreaker.
func incidentKey(incident *dispatch.Incident) []byte {
	return []byte(fmt.Sprintf("%s%s:%s",
		incidentKeyPrefix,
		incident.Time.UTC().Format(time.RFC3339Nano),
		incident.ID,
	))
}
