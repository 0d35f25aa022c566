// Package nostrsource implements validators.Source and the graph-ingest
// relay crawl against real Nostr relays, the concrete adapter the daemon
// wires in where tests use a fake.
//
// Grounded on other_examples' wot-scoring crawlFollows (nostr.SimplePool,
// kind-3 contact-list filters, batched SubManyEose queries) for the crawl
// shape, and on github.com/nbd-wtf/go-nostr's kind constants for metadata
// (0) and relay-list (10002) events.
package nostrsource

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"

	"trustwotd/core/validators"
	"trustwotd/pkg/pubkey"
)

const (
	kindMetadata  = 0
	kindContacts  = 3
	kindRelayList = 10002
)

// Source queries a fixed relay set via a shared connection pool.
type Source struct {
	pool   *nostr.SimplePool
	relays []string
	log    logrus.FieldLogger
}

// New constructs a Source that queries relays through a long-lived pool
// bound to ctx; the pool's connections are closed when ctx is canceled.
func New(ctx context.Context, relays []string, log logrus.FieldLogger) *Source {
	if log == nil {
		log = logrus.New()
	}
	return &Source{pool: nostr.NewSimplePool(ctx), relays: relays, log: log}
}

type metadataContent struct {
	Nip05 string `json:"nip05"`
	Lud16 string `json:"lud16"`
	Lud06 string `json:"lud06"`
}

// FetchMetadata queries the target's most recent kind-0 event.
func (s *Source) FetchMetadata(ctx context.Context, target pubkey.Key) (validators.Metadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := nostr.Filter{Kinds: []int{kindMetadata}, Authors: []string{string(target)}, Limit: 1}
	var meta validators.Metadata
	for ev := range s.pool.SubManyEose(callCtx, s.relays, nostr.Filters{filter}) {
		var mc metadataContent
		if err := json.Unmarshal([]byte(ev.Event.Content), &mc); err != nil {
			continue
		}
		meta = validators.Metadata{Nip05: mc.Nip05, Lud16: mc.Lud16, Lud06: mc.Lud06}
	}
	return meta, nil
}

// FetchRelayList queries the target's most recent kind-10002 event and
// extracts relay URLs from its "r" tags.
func (s *Source) FetchRelayList(ctx context.Context, target pubkey.Key) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := nostr.Filter{Kinds: []int{kindRelayList}, Authors: []string{string(target)}, Limit: 1}
	var relays []string
	for ev := range s.pool.SubManyEose(callCtx, s.relays, nostr.Filters{filter}) {
		for _, tag := range ev.Event.Tags {
			if len(tag) >= 2 && tag[0] == "r" {
				relays = append(relays, tag[1])
			}
		}
	}
	return relays, nil
}

// FetchFollows queries the target's most recent kind-3 contact list and
// returns the "p"-tagged pubkeys it follows, used by the daemon's graph
// ingest loop.
func (s *Source) FetchFollows(ctx context.Context, target pubkey.Key) ([]pubkey.Key, error) {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := nostr.Filter{Kinds: []int{kindContacts}, Authors: []string{string(target)}, Limit: 1}
	var follows []pubkey.Key
	for ev := range s.pool.SubManyEose(callCtx, s.relays, nostr.Filters{filter}) {
		for _, tag := range ev.Event.Tags {
			if len(tag) >= 2 && tag[0] == "p" {
				follows = append(follows, pubkey.Key(tag[1]))
			}
		}
	}
	return follows, nil
}
