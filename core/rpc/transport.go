package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/sirupsen/logrus"
)

// PubsubTransport carries signed RPC envelopes over a single gossip topic,
// adapted from the teacher's Node type (core/network.go): one libp2p host,
// one pubsub instance, one topic joined and subscribed by the constructor.
type PubsubTransport struct {
	host   libp2phost.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger

	topicMu sync.Mutex
	topic   *pubsub.Topic
	sub     *pubsub.Subscription

	signer Signer
	router *ToolRouter
}

// NewPubsubTransport starts a libp2p host listening at listenAddr and joins
// the gossip topic used for RPC envelopes (spec §6 "serverRelays" analog:
// here, the libp2p multiaddrs the server listens/dials on).
func NewPubsubTransport(listenAddr, topicName string, signer Signer, router *ToolRouter, log logrus.FieldLogger) (*PubsubTransport, error) {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	t, err := ps.Join(topicName)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("join topic %s: %w", topicName, err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("subscribe topic %s: %w", topicName, err)
	}

	return &PubsubTransport{
		host:   h,
		pubsub: ps,
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		topic:  t,
		sub:    sub,
		signer: signer,
		router: router,
	}, nil
}

// Serve consumes envelopes from the topic until ctx is canceled, dispatching
// each to the router and publishing the JSON reply back to the same topic.
// Inbound envelopes are signature-checked; replies are published unsigned.
// Malformed or unverifiable envelopes are dropped and logged rather than
// crashing the loop.
func (t *PubsubTransport) Serve(ctx context.Context) error {
	for {
		msg, err := t.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.log.WithError(err).Warn("pubsub subscription read failed")
			continue
		}

		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.log.WithError(err).Warn("dropping malformed RPC envelope")
			continue
		}
		if !t.signer.Verify(req.ClientPubkey, signingPayload(req.ID, req.ToolName, req.Args), req.Signature) {
			t.log.WithField("client", req.ClientPubkey).Warn("dropping RPC envelope with invalid signature")
			continue
		}

		resp := t.router.Handle(ctx, req)
		if err := t.publish(ctx, resp); err != nil {
			t.log.WithError(err).Warn("failed to publish RPC reply")
		}
	}
}

func (t *PubsubTransport) publish(ctx context.Context, resp Response) error {
	buf, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	t.topicMu.Lock()
	topic := t.topic
	t.topicMu.Unlock()
	return topic.Publish(ctx, buf)
}

// Close tears down the subscription, topic, and host.
func (t *PubsubTransport) Close() error {
	t.cancel()
	t.sub.Cancel()
	if err := t.topic.Close(); err != nil {
		t.log.WithError(err).Warn("error closing pubsub topic")
	}
	return t.host.Close()
}
