// Copyright 2024 The go-kadvault Authors
// This file is part of the go-kadvault library.
//
// The go-kadvault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-kadvault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-kadvault library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadvault/go-kadvault/network"
)

// nodeMetrics aggregates the node's prometheus instruments. A nil
// *nodeMetrics is valid and records nothing, so call sites need no guards.
type nodeMetrics struct {
	registry *prometheus.Registry

	eventsHandled   *prometheus.CounterVec
	peersAdded      prometheus.Counter
	peersRemoved    prometheus.Counter
	connectedPeers  prometheus.Gauge
	replications    prometheus.Counter
	replicationKeys prometheus.Counter
	gossipMsgs      prometheus.Counter
	rejectedRecords prometheus.Counter
}

func newNodeMetrics() *nodeMetrics {
	m := &nodeMetrics{
		registry: prometheus.NewRegistry(),
		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kadvault",
			Subsystem: "node",
			Name:      "events_handled_total",
			Help:      "Network events handled, by event type.",
		}, []string{"type"}),
		peersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kadvault", Subsystem: "node",
			Name: "peers_added_total",
			Help: "Peers added to the routing table.",
		}),
		peersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kadvault", Subsystem: "node",
			Name: "peers_removed_total",
			Help: "Peers removed from the routing table.",
		}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kadvault", Subsystem: "node",
			Name: "connected_peers",
			Help: "Current routing table peer count. Unlike the readiness latch, this gauge goes down on removals.",
		}),
		replications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kadvault", Subsystem: "node",
			Name: "replication_triggers_total",
			Help: "Periodic replication rounds that picked a target peer.",
		}),
		replicationKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kadvault", Subsystem: "node",
			Name: "replication_keys_total",
			Help: "Keys received for replication fetching.",
		}),
		gossipMsgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kadvault", Subsystem: "node",
			Name: "gossip_msgs_total",
			Help: "Gossip messages routed.",
		}),
		rejectedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kadvault", Subsystem: "node",
			Name: "rejected_records_total",
			Help: "Unverified records the store refused.",
		}),
	}
	m.registry.MustRegister(
		m.eventsHandled, m.peersAdded, m.peersRemoved, m.connectedPeers,
		m.replications, m.replicationKeys, m.gossipMsgs, m.rejectedRecords,
	)
	return m
}

func eventType(ev network.Event) string {
	switch ev.(type) {
	case network.PeerAddedEvent:
		return "peer_added"
	case network.PeerRemovedEvent:
		return "peer_removed"
	case network.NewListenAddrEvent:
		return "new_listen_addr"
	case network.NatStatusChangedEvent:
		return "nat_status_changed"
	case network.RequestReceivedEvent:
		return "request_received"
	case network.ResponseReceivedEvent:
		return "response_received"
	case network.UnverifiedRecordEvent:
		return "unverified_record"
	case network.FailedToWriteEvent:
		return "failed_to_write"
	case network.KeysForReplicationEvent:
		return "keys_for_replication"
	case network.GossipsubMsgReceivedEvent:
		return "gossip_received"
	case network.GossipsubMsgPublishedEvent:
		return "gossip_published"
	default:
		return "other"
	}
}

func (m *nodeMetrics) eventHandled(ev network.Event) {
	if m == nil {
		return
	}
	m.eventsHandled.WithLabelValues(eventType(ev)).Inc()
}

func (m *nodeMetrics) peerAdded() {
	if m == nil {
		return
	}
	m.peersAdded.Inc()
	m.connectedPeers.Inc()
}

func (m *nodeMetrics) peerRemoved() {
	if m == nil {
		return
	}
	m.peersRemoved.Inc()
	m.connectedPeers.Dec()
}

func (m *nodeMetrics) replicationTriggered() {
	if m == nil {
		return
	}
	m.replications.Inc()
}

func (m *nodeMetrics) keysForReplication(count int) {
	if m == nil {
		return
	}
	m.replicationKeys.Add(float64(count))
}

func (m *nodeMetrics) gossipReceived() {
	if m == nil {
		return
	}
	m.gossipMsgs.Inc()
}

func (m *nodeMetrics) recordRejected() {
	if m == nil {
		return
	}
	m.rejectedRecords.Inc()
}

// serve exposes the registry on /metrics. Serving failures are logged, not
// fatal: a node without a metrics endpoint still serves the network.
func (m *nodeMetrics) serve(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("Metrics server failed", "port", port, "err", err)
		}
	}()
}
