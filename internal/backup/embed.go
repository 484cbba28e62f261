package backup

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedURL selects an in-process JetStream server for nats://
// destinations instead of a remote one.
const EmbeddedURL = "embedded"

// RunEmbeddedNATS starts a JetStream server that only accepts in-process
// connections and stores its objects under storeDir.
func RunEmbeddedNATS(storeDir string) (*NATSSink, *server.Server, error) {
	opts := &server.Options{
		ServerName:             "dbmcp",
		DontListen:             true,
		JetStream:              true,
		DisableJetStreamBanner: true,
		StoreDir:               storeDir,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("starting embedded NATS server", "store_dir", opts.StoreDir)
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, nil, errors.New("embedded NATS server not ready")
	}
	slog.Info("embedded NATS server is ready", "jetstream", ns.JetStreamEnabled())

	nc, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		ns.Shutdown()
		return nil, nil, err
	}
	sink, err := NewNATSSink(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, nil, err
	}
	sink.owned = true
	return sink, ns, nil
}
