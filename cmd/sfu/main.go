// Command sfu runs the signaling server: one HTTP listener upgrading to
// websocket, one voice-channel registry, one peer session per connection.
package main

import (
	"log"
	"net/http"

	"dreamh.dev/sfu/config"
	"dreamh.dev/sfu/peer"
	"dreamh.dev/sfu/vc"
	"dreamh.dev/sfu/wsconn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	registry := vc.NewRegistry()

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WSPath, func(w http.ResponseWriter, r *http.Request) {
		handleUpgrade(cfg, registry, w, r)
	})

	log.Printf("sfu listening on %s (ws path %s)", cfg.BindAddr, cfg.WSPath)
	if err := http.ListenAndServe(cfg.BindAddr, mux); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

func handleUpgrade(cfg config.Config, registry *vc.Registry, w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("user")
	if peerID == "" {
		http.Error(w, "missing user query parameter", http.StatusBadRequest)
		return
	}
	vcID := r.URL.Query().Get("vc")
	if vcID == "" {
		vcID = cfg.DefaultVcID
	}

	v, err := registry.GetOrCreate(vc.ID(vcID), cfg.IP, cfg.AnnouncedIP)
	if err != nil {
		log.Printf("sfu: failed to acquire vc %s: %v", vcID, err)
		http.Error(w, "failed to join voice channel", http.StatusInternalServerError)
		return
	}
	// v carries the one strong reference GetOrCreate acquired; it passes to
	// the session, which releases it in teardown.

	conn, err := wsconn.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("sfu: upgrade failed: %v", err)
		v.Release()
		return
	}

	session, err := peer.New(vc.PeerID(peerID), v, cfg.IP, cfg.AnnouncedIP)
	if err != nil {
		log.Printf("sfu: failed to create session for %s: %v", peerID, err)
		v.Release()
		conn.Close()
		return
	}

	session.Serve(conn)
}
