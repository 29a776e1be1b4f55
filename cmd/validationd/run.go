package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/validation/bootstrap"
	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/identity"
	"github.com/luxfi/validation/node"
	"github.com/luxfi/validation/store"
	"github.com/luxfi/validation/transport"
)

func runCmd() *cobra.Command {
	var (
		keyFile    string
		storeDir   string
		pubAddr    string
		routerAddr string
		peers      []string
		trackerURL string
		topic      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity(keyFile)
			if err != nil {
				return err
			}

			db, err := store.Open(storeDir)
			if err != nil {
				return err
			}

			tr, err := transport.NewZMQ(id.PeerID, pubAddr, routerAddr)
			if err != nil {
				db.Close()
				return err
			}

			params := config.Default()
			if topic != "" {
				params.DefaultTopic = topic
			}
			if err := params.Valid(); err != nil {
				tr.Close()
				db.Close()
				return err
			}

			log, err := zap.NewProduction()
			if err != nil {
				tr.Close()
				db.Close()
				return fmt.Errorf("run: build logger: %w", err)
			}
			sugar := log.Sugar()

			n, err := node.New(id, db, tr, params, sugar, nil)
			if err != nil {
				tr.Close()
				db.Close()
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if trackerURL != "" {
				tracker, err := bootstrap.FetchTracker(ctx, nil, trackerURL, params.RemoteCallTimeout)
				if err != nil {
					sugar.Warnw("tracker lookup failed, continuing with --peer list only", "url", trackerURL, "err", err)
				} else if len(tracker.Addresses) == 2 {
					if err := tr.ConnectPeer(tracker.ID, tracker.Addresses[0], tracker.Addresses[1]); err != nil {
						sugar.Warnw("failed to connect to tracker peer", "peer", tracker.ID, "err", err)
					}
				}
			}

			for _, spec := range peers {
				parts := strings.SplitN(spec, ",", 3)
				if len(parts) != 3 {
					sugar.Warnw("ignoring malformed --peer entry", "entry", spec, "want", "peerID,pubAddr,routerAddr")
					continue
				}
				peerID, peerPub, peerRouter := identity.PeerID(parts[0]), parts[1], parts[2]
				if err := tr.ConnectPeer(peerID, peerPub, peerRouter); err != nil {
					sugar.Warnw("failed to connect to peer", "peer", peerID, "err", err)
				}
			}

			if err := n.Start(ctx); err != nil {
				tr.Close()
				db.Close()
				return err
			}
			sugar.Infow("peer started", "peer_id", id.PeerID, "pub", pubAddr, "router", routerAddr, "topic", params.DefaultTopic)

			<-ctx.Done()
			sugar.Infow("shutting down")
			return n.Stop()
		},
	}

	cmd.Flags().StringVar(&keyFile, "key", "", "path to this peer's private key file (see keygen)")
	cmd.Flags().StringVar(&storeDir, "store", "", "directory for this peer's persistent store")
	cmd.Flags().StringVar(&pubAddr, "pub", "tcp://*:5555", "ZeroMQ PUB bind address for broadcasts")
	cmd.Flags().StringVar(&routerAddr, "router", "tcp://*:5556", "ZeroMQ ROUTER bind address for direct sends")
	cmd.Flags().StringArrayVar(&peers, "peer", nil, "peerID,pubAddr,routerAddr of a peer to connect to; repeatable")
	cmd.Flags().StringVar(&trackerURL, "tracker", "", "tracker URL to fetch an initial peer from")
	cmd.Flags().StringVar(&topic, "topic", "", "override the default topic")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
