// Flux is the CLI entry point.
//
// Flux joins a random 1:1 video call or an N-way group room through a
// signaling server and negotiates direct WebRTC sessions with every peer.
//
// It can be launched interactively (no subcommand) or non-interactively via
// the "random" and "group <roomId>" subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/flux/internal/app"
	"github.com/1ureka/flux/internal/config"
	"github.com/1ureka/flux/internal/util"
)

var version = "dev"

// Flag values shared by every subcommand.
var (
	flagConfig   string
	flagSignal   string
	flagICE      string
	flagSTUN     []string
	flagDelay    time.Duration
	flagDebug    bool
	flagAudioOff bool
	flagVideoOff bool
)

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flux",
		Short:         "Peer-to-peer video calls over WebRTC",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "YAML configuration file")
	pf.StringVar(&flagSignal, "signal", "", "signaling server URL (ws/wss)")
	pf.StringVar(&flagICE, "ice", "", "ICE credentials endpoint URL")
	pf.StringSliceVar(&flagSTUN, "stun", nil, "fallback STUN servers")
	pf.DurationVar(&flagDelay, "offer-delay", 0, "initiator delay before the 1:1 offer")
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	pf.BoolVar(&flagAudioOff, "mute", false, "start with the microphone off")
	pf.BoolVar(&flagVideoOff, "no-video", false, "start with the camera off")

	root.AddCommand(
		&cobra.Command{
			Use:   "random",
			Short: "Get matched with a random partner",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMode(cmd.Context(), config.ModeRandom, "")
			},
		},
		&cobra.Command{
			Use:   "group <roomId>",
			Short: "Join a group room",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMode(cmd.Context(), config.ModeGroup, args[0])
			},
		},
	)
	return root
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive asks for the mode (and room) when no subcommand is given.
func runInteractive(ctx context.Context) error {
	mode, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Random — Meet a random partner", "Group  — Join a room"}).
		WithDefaultText("Select a mode").
		Show()

	pterm.Println()

	if strings.HasPrefix(mode, "Group") {
		return runMode(ctx, config.ModeGroup, askRoom())
	}
	return runMode(ctx, config.ModeRandom, "")
}

// runMode loads the configuration and runs the selected mode until the
// user quits.
func runMode(ctx context.Context, mode config.Mode, roomID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Flux — v%s", version))
	pterm.Println()

	opts := app.Options{Commands: os.Stdin, AudioOff: flagAudioOff, VideoOff: flagVideoOff}
	switch mode {
	case config.ModeGroup:
		err = app.RunGroup(ctx, cfg, roomID, opts)
	default:
		err = app.RunRandom(ctx, cfg, opts)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	util.LogInfo("call ended")
	return nil
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		File:        flagConfig,
		SignalURL:   flagSignal,
		ICEEndpoint: flagICE,
		STUN:        flagSTUN,
		OfferDelay:  flagDelay,
		Debug:       flagDebug,
	})
}

// askRoom prompts for a room id until a non-empty one is entered.
func askRoom() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room id").
			Show()

		if room := strings.TrimSpace(raw); room != "" {
			pterm.Println()
			return room
		}

		pterm.Println()
		util.LogWarning("invalid input: room id must not be empty")
	}
}
