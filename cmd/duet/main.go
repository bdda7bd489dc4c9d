package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/export"
	"github.com/duetlabs/duet/internal/prompt"
	"github.com/duetlabs/duet/internal/recorder"
	"github.com/duetlabs/duet/internal/session"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/turn"
	"github.com/duetlabs/duet/web/handlers"
)

var (
	dbPath    string
	cfgPath   string
	appConfig *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "duet",
	Short: "Two-player recording party game",
	Long: `duet is a two-player conversational party game: players take alternating
timed turns answering relationship-themed prompts, answers are recorded and
scored by how long you keep talking, and a finished game can be exported as
an archive of media files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgPath != "" {
			appConfig, err = config.LoadFrom(cfgPath)
		} else {
			appConfig, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.duet/duet.db)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.duet/config.yaml)")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(serveCmd)
}

func getStore() (*storage.SQLiteStore, error) {
	path := dbPath
	if path == "" && appConfig != nil {
		path = appConfig.Storage.Path
	}
	if path == "" {
		path = storage.DefaultDBPath()
	}

	db, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func loadBank() (*prompt.Bank, error) {
	bank := prompt.Default()
	if appConfig == nil {
		return bank, nil
	}
	for _, path := range appConfig.Prompts.ExtraBanks {
		if err := bank.AppendFile(path); err != nil {
			return nil, fmt.Errorf("loading extra prompt bank %s: %w", path, err)
		}
	}
	return bank, nil
}

// ============================================================================
// PLAY COMMAND
// ============================================================================

var playRelationship string

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a game in the terminal",
	Long: `Run the turn flow in the terminal with a stub recorder: no real media is
captured, but turns are timed, scored, and saved exactly as in the browser.

Good for trying out the pacing, or for playing audio-style over a real
microphone you run yourself.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := getStore()
		if err != nil {
			return err
		}
		defer db.Close()

		bank, err := loadBank()
		if err != nil {
			return err
		}

		store := session.New(db, db)
		if playRelationship != "" {
			rel := core.Relationship(playRelationship)
			if !rel.Valid() {
				return fmt.Errorf("unknown relationship %q", playRelationship)
			}
			store.SetRelationship(rel)
		}

		countdown := 3
		if appConfig != nil {
			countdown = appConfig.Recording.CountdownSeconds
		}

		ctrl := turn.New(store, bank, recorder.NewStub(), db, turn.Options{
			CountdownFrom: countdown,
			OnTick: func(remaining int) {
				if remaining > 0 {
					fmt.Printf("  %d...\n", remaining)
				}
			},
			OnCelebrate: func(seat core.Seat, total int) {
				fmt.Printf("  *** New high score: %s reaches %d points! ***\n", store.Player(seat).Name, total)
			},
		})
		defer ctrl.Close(context.Background())

		return runPlayLoop(cmd.Context(), ctrl, store)
	},
}

func init() {
	playCmd.Flags().StringVarP(&playRelationship, "relationship", "r", "", "Relationship mode (kid-parent, adultchild-parent, friend-friend, kid-grandparent)")
}

func runPlayLoop(ctx context.Context, ctrl *turn.Controller, store *session.Store) error {
	in := bufio.NewScanner(os.Stdin)
	fmt.Printf("Playing as %s. Press Enter to start a turn, q to quit.\n\n", store.Relationship())

	for {
		switch ctrl.State() {
		case turn.StateReady:
			next := store.Player(ctrl.NextSeat())
			fmt.Printf("%s's turn (%d pts). Enter to start, q to quit: ", next.Name, next.Score)
			if !in.Scan() || strings.TrimSpace(in.Text()) == "q" {
				return nil
			}
			if err := ctrl.StartTurn(ctx); err != nil {
				fmt.Printf("  Could not start: %v\n", err)
				continue
			}
			waitFor(ctrl, turn.StateRecording)
			if p, ok := ctrl.CurrentPrompt(); ok {
				fmt.Printf("\n  %s\n\n", p.Text)
			}
			fmt.Print("Recording! Enter to stop: ")
			if !in.Scan() {
				ctrl.Cancel(ctx)
				return nil
			}
			meta, err := ctrl.StopTurn(ctx)
			if err != nil {
				fmt.Printf("  Turn discarded: %v\n", err)
				ctrl.Cancel(ctx)
				continue
			}
			fmt.Printf("  %.0fs, %d point(s)!\n\n", meta.DurationSec, meta.Points)

		case turn.StateSummary:
			p1 := store.Player(core.Seat1)
			p2 := store.Player(core.Seat2)
			fmt.Printf("--- Scores: %s %d, %s %d ---\n", p1.Name, p1.Score, p2.Name, p2.Score)
			fmt.Print("Enter to keep playing, e to end the game: ")
			if !in.Scan() || strings.TrimSpace(in.Text()) == "e" {
				if err := ctrl.End(); err != nil {
					return err
				}
				continue
			}
			if err := ctrl.Continue(); err != nil {
				return err
			}

		case turn.StateEnded:
			fmt.Print("Game over. r = rematch, n = new game, anything else quits: ")
			if !in.Scan() {
				return nil
			}
			switch strings.TrimSpace(in.Text()) {
			case "r":
				if err := ctrl.Rematch(); err != nil {
					return err
				}
			case "n":
				if err := ctrl.NewGame(); err != nil {
					return err
				}
			default:
				return ctrl.Finish()
			}

		default:
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func waitFor(ctrl *turn.Controller, want turn.State) {
	for ctrl.State() != want && ctrl.State() != turn.StateReady {
		time.Sleep(50 * time.Millisecond)
	}
}

// ============================================================================
// LIST COMMAND
// ============================================================================

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all games",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := getStore()
		if err != nil {
			return err
		}
		defer db.Close()

		store := session.New(db, db)
		games := store.Games()
		if len(games) == 0 {
			fmt.Println("No games found. Start one with: duet play")
			return nil
		}

		current := store.CurrentGameID()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPLAYERS\tMODE\tRECORDINGS\tSTARTED")
		for _, g := range games {
			marker := ""
			if g.ID == current {
				marker = " *"
			}
			fmt.Fprintf(w, "%s%s\t%s vs %s\t%s\t%d\t%s\n",
				g.ID, marker,
				g.Seat1Name, g.Seat2Name,
				g.Relationship,
				len(store.RecordingsForGame(g.ID)),
				g.StartedAt.Format("Jan 2, 2006 3:04 PM"))
		}
		return w.Flush()
	},
}

// ============================================================================
// DELETE COMMAND
// ============================================================================

var deleteCmd = &cobra.Command{
	Use:   "delete [game-id]",
	Short: "Delete a game and its recordings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := getStore()
		if err != nil {
			return err
		}
		defer db.Close()

		store := session.New(db, db)
		if _, ok := store.Game(args[0]); !ok {
			return fmt.Errorf("game %s not found", args[0])
		}
		store.DeleteGame(args[0])
		fmt.Printf("Deleted game: %s\n", args[0])
		return nil
	},
}

// ============================================================================
// EXPORT COMMAND
// ============================================================================

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export [game-id]",
	Short: "Export a game's recordings as a ZIP archive",
	Long: `Package every recording of a game into one ZIP archive, named after the
players and the game date, with a PDF summary sheet alongside the media.

Examples:
  duet export a1b2c3d4e5
  duet export a1b2c3d4e5 -o ~/Downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := getStore()
		if err != nil {
			return err
		}
		defer db.Close()

		bank, err := loadBank()
		if err != nil {
			return err
		}

		store := session.New(db, db)
		game, ok := store.Game(args[0])
		if !ok {
			return fmt.Errorf("game %s not found", args[0])
		}

		builder := export.NewBuilder(db, bank, nil)
		saver := export.DirSaver{Dir: exportDir}
		if err := builder.ShareGame(cmd.Context(), nil, saver, game, store.RecordingsForGame(game.ID)); err != nil {
			return err
		}

		fmt.Printf("Exported %s to %s\n", export.FolderName(game)+".zip", exportDir)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "output", "o", ".", "Output directory")
}

// ============================================================================
// PROMPTS COMMAND
// ============================================================================

var promptsRandom bool

var promptsCmd = &cobra.Command{
	Use:   "prompts [relationship]",
	Short: "List the prompt bank for a relationship mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rel := core.DefaultRelationship
		if len(args) == 1 {
			rel = core.Relationship(args[0])
			if !rel.Valid() {
				return fmt.Errorf("unknown relationship %q", args[0])
			}
		}

		bank, err := loadBank()
		if err != nil {
			return err
		}

		if promptsRandom {
			for _, side := range []core.Seat{core.Seat1, core.Seat2} {
				p, err := bank.RandomFor(rel, side)
				if err != nil {
					return err
				}
				fmt.Printf("%s / %s: %s\n", rel, side, p.Text)
			}
			return nil
		}

		for _, side := range []core.Seat{core.Seat1, core.Seat2} {
			fmt.Printf("%s / %s:\n", rel, side)
			for _, p := range bank.Prompts(rel, side) {
				fmt.Printf("  [%s] %s\n", p.ID, p.Text)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	promptsCmd.Flags().BoolVar(&promptsRandom, "random", false, "Draw one random prompt per side instead of listing")
}

// ============================================================================
// RESET COMMAND
// ============================================================================

var resetScoresOnly bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the session",
	Long: `Reset player names, scores and recordings back to defaults. With
--scores, only zero the scores and keep everything else.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := getStore()
		if err != nil {
			return err
		}
		defer db.Close()

		store := session.New(db, db)
		if resetScoresOnly {
			store.ResetScores()
			fmt.Println("Scores reset.")
			return nil
		}
		store.ResetGame()
		fmt.Println("Session reset to defaults.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetScoresOnly, "scores", false, "Only reset scores")
}

// ============================================================================
// SERVE COMMAND
// ============================================================================

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") && appConfig != nil && appConfig.Server.Port != 0 {
			servePort = appConfig.Server.Port
		}

		db, err := getStore()
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer db.Close()

		bank, err := loadBank()
		if err != nil {
			return err
		}

		store := session.New(db, db)
		if appConfig != nil {
			store.SetPreferredKind(appConfig.PreferredKind())
		}

		ctrl := turn.New(store, bank, recorder.NewStub(), db, turn.Options{})
		defer ctrl.Close(context.Background())

		fmt.Printf("Starting duet server on http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop the server")

		return startWebServer(store, ctrl, bank, db, servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8182, "Server port")
}

func startWebServer(store *session.Store, ctrl *turn.Controller, bank *prompt.Bank, db *storage.SQLiteStore, port int) error {
	h := handlers.New(store, ctrl, bank, db)

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: h.Router(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")
		server.Close()
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
