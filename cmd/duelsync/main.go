// Command duelsync is one player's endpoint: it joins (or opens) a room on
// the relay, keeps the match document in sync, and turns stdin lines into
// match actions. Restarting the process with no flags resumes the last
// session recorded in the local database.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/duelsync/duelsync/internal/config"
	"github.com/duelsync/duelsync/internal/game"
	"github.com/duelsync/duelsync/internal/relay"
	"github.com/duelsync/duelsync/internal/session"
	"github.com/duelsync/duelsync/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("session failed")
	}
}

func run() error {
	var (
		create  = flag.Bool("create", false, "open a new room as host")
		room    = flag.String("room", "", "room code to join")
		name    = flag.String("name", "", "display name")
		watch   = flag.Bool("watch", false, "join as a presenter (read-only)")
		roomCfg = flag.String("room-config", "", "yaml file with room settings")
		fresh   = flag.Bool("fresh", false, "ignore any saved session and start over")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadPeer()
	if err != nil {
		return err
	}
	if *name == "" {
		*name = cfg.PlayerName
	}

	db, err := store.Open(cfg.DataPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if *fresh {
		if err := db.ClearDescriptor(); err != nil {
			log.Warn().Err(err).Msg("could not clear saved session")
		}
	}

	desc, err := resolveSession(db, *create, *room, *name, *watch, *roomCfg)
	if err != nil {
		return err
	}

	params := session.Params{
		RoomCode:  desc.RoomCode,
		Name:      desc.Name,
		Host:      desc.Host,
		Spectator: desc.View == "presenter",
		Transport: relay.NewWSTransport(cfg.RelayURL),
		DB:        db,

		NoHostTimeout: cfg.NoHostTimeout,
		TickInterval:  cfg.TickInterval,
	}
	if desc.Settings != nil {
		params.Settings = *desc.Settings
	}
	if desc.Host {
		if snap, err := db.LoadSnapshot(desc.RoomCode); err == nil {
			params.Resume = &snap
			fmt.Printf("resuming room %s at version %d\n", desc.RoomCode, snap.Version)
		}
	}

	params.Hooks = session.Hooks{
		OnState:  renderState,
		OnWinner: renderWinner,
		OnEnded: func(r session.EndReason) {
			fmt.Printf("session over (%s)\n", r)
		},
	}

	sess := session.New(params)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("room %s as %q — type 'help' for commands\n", desc.RoomCode, desc.Name)
	go commandLoop(ctx, sess)

	err = sess.Run(ctx)
	switch {
	case errors.Is(err, session.ErrNoHostFound):
		fmt.Println("nobody is hosting that room; check the code or use -create")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

// resolveSession decides which room this process belongs to: explicit flags
// win, otherwise the saved descriptor resumes the previous session.
func resolveSession(db *store.DB, create bool, room, name string, watch bool, roomCfg string) (store.Descriptor, error) {
	if !create && room == "" {
		desc, err := db.LoadDescriptor()
		if err == nil {
			fmt.Printf("resuming saved session in room %s\n", desc.RoomCode)
			return desc, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Descriptor{}, err
		}
		return store.Descriptor{}, errors.New("no saved session: use -create or -room")
	}

	if name == "" {
		return store.Descriptor{}, errors.New("a display name is required (-name)")
	}

	desc := store.Descriptor{Name: name, View: "player"}
	if watch {
		desc.View = "presenter"
	}
	if create {
		set, err := config.LoadRoomSettings(roomCfg)
		if err != nil {
			return store.Descriptor{}, err
		}
		desc.Host = true
		desc.RoomCode = newRoomCode()
		desc.Settings = &set
	} else {
		desc.RoomCode = room
	}

	if err := db.SaveDescriptor(desc); err != nil {
		log.Warn().Err(err).Msg("could not save session descriptor")
	}
	return desc, nil
}

// newRoomCode returns a five-digit code, easy to read out loud.
func newRoomCode() string {
	return strconv.Itoa(10000 + rand.IntN(90000))
}

func commandLoop(ctx context.Context, sess *session.Session) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := runCommand(sess, strings.Fields(sc.Text())); err != nil {
			if errors.Is(err, session.ErrSessionClosed) {
				return
			}
			fmt.Println("error:", err)
		}
	}
}

func runCommand(sess *session.Session, args []string) error {
	if len(args) == 0 {
		return nil
	}
	st := sess.State()
	me := sess.Me().ID

	switch args[0] {
	case "help":
		fmt.Print(helpText)
	case "state":
		renderState(st)
	case "start":
		first := me
		if len(args) > 1 && args[1] == "them" {
			first = st.Opponent(me)
		}
		return sess.StartGame(first)
	case "next":
		first := me
		if len(args) > 1 && args[1] == "them" {
			first = st.Opponent(me)
		}
		return sess.NextGame(first)
	case "turn", "end":
		return sess.EndTurn()
	case "take":
		items, err := parseInts(args[1:])
		if err != nil {
			return err
		}
		return sess.SetProgress(game.Progress{TakenItems: items})
	case "acc":
		if len(args) != 2 {
			return errors.New("usage: acc <value>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		return sess.SetProgress(game.Progress{Accumulator: &v})
	case "win":
		target := me
		if len(args) > 1 && args[1] == "them" {
			target = st.Opponent(me)
		}
		return sess.IssueWin(target)
	case "tie":
		return sess.DeclareTie()
	case "scoop":
		return sess.Scoop()
	case "restart":
		return sess.RestartRound()
	case "close":
		return sess.EndSession()
	case "quit", "leave":
		return sess.Leave()
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

const helpText = `commands:
  start [them]   begin play, optionally giving the opponent the first turn
  next [them]    continue to the next game of the match
  turn           hand the turn over
  take <n ...>   announce the full list of items you hold
  acc <n>        announce your counter value
  win [them]     award the round (host only)
  tie            declare a tie (host only)
  scoop          concede the round
  restart        reset the match (host only)
  state          print the current document
  close          end the session for everyone (host only)
  quit           leave the room
`

func parseInts(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bad item %q", a)
		}
		out = append(out, v)
	}
	return out, nil
}

func renderState(st game.State) {
	fmt.Printf("[v%d] %s game %d", st.Version, st.Status, st.CurrentGame)
	if st.Clock.Mode == game.ClockShared {
		fmt.Printf("  clock %s/%s", mmss(st.Clock.ElapsedMs), mmss(st.Clock.LimitMs))
	}
	fmt.Println()

	ids := make([]string, 0, len(st.Players))
	for id := range st.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := st.Players[id]
		marker := " "
		if st.Turn == id {
			marker = "*"
		}
		conn := "online"
		if !p.Connected {
			conn = "offline"
		}
		fmt.Printf(" %s %-12s %-5s %-7s wins=%d items=%d acc=%d", marker, p.Name, p.Role, conn,
			st.Wins[id], len(p.TakenItems), p.Accumulator)
		if st.Clock.Mode == game.ClockPerPlayer {
			fmt.Printf(" left=%s", mmss(st.Clock.RemainingMs[id]))
		}
		fmt.Println()
	}
}

func renderWinner(st game.State) {
	switch {
	case st.IsTie:
		fmt.Println("match tied")
	case st.Status == game.StatusGameOver:
		if p, ok := st.Players[st.RoundWinnerID]; ok {
			fmt.Printf("%s takes game %d\n", p.Name, st.CurrentGame)
		}
	default:
		if p, ok := st.Players[st.MatchWinnerID]; ok {
			fmt.Printf("%s wins the match\n", p.Name)
		}
	}
}

func mmss(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
