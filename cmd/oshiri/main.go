package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/DoyleJ11/oshiri-client/internal/config"
	"github.com/DoyleJ11/oshiri-client/internal/conn"
	"github.com/DoyleJ11/oshiri-client/internal/lobbyapi"
	"github.com/DoyleJ11/oshiri-client/internal/logging"
	"github.com/DoyleJ11/oshiri-client/internal/round"
	"github.com/DoyleJ11/oshiri-client/internal/session"
	"github.com/DoyleJ11/oshiri-client/internal/store"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"go.uber.org/zap"
)

const usage = `commands:
  /start                      start the game (leader)
  /next                       next round (leader)
  /reset                      back to the lobby (leader)
  /options ROUNDS SECS COMBOS update game options (leader, lobby)
  /leave                      leave the room
anything else is your username on the join screen and your word middle during a round`

func main() {
	room := flag.String("room", "", "room id to join")
	create := flag.Bool("create", false, "create a new room first")
	username := flag.String("username", "", "username to join with")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *room, *create, *username); err != nil {
		logger.Error("oshiri stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, room string, create bool, username string) error {
	if create {
		id, err := lobbyapi.New(cfg.ServerURL, nil).CreateGame(ctx)
		if err != nil {
			return err
		}
		room = id
		fmt.Printf("created room %s\n", room)
	}
	if room == "" {
		return errors.New("pass -room ID or -create")
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	s := session.New(session.Config{
		RoomID:    room,
		URL:       cfg.WebSocketURL(),
		Reconnect: conn.Policy{Attempts: cfg.ReconnectAttempts, Interval: cfg.ReconnectInterval, DialTimeout: cfg.DialTimeout},
		Roulette:  round.RouletteConfig{Start: cfg.RouletteStart, Step: cfg.RouletteStep, Max: cfg.RouletteMax},
	}, session.Deps{
		Dialer: conn.NewDialer(cfg.Transport),
		Store:  st,
		Logger: logger,
	})

	views := make(chan session.View, 256)
	s.Watch(views)
	go render(os.Stdout, views)

	if username != "" {
		s.Join(username)
	}
	go readCommands(os.Stdin, s)

	fmt.Println(usage)
	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemory(), noop, nil
	case config.StoreRedis:
		rdb, err := store.OpenRedis(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedis(rdb, "oshiri:"+cfg.StoreProfile, 24*time.Hour), func() { _ = rdb.Close() }, nil
	case config.StorePostgres:
		db, err := store.OpenPostgres(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		g, err := store.NewGorm(db, cfg.StoreProfile)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	default:
		return store.NewFile(cfg.StorePath), noop, nil
	}
}

func readCommands(in io.Reader, s *session.Session) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "/start":
			s.StartGame()
		case "/next":
			s.NextRound()
		case "/reset":
			s.ResetGame()
		case "/leave":
			s.Leave()
			return
		case "/options":
			opts, err := parseOptions(fields[1:])
			if err != nil {
				fmt.Println(err)
				continue
			}
			s.UpdateOptions(opts)
		default:
			v, err := s.View(context.Background())
			if err != nil {
				return
			}
			if v.Screen == session.ScreenJoin {
				s.Join(line)
			} else {
				s.Type(line)
			}
		}
	}
}

func parseOptions(args []string) (types.GameOptions, error) {
	if len(args) != 3 {
		return types.GameOptions{}, errors.New("usage: /options ROUNDS SECS COMBOS")
	}
	var n [3]int
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return types.GameOptions{}, fmt.Errorf("%q is not a number", a)
		}
		n[i] = v
	}
	return types.GameOptions{MaxRounds: n[0], RoundTime: n[1], MinWordCombinations: n[2]}, nil
}

// render prints a line whenever something other than a roulette spin changed.
func render(w io.Writer, views <-chan session.View) {
	last := ""
	for v := range views {
		if v.Notice != nil {
			fmt.Fprintf(w, "[%s] %s\n", v.Notice.Kind, v.Notice.Message)
		}
		line := headline(v)
		if line == last {
			continue
		}
		last = line
		fmt.Fprintln(w, line)
	}
}

func headline(v session.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", v.Screen)
	if !v.Connected && !v.Ended {
		b.WriteString(" (offline)")
	}
	switch v.Screen {
	case session.ScreenLobby:
		if v.Game != nil {
			fmt.Fprintf(&b, " room=%s players=%s", v.RoomID, names(v.Game.PlayerQueue))
			fmt.Fprintf(&b, " rounds=%d time=%ds combos=%d", v.Game.MaxRounds, v.Game.RoundTime, v.Game.WordCombinations)
		}
		if v.CanStart {
			b.WriteString(" [/start]")
		}
	case session.ScreenRound:
		fmt.Fprintf(&b, " %s %s_%s_%s", v.Phase, letter(v.Atama), v.Input, letter(v.Oshiri))
		if v.Game != nil {
			fmt.Fprintf(&b, " round %d/%d", v.Game.Round, v.Game.MaxRounds)
			if l, ok := v.Game.Leader(); ok && !v.IsLeader {
				fmt.Fprintf(&b, " (%s is typing)", l.Username)
			}
		}
		if v.InputEnabled {
			b.WriteString(" [your turn]")
		}
		if v.Round != nil {
			verdict := "rejected"
			if v.Round.Accepted {
				verdict = "accepted"
			}
			fmt.Fprintf(&b, " word=%s %s best=%s", v.Round.Word, verdict, strings.Join(v.Round.TopWords, ","))
		}
		if v.CanNextRound {
			b.WriteString(" [/next]")
		}
	case session.ScreenRanking:
		for _, r := range v.Winners {
			fmt.Fprintf(&b, " %d.%s(%d)", r.Rank, r.Username, r.Score)
		}
		if v.CanReset {
			b.WriteString(" [/reset]")
		}
	}
	return b.String()
}

func letter(l round.Letter) string {
	if l.Rolling {
		return "?"
	}
	return l.Value
}

func names(ps []types.Player) string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		n := p.Username
		if p.IsLeader {
			n += "*"
		}
		out = append(out, n)
	}
	return strings.Join(out, ",")
}
