package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"go.uber.org/zap"

	"github.com/chenseanxy/symbol-game/config"
	"github.com/chenseanxy/symbol-game/consensus"
	"github.com/chenseanxy/symbol-game/discovery"
	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/lobby"
	"github.com/chenseanxy/symbol-game/logging"
	"github.com/chenseanxy/symbol-game/network"
)

// app bundles the wiring of one running node. Any node can host a
// lobby until it joins someone else's.
type app struct {
	me       network.Identity
	cfg      *config.Config
	log      *zap.SugaredLogger
	sm       *game.StateMachine
	store    *network.Store
	server   *network.Server
	detector *consensus.FaultDetector
	node     *consensus.Node
	manager  *lobby.Manager
	discover *discovery.Discover

	mu      sync.Mutex
	host    *network.Connection // set once we joined another lobby
	canHost bool
}

func main() {
	addressFlag := flag.String("address", "0.0.0.0", "address to listen on")
	portFlag := flag.Int("port", 0, "port to listen on")
	nameFlag := flag.String("name", "", "player name")
	flag.Parse()

	cfg := config.Load()
	port := cfg.Port
	if *portFlag != 0 {
		port = *portFlag
	}

	pterm.Print("\n")
	title, err := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("S", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("ymbol ", pterm.FgDarkGray.ToStyle()),
		putils.LettersFromStringWithStyle("G", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("ame", pterm.FgDarkGray.ToStyle()),
	).Srender()
	if err == nil {
		pterm.Print(title)
	}

	name := *nameFlag
	for name == "" {
		name, _ = pterm.DefaultInteractiveTextInput.WithDefaultText("Enter your player name").Show()
	}
	pterm.Println()
	pterm.Info.Printfln("Your name: %s", name)

	l, err := net.Listen("tcp", *addressFlag+":"+strconv.Itoa(port))
	if err != nil {
		pterm.Warning.Printfln("Port %d unavailable: %v", port, err)
		l, err = net.Listen("tcp", *addressFlag+":0")
		if err != nil {
			panic(err)
		}
	}
	ip, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		panic(err)
	}
	port, _ = strconv.Atoi(portStr)
	pterm.Info.Printfln("Listening on %s", l.Addr().String())
	pterm.Print("\n")

	log := logging.New(cfg.LogDir, ip, port)
	defer func() { _ = log.Sync() }()

	a := newApp(network.Identity{IP: ip, Port: port, Name: name}, cfg, log)
	a.node.Run(context.Background())
	a.server.Start(l)

	announcer, err := discovery.New(
		discovery.Host{Name: name, Address: l.Addr().String()},
		uint16(cfg.DiscoveryPort),
		discovery.WithInterval(time.Second),
	)
	if err != nil {
		log.Warnw("discovery unavailable", "err", err)
	} else {
		a.discover = announcer
		announcer.Start()
	}

	pterm.Info.Println("Waiting for players to join, or join another game. Type 'help' for commands.")
	a.repl()

	if a.discover != nil {
		_ = a.discover.Close()
	}
	a.store.CloseAll()
	_ = a.server.Close()
	pterm.Println("Thank you for playing...")
}

func newApp(me network.Identity, cfg *config.Config, log *zap.SugaredLogger) *app {
	a := &app{
		me:      me,
		cfg:     cfg,
		log:     log,
		sm:      game.NewStateMachine(),
		canHost: true,
	}
	a.store = network.NewStore(log)
	a.server = network.NewServer(me, a.store, log)
	a.detector = consensus.NewFaultDetector(cfg.DrawTimeout, cfg.ValidateTimeout, log)
	a.node = consensus.NewNode(me, a.sm, a.store, a.store, a.detector, log)
	a.manager = lobby.NewManager(me, me.Name, a.sm, a.store, cfg.StartTimeout, log)

	a.node.SetNotify(consensus.Notify{
		OnTurn:            a.onTurn,
		OnApplied:         a.onApplied,
		OnEnded:           a.onEnded,
		OnLobbyDisconnect: a.onLobbyDisconnect,
	})
	a.server.SetOnConnect(func(conn *network.Connection) {
		a.node.BindConnection(conn)
		a.mu.Lock()
		hosting := a.canHost
		a.mu.Unlock()
		if hosting {
			a.manager.BindConnection(conn)
		}
	})
	return a
}

func (a *app) onTurn(drawer game.Player, mine bool) {
	a.printBoard()
	if mine {
		pterm.Success.Println("It's your turn! Type: move <row> <col>")
	} else {
		pterm.Info.Printfln("It's %s's turn (%s)", pterm.LightCyan(drawer.Name), drawer.Symbol)
	}
}

func (a *app) onApplied(move game.Move) {
	session := a.sm.Session()
	if player, ok := session.PlayerByID(move.Player); ok {
		pterm.Info.Printfln("%s marked (%d, %d)", pterm.LightCyan(player.Name), move.Row, move.Col)
	}
}

func (a *app) onEnded(reason game.EndReason, result game.Result, winner int) {
	a.printBoard()
	switch reason {
	case game.EndWin:
		name := strconv.Itoa(winner)
		if player, ok := a.sm.Session().PlayerByID(winner); ok {
			name = player.Name
		}
		pterm.Success.Printfln("Game Over! %s wins!", pterm.LightCyan(name))
	case game.EndTie:
		pterm.Info.Println("Game Over! It's a tie.")
	default:
		pterm.Error.Println("Game aborted: a player failed or disconnected.")
	}
}

func (a *app) onLobbyDisconnect(ident network.Identity) {
	a.mu.Lock()
	host := a.host
	a.mu.Unlock()
	if host != nil && ident.Same(host.Other()) {
		pterm.Error.Println("Lost connection to the host.")
		a.mu.Lock()
		a.host = nil
		a.canHost = true
		a.mu.Unlock()
		return
	}
	a.manager.RemovePlayer(ident)
	pterm.Warning.Printfln("%s left the lobby", ident.String())
}

func (a *app) hostConn() *network.Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.host
}

func (a *app) hosting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canHost
}

func splitHostPort(addr string, defaultPort int) (string, int, error) {
	ip, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return ip, port, nil
}
