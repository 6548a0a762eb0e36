package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/chenseanxy/symbol-game/consensus"
	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/lobby"
	"github.com/chenseanxy/symbol-game/network"
)

const joinTimeout = 10 * time.Second

var commandHelp = [][]string{
	{"help", "show this help"},
	{"discover", "list games announced on the local network"},
	{"join <ip> [port]", "join the lobby hosted at the given address"},
	{"symbol <s>", "claim a symbol for the game"},
	{"players", "list the players in the lobby (host only)"},
	{"start [size]", "freeze the lobby and start the game (host only)"},
	{"move <row> <col>", "propose your move, coordinates start at 0"},
	{"board", "print the current board"},
	{"resync", "refetch the game state from the host"},
	{"exit", "leave"},
}

// repl reads commands until exit. Game events print asynchronously
// from the notify callbacks; the prompt just redraws.
func (a *app) repl() {
	for {
		line, _ := pterm.DefaultInteractiveTextInput.WithDefaultText(">").Show()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			a.cmdHelp()
		case "discover":
			a.cmdDiscover()
		case "join":
			a.cmdJoin(fields[1:])
		case "symbol":
			a.cmdSymbol(fields[1:])
		case "players":
			a.cmdPlayers()
		case "start":
			a.cmdStart(fields[1:])
		case "move":
			a.cmdMove(fields[1:])
		case "board":
			a.printBoard()
		case "resync":
			a.cmdResync()
		case "exit", "quit":
			return
		default:
			pterm.Warning.Printfln("Unknown command %q, type 'help'", fields[0])
		}
	}
}

func (a *app) cmdHelp() {
	data := pterm.TableData{{"Command", "Description"}}
	for _, row := range commandHelp {
		data = append(data, row)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func (a *app) cmdDiscover() {
	if a.discover == nil {
		pterm.Error.Println("Discovery is not available on this network.")
		return
	}
	spinner, _ := pterm.DefaultSpinner.Start("Listening for announcements...")
	time.Sleep(2 * time.Second)
	hosts := a.discover.Hosts()
	spinner.Success()
	if len(hosts) == 0 {
		pterm.Info.Println("No games found.")
		return
	}
	for host, last := range hosts {
		pterm.Info.Printfln("Found %s at %s (last seen %s ago)",
			pterm.LightCyan(host.Name), host.Address, time.Since(last).Round(time.Second))
	}
}

func (a *app) cmdJoin(args []string) {
	if len(args) < 1 {
		pterm.Warning.Println("Usage: join <ip> [port]")
		return
	}
	if a.hostConn() != nil {
		pterm.Warning.Println("Already joined a game.")
		return
	}
	if len(a.manager.Players()) > 1 {
		pterm.Warning.Println("You are hosting a lobby with players in it.")
		return
	}
	addr := args[0]
	if len(args) > 1 {
		addr = args[0] + ":" + args[1]
	}
	ip, port, err := splitHostPort(addr, a.cfg.Port)
	if err != nil {
		pterm.Error.Println(err.Error())
		return
	}
	target := network.Identity{IP: ip, Port: port}

	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + target.Addr() + " ...")
	conn, err := network.Dial(a.me, target, a.log)
	if err != nil {
		spinner.Fail()
		pterm.Error.Printfln("Could not connect: %v", err)
		return
	}
	a.node.BindConnection(conn)
	a.store.Add(conn)
	conn.Start()

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	id, err := lobby.Join(ctx, conn, a.me, game.Preferences{})
	if err != nil {
		spinner.Fail()
		pterm.Error.Printfln("Join refused: %v", err)
		_ = conn.Close()
		return
	}
	spinner.Success()

	a.mu.Lock()
	a.host = conn
	a.canHost = false
	a.mu.Unlock()
	pterm.Success.Printfln("Joined! You are player %d. Waiting for the host to start.", id)
}

func (a *app) cmdSymbol(args []string) {
	if len(args) != 1 {
		pterm.Warning.Println("Usage: symbol <s>")
		return
	}
	symbol := args[0]
	if host := a.hostConn(); host != nil {
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()
		ok, err := lobby.ChooseSymbol(ctx, host, symbol)
		if err != nil {
			pterm.Error.Printfln("Symbol request failed: %v", err)
			return
		}
		if !ok {
			pterm.Error.Printfln("Symbol %q is already taken.", symbol)
			return
		}
	} else {
		if err := a.manager.ChooseHostSymbol(symbol); err != nil {
			pterm.Error.Println(err.Error())
			return
		}
	}
	pterm.Success.Printfln("You play as %s", pterm.LightCyan(symbol))
}

func (a *app) cmdPlayers() {
	if !a.hosting() {
		pterm.Info.Println("Only the host tracks the lobby roster.")
		return
	}
	data := pterm.TableData{{"ID", "Name", "Symbol", "Address"}}
	for _, p := range a.manager.Players() {
		data = append(data, []string{strconv.Itoa(p.ID), p.Name, p.Symbol, p.Identity.Addr()})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func (a *app) cmdStart(args []string) {
	if !a.hosting() {
		pterm.Warning.Println("Only the host can start the game.")
		return
	}
	boardSize := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 2 {
			pterm.Warning.Println("Usage: start [size], size at least 2")
			return
		}
		boardSize = n
	}
	spinner, _ := pterm.DefaultSpinner.Start("Starting the game, waiting for acknowledgments...")
	session, err := a.manager.Start(context.Background(), boardSize)
	if err != nil {
		spinner.Fail()
		pterm.Error.Printfln("Start failed: %v", err)
		return
	}
	spinner.Success()
	if err := a.node.Begin(context.Background()); err != nil {
		pterm.Error.Printfln("Could not enter the game: %v", err)
		return
	}
	pterm.Success.Printfln("Game on! %d players, %dx%d board.",
		len(session.Players), session.BoardSize, session.BoardSize)
}

func (a *app) cmdMove(args []string) {
	if len(args) != 2 {
		pterm.Warning.Println("Usage: move <row> <col>")
		return
	}
	row, err1 := strconv.Atoi(args[0])
	col, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		pterm.Warning.Println("Coordinates must be numbers.")
		return
	}
	spinner, _ := pterm.DefaultSpinner.Start("Waiting for the other players to validate...")
	decision, err := a.node.ProposeMove(row, col)
	if err != nil {
		spinner.Fail()
		if errors.Is(err, game.ErrSessionState) {
			pterm.Warning.Println("You cannot move right now.")
		} else {
			pterm.Error.Println(err.Error())
		}
		return
	}
	switch decision.Outcome {
	case consensus.OutcomeCommitted:
		spinner.Success()
	case consensus.OutcomeEnded:
		spinner.Success()
	case consensus.OutcomeRejected:
		spinner.Fail()
		if len(decision.Rejecters) == 0 {
			// Everyone accepted the move but disagreed on its result.
			pterm.Error.Println("Players disagree on the outcome of that move, pick another cell.")
		} else {
			pterm.Error.Printfln("Move rejected by players %v, pick another cell.", decision.Rejecters)
		}
	case consensus.OutcomeFault:
		spinner.Fail()
		pterm.Error.Printfln("No validation from players %v.", decision.Missing)
	}
}

func (a *app) cmdResync() {
	host := a.hostConn()
	if host == nil {
		pterm.Info.Println("You are the host, nothing to resync from.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if err := a.node.Resync(ctx, host); err != nil {
		pterm.Error.Printfln("Resync failed: %v", err)
		return
	}
	pterm.Success.Println("State refreshed from the host.")
	a.printBoard()
}
