package main

import (
	"strconv"

	"github.com/pterm/pterm"

	"github.com/chenseanxy/symbol-game/game"
)

// printBoard renders the grid and the roster. Outside of an active or
// finished game there is nothing to draw.
func (a *app) printBoard() {
	state := a.sm.State()
	if state != game.Active && state != game.Ended {
		pterm.Info.Println("No game in progress.")
		return
	}
	board := a.sm.BoardView()
	if board == nil {
		pterm.Info.Println("No game in progress.")
		return
	}
	session := a.sm.Session()

	data := make(pterm.TableData, 0, board.Size+1)
	header := make([]string, board.Size+1)
	header[0] = ""
	for c := 0; c < board.Size; c++ {
		header[c+1] = strconv.Itoa(c)
	}
	data = append(data, header)
	for r := 0; r < board.Size; r++ {
		row := make([]string, board.Size+1)
		row[0] = strconv.Itoa(r)
		for c := 0; c < board.Size; c++ {
			cell := board.Cells[r][c]
			if cell == "" {
				cell = "."
			}
			row[c+1] = cell
		}
		data = append(data, row)
	}
	grid, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return
	}

	drawer := a.sm.CurrentDrawer()
	roster := ""
	for _, id := range session.TurnOrder {
		player, ok := session.PlayerByID(id)
		if !ok {
			continue
		}
		line := pterm.Sprintf("%s  %s", player.Symbol, player.Name)
		if player.ID == drawer {
			line = pterm.LightGreen(line + "  <- drawing")
		}
		roster += line + "\n"
	}
	pbox := pterm.DefaultBox.WithLeftPadding(2).WithRightPadding(2).WithTitle("Players").WithTitleTopLeft()

	_ = pterm.DefaultPanel.WithPanels([][]pterm.Panel{
		{{Data: grid}, {Data: pbox.Sprint(roster)}},
	}).Render()
}
