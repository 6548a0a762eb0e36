package lobby

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/messages"
	"github.com/chenseanxy/symbol-game/network"
)

// Join performs the client side of the join handshake over an
// established host connection: send join_game, wait for the assigned
// player ID within the context deadline.
func Join(ctx context.Context, host *network.Connection, me network.Identity, prefs game.Preferences) (int, error) {
	acked := make(chan messages.JoinAck, 1)
	refused := make(chan messages.Error, 1)
	host.Handle(messages.ActionJoinAck, func(_ *network.Connection, payload []byte) {
		var msg messages.JoinAck
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		select {
		case acked <- msg:
		default:
		}
	})
	host.Handle(messages.ActionError, func(_ *network.Connection, payload []byte) {
		var msg messages.Error
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		select {
		case refused <- msg:
		default:
		}
	})
	defer host.Handle(messages.ActionJoinAck, nil)
	defer host.Handle(messages.ActionError, nil)

	if err := host.Send(messages.NewJoinGame(me.Name, me, prefs)); err != nil {
		return 0, err
	}
	select {
	case msg := <-acked:
		return msg.ID, nil
	case msg := <-refused:
		return 0, fmt.Errorf("join refused: %s", msg.Reason)
	case <-host.Done():
		return 0, fmt.Errorf("host connection lost")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ChooseSymbol asks the host to reserve a symbol and waits for its
// verdict.
func ChooseSymbol(ctx context.Context, host *network.Connection, symbol string) (bool, error) {
	verdict := make(chan bool, 1)
	host.Handle(messages.ActionValidateSymbol, func(_ *network.Connection, payload []byte) {
		var msg messages.ValidateSymbol
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		select {
		case verdict <- msg.Valid:
		default:
		}
	})
	defer host.Handle(messages.ActionValidateSymbol, nil)

	if err := host.Send(messages.NewChooseSymbol(symbol)); err != nil {
		return false, err
	}
	select {
	case valid := <-verdict:
		return valid, nil
	case <-host.Done():
		return false, fmt.Errorf("host connection lost")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
