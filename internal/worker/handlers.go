package worker

import (
	"context"
	"errors"

	"github.com/plasmarift/lobby-server/internal/auth"
	"github.com/plasmarift/lobby-server/internal/core"
	"github.com/plasmarift/lobby-server/internal/proto"
	"github.com/plasmarift/lobby-server/internal/store"
)

// handleLogin verifies credentials, auto-registering unknown usernames.
func (p *Pool) handleLogin(ctx context.Context, job core.Job) core.Receipt {
	username := proto.StringParam(job.Msg.Parameters, "username")
	password := proto.StringParam(job.Msg.Parameters, "password")

	account, err := p.store.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hash, hashErr := auth.HashPassword(password)
		if hashErr != nil {
			p.log.Error().Err(hashErr).Msg("hash password")
			return failure(job, "registration failed")
		}
		if _, createErr := p.store.CreateUser(ctx, username, hash); createErr != nil {
			p.log.Error().Err(createErr).Str("username", username).Msg("create user")
			return failure(job, "registration failed")
		}
		return success(job, "register successfully", core.ReceiptPayload{Username: username})

	case err != nil:
		p.log.Error().Err(err).Str("username", username).Msg("lookup user")
		return failure(job, "login failed")

	default:
		if auth.ComparePassword(account.PasswordHash, password) != nil {
			return failure(job, "wrong password")
		}
		return success(job, "login successfully", core.ReceiptPayload{Username: username})
	}
}

// handleJoinChat creates the room when the Router attached no existing
// one, otherwise password-checks the join.
func (p *Pool) handleJoinChat(ctx context.Context, job core.Job) core.Receipt {
	roomName := proto.StringParam(job.Msg.Parameters, "chatName")
	password := proto.StringParam(job.Msg.Parameters, "password")

	if job.Chat == nil {
		persisted, err := p.store.GetChatRoom(ctx, roomName)
		if errors.Is(err, store.ErrNotFound) {
			var hash string
			if password != "" {
				hash, err = auth.HashPassword(password)
				if err != nil {
					p.log.Error().Err(err).Msg("hash room password")
					return failure(job, "chat create failed")
				}
			}
			if _, err := p.store.CreateChatRoom(ctx, roomName, hash); err != nil {
				p.log.Error().Err(err).Str("room", roomName).Msg("create chat room")
				return failure(job, "chat create failed")
			}
			return success(job, "chat created", core.ReceiptPayload{
				Chat: core.NewChatRoom(roomName),
				Type: core.PayloadTypeCreate,
			})
		}
		if err != nil {
			p.log.Error().Err(err).Str("room", roomName).Msg("lookup chat room")
			return failure(job, "chat join failed")
		}
		// The room is durable but not resident: rebuild the in-memory
		// room after the password check.
		if !roomPasswordOK(persisted.PasswordHash, password) {
			return failure(job, "wrong password")
		}
		return success(job, "chat created", core.ReceiptPayload{
			Chat: core.NewChatRoom(roomName),
			Type: core.PayloadTypeCreate,
		})
	}

	persisted, err := p.store.GetChatRoom(ctx, roomName)
	if err != nil {
		p.log.Error().Err(err).Str("room", roomName).Msg("lookup chat room")
		return failure(job, "chat join failed")
	}
	if !roomPasswordOK(persisted.PasswordHash, password) {
		return failure(job, "wrong password")
	}
	return success(job, "chat joined", core.ReceiptPayload{
		Chat: job.Chat,
		Type: core.PayloadTypeJoin,
	})
}

func roomPasswordOK(hash, password string) bool {
	if hash == "" {
		return password == ""
	}
	return auth.ComparePassword(hash, password) == nil
}

// handleSayChat records the line durably and stamps it as the room's
// latest message.
func (p *Pool) handleSayChat(ctx context.Context, job core.Job) core.Receipt {
	if job.Chat == nil {
		return failure(job, core.MsgChatDismissed)
	}
	if job.User == nil || !job.Chat.Has(job.User.Username) {
		return failure(job, "not a member of this chat room")
	}

	text := proto.StringParam(job.Msg.Parameters, "message")
	line := &store.ChatLine{
		RoomName: job.Chat.RoomName,
		Author:   job.User.Username,
		Text:     text,
	}
	if err := p.store.SaveChatLine(ctx, line); err != nil {
		p.log.Error().Err(err).Str("room", job.Chat.RoomName).Msg("save chat line")
		return failure(job, "message not delivered")
	}

	job.Chat.Say(job.User.Username, text)
	return success(job, "message delivered", core.ReceiptPayload{Chat: job.Chat})
}

func (p *Pool) handleLeaveChat(ctx context.Context, job core.Job) core.Receipt {
	if job.Chat == nil {
		return failure(job, core.MsgChatDismissed)
	}
	if job.User == nil || !job.Chat.Leave(job.User.Username) {
		return failure(job, "not a member of this chat room")
	}
	return success(job, "chat left", core.ReceiptPayload{Chat: job.Chat})
}

// handleJoinGame creates a room on the autohost slot the Router picked,
// or seats the player in the existing room.
func (p *Pool) handleJoinGame(job core.Job) core.Receipt {
	if job.User == nil {
		return failure(job, core.MsgUserDismissed)
	}
	title := proto.StringParam(job.Msg.Parameters, "gameName")

	if job.Game == nil {
		game := core.NewGameRoom(title, job.User.Username, job.Autohost, job.RoomID)
		return success(job, "game created", core.ReceiptPayload{
			Game: game,
			Type: core.PayloadTypeCreate,
		})
	}

	job.Game.AddPlayer(job.User.Username, 0)
	return success(job, "game joined", core.ReceiptPayload{
		Game: job.Game,
		Type: core.PayloadTypeJoin,
	})
}

func (p *Pool) handleSetAI(job core.Job) core.Receipt {
	if job.Game == nil {
		return failure(job, core.MsgGameDismissed)
	}
	ai := proto.StringParam(job.Msg.Parameters, "ai")
	team := proto.IntParam(job.Msg.Parameters, "team")
	if ai == "" {
		return failure(job, "invalid ai name")
	}
	job.Game.SetAI(ai, team)
	return success(job, "ai set", core.ReceiptPayload{Game: job.Game})
}

func (p *Pool) handleDelAI(job core.Job) core.Receipt {
	if job.Game == nil {
		return failure(job, core.MsgGameDismissed)
	}
	ai := proto.StringParam(job.Msg.Parameters, "ai")
	if !job.Game.DelAI(ai) {
		return failure(job, "no such ai")
	}
	return success(job, "ai removed", core.ReceiptPayload{Game: job.Game})
}

func (p *Pool) handleSetTeam(job core.Job) core.Receipt {
	if job.Game == nil {
		return failure(job, core.MsgGameDismissed)
	}
	player := proto.StringParam(job.Msg.Parameters, "player")
	team := proto.IntParam(job.Msg.Parameters, "team")
	if !job.Game.SetTeam(player, team) {
		return failure(job, "player not in game")
	}
	return success(job, "team set", core.ReceiptPayload{Game: job.Game})
}

func (p *Pool) handleSetMap(job core.Job) core.Receipt {
	if job.Game == nil {
		return failure(job, core.MsgGameDismissed)
	}
	job.Game.SetMap(proto.StringParam(job.Msg.Parameters, "mapId"))
	return success(job, "map set", core.ReceiptPayload{Game: job.Game})
}

func (p *Pool) handleStartGame(job core.Job) core.Receipt {
	if job.Game == nil {
		return failure(job, core.MsgGameDismissed)
	}
	start := proto.BoolParam(job.Msg.Parameters, "start")
	job.Game.Started = start
	return success(job, "game start updated", core.ReceiptPayload{
		Game:  job.Game,
		Start: start,
	})
}
