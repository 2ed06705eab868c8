/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/friendsincode/tonelist/internal/dispatch"
)

// rpcForbidden is returned when the token does not cover the guild.
const rpcForbidden = -32011

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	// ID is nil for notifications.
	ID json.RawMessage `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcParams struct {
	GuildID         string `json:"guildId"`
	ChannelID       string `json:"channelId"`
	NotifyChannelID string `json:"notifyChannelId"`
	Query           string `json:"query"`
	Index           *int   `json:"index"`
}

var nullID = json.RawMessage("null")

func errorResponse(id json.RawMessage, code int, message string) *rpcResponse {
	if id == nil {
		id = nullID
	}
	return &rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: message}, ID: id}
}

// handleRPC serves JSON-RPC 2.0, single or batched.
func (a *API) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, dispatch.RPCParseError, "Parse error"))
		return
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		writeJSON(w, http.StatusOK, errorResponse(nil, dispatch.RPCParseError, "Parse error"))
		return
	}

	if body[0] != '[' {
		resp := a.handleRPCMessage(r.Context(), body)
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
		writeJSON(w, http.StatusOK, errorResponse(nil, dispatch.RPCInvalidRequest, "Invalid Request"))
		return
	}
	responses := make([]*rpcResponse, 0, len(batch))
	for _, msg := range batch {
		if resp := a.handleRPCMessage(r.Context(), msg); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

// handleRPCMessage runs one call. It returns nil for notifications.
func (a *API) handleRPCMessage(ctx context.Context, raw json.RawMessage) (resp *rpcResponse) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, dispatch.RPCInvalidRequest, "Invalid Request")
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error().Str("method", req.Method).Str("panic", fmt.Sprint(p)).Msg("rpc handler panicked")
			resp = errorResponse(req.ID, dispatch.RPCInternalError, "Internal error")
		}
		ev := a.logger.Debug().Str("method", req.Method).Dur("duration", time.Since(start))
		if resp != nil && resp.Error != nil {
			ev = ev.Int("code", resp.Error.Code)
		}
		ev.Msg("rpc call")
		if req.ID == nil {
			resp = nil
		}
	}()

	result, rerr := a.callRPC(ctx, req)
	if rerr != nil {
		id := req.ID
		if id == nil {
			id = nullID
		}
		return &rpcResponse{JSONRPC: "2.0", Error: rerr, ID: id}
	}
	return &rpcResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (a *API) callRPC(ctx context.Context, req rpcRequest) (any, *rpcError) {
	cmd, ok := dispatch.ParseCommand(req.Method)
	if !ok {
		return nil, &rpcError{Code: dispatch.RPCMethodNotFound, Message: "Method not found"}
	}

	var params rpcParams
	if len(req.Params) > 0 && !bytes.Equal(req.Params, nullID) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: dispatch.RPCInvalidParams, Message: "Invalid params"}
		}
	}

	if params.GuildID != "" {
		if err := a.authorize(ctx, params.GuildID); err != nil {
			status, code, msg := authFailure(err)
			if status == http.StatusForbidden {
				return nil, &rpcError{Code: rpcForbidden, Message: msg, Data: map[string]string{"kind": code}}
			}
			return nil, &rpcError{Code: dispatch.RPCInternalError, Message: "Internal error"}
		}
	}

	res, err := a.dispatcher.Dispatch(ctx, dispatch.SurfaceRPC, cmd, dispatch.Args{
		GuildID:         params.GuildID,
		ChannelID:       params.ChannelID,
		NotifyChannelID: params.NotifyChannelID,
		Query:           params.Query,
		Index:           params.Index,
	})
	if err != nil {
		se := dispatch.Lookup(err)
		return nil, &rpcError{Code: se.RPCCode, Message: dispatch.Text(err), Data: map[string]string{"kind": se.Code}}
	}
	return res, nil
}
