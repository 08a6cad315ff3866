package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	"salechain/core/types"
)

const maxPurchasePage = 500

type rpcFailure struct {
	status int
	err    *RPCError
}

func invalidParams(message string, data interface{}) *rpcFailure {
	return &rpcFailure{status: http.StatusBadRequest, err: &RPCError{Code: codeInvalidParams, Message: message, Data: data}}
}

func failureFrom(err error) *rpcFailure {
	status, code := classify(err)
	return &rpcFailure{status: status, err: &RPCError{Code: code, Message: err.Error()}}
}

func singleParam(req *RPCRequest, out interface{}) *rpcFailure {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter required", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams("invalid parameter", err.Error())
	}
	return nil
}

func addressParam(req *RPCRequest) (solana.PublicKey, *rpcFailure) {
	var raw string
	if failure := singleParam(req, &raw); failure != nil {
		return solana.PublicKey{}, failure
	}
	addr, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, invalidParams("invalid address", err.Error())
	}
	return addr, nil
}

func (s *Server) sendTransaction(r *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	var tx types.Transaction
	if failure := singleParam(req, &tx); failure != nil {
		return nil, failure
	}
	hash, err := tx.HashString()
	if err != nil {
		return nil, invalidParams("invalid transaction", err.Error())
	}
	receipt, err := s.node.Submit(r.Context(), &tx)
	if err != nil {
		failure := failureFrom(err)
		if receipt != nil {
			failure.err.Data = SendTransactionResult{TxHash: hash, Receipt: receipt}
		} else {
			failure.err.Data = hash
		}
		return nil, failure
	}
	return SendTransactionResult{TxHash: hash, Receipt: receipt}, nil
}

func (s *Server) getAccount(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	addr, failure := addressParam(req)
	if failure != nil {
		return nil, failure
	}
	acc, err := s.node.Account(addr)
	if err != nil {
		return nil, failureFrom(err)
	}
	return AccountResult{
		Address:    addr.String(),
		Lamports:   acc.Lamports,
		Owner:      acc.Owner.String(),
		Data:       acc.Data,
		Executable: acc.Executable,
		Exists:     !acc.IsEmpty(),
	}, nil
}

func (s *Server) getTokenAccount(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	addr, failure := addressParam(req)
	if failure != nil {
		return nil, failure
	}
	acc, err := s.node.TokenAccount(addr)
	if err != nil {
		return nil, failureFrom(err)
	}
	return TokenAccountResult{Address: addr.String(), Account: acc}, nil
}

func (s *Server) getMint(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	addr, failure := addressParam(req)
	if failure != nil {
		return nil, failure
	}
	mint, err := s.node.Mint(addr)
	if err != nil {
		return nil, failureFrom(err)
	}
	return MintResult{Address: addr.String(), Mint: mint}, nil
}

func (s *Server) getReceipt(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	var hash string
	if failure := singleParam(req, &hash); failure != nil {
		return nil, failure
	}
	if _, err := types.DecodeHash(strings.TrimSpace(hash)); err != nil {
		return nil, invalidParams("invalid transaction hash", err.Error())
	}
	receipt, err := s.node.Receipt(strings.TrimSpace(hash))
	if err != nil {
		return nil, failureFrom(err)
	}
	return receipt, nil
}

func (s *Server) minimumBalance(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	var dataLen int
	if failure := singleParam(req, &dataLen); failure != nil {
		return nil, failure
	}
	if dataLen < 0 {
		return nil, invalidParams("data length must not be negative", dataLen)
	}
	return MinimumBalanceResult{DataLen: dataLen, Lamports: s.node.MinimumBalance(dataLen)}, nil
}

func (s *Server) head(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	if len(req.Params) != 0 {
		return nil, invalidParams("no parameters expected", nil)
	}
	head := s.node.Head()
	return HeadResult{Slot: head.Slot, StateRoot: head.StateRoot.Hex(), Timestamp: head.Timestamp}, nil
}

func (s *Server) airdrop(r *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	var params AirdropParams
	if failure := singleParam(req, &params); failure != nil {
		return nil, failure
	}
	addr, err := solana.PublicKeyFromBase58(strings.TrimSpace(params.Address))
	if err != nil {
		return nil, invalidParams("invalid address", err.Error())
	}
	balance, err := s.node.Airdrop(r.Context(), addr, params.Lamports)
	if err != nil {
		return nil, failureFrom(err)
	}
	return AirdropResult{Address: addr.String(), Lamports: params.Lamports, Balance: balance}, nil
}

func (s *Server) saleGet(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	id, failure := addressParam(req)
	if failure != nil {
		return nil, failure
	}
	view, err := s.node.Sale(id)
	if err != nil {
		return nil, failureFrom(err)
	}
	return view, nil
}

func (s *Server) saleListPurchases(_ *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	var params PurchasesParams
	if failure := singleParam(req, &params); failure != nil {
		return nil, failure
	}
	id, err := solana.PublicKeyFromBase58(strings.TrimSpace(params.SaleID))
	if err != nil {
		return nil, invalidParams("invalid sale id", err.Error())
	}
	if params.Limit == 0 || params.Limit > maxPurchasePage {
		params.Limit = maxPurchasePage
	}
	if _, err := s.node.Sale(id); err != nil {
		return nil, failureFrom(err)
	}
	purchases, total, err := s.node.Purchases(id, params.Offset, params.Limit)
	if err != nil {
		return nil, failureFrom(fmt.Errorf("list purchases: %w", err))
	}
	return PurchasesResult{SaleID: id.String(), Total: total, Offset: params.Offset, Purchases: purchases}, nil
}

func (s *Server) saleStats(r *http.Request, req *RPCRequest) (interface{}, *rpcFailure) {
	if s.stats == nil {
		return nil, &rpcFailure{status: http.StatusServiceUnavailable, err: &RPCError{Code: codeServerError, Message: "sale reporting disabled"}}
	}
	var params SaleStatsParams
	if failure := singleParam(req, &params); failure != nil {
		return nil, failure
	}
	id, err := solana.PublicKeyFromBase58(strings.TrimSpace(params.SaleID))
	if err != nil {
		return nil, invalidParams("invalid sale id", err.Error())
	}
	if params.Top < 0 || params.Top > 100 {
		return nil, invalidParams("top must be within [0,100]", params.Top)
	}
	summary, err := s.stats.Summary(r.Context(), id.String())
	if err != nil {
		return nil, failureFrom(err)
	}
	top, err := s.stats.TopBuyers(r.Context(), id.String(), params.Top)
	if err != nil {
		return nil, failureFrom(err)
	}
	return SaleStatsResult{Summary: summary, TopBuyers: top}, nil
}
