package rpc

import (
	"net/http"
)

type positionIDParams struct {
	PositionID uint64 `json:"positionId"`
}

func (s *Server) handleGetPosition(w http.ResponseWriter, req *RPCRequest) int {
	var params positionIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	record, ok, err := s.deps.Positions.Get(params.PositionID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "position not found", params.PositionID)
		return http.StatusNotFound
	}
	writeResult(w, req.ID, formatPosition(record))
	return http.StatusOK
}

type listPositionsParams struct {
	Owner string `json:"owner"`
	Asset string `json:"asset,omitempty"`
}

func (s *Server) handleListPositions(w http.ResponseWriter, req *RPCRequest) int {
	var params listPositionsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return http.StatusBadRequest
	}
	if params.Asset != "" {
		asset, err := parseAddress(params.Asset)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
			return http.StatusBadRequest
		}
		record, ok, err := s.deps.Positions.ByOwnerAndAsset(owner, asset)
		if err != nil {
			return writeEngineError(w, req.ID, err)
		}
		results := []*PositionResult{}
		if ok {
			results = append(results, formatPosition(record))
		}
		writeResult(w, req.ID, results)
		return http.StatusOK
	}
	records, err := s.deps.Positions.ListByOwner(owner)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	results := make([]*PositionResult, 0, len(records))
	for _, record := range records {
		results = append(results, formatPosition(record))
	}
	writeResult(w, req.ID, results)
	return http.StatusOK
}

type balanceOfParams struct {
	Token  string `json:"token"`
	Holder string `json:"holder"`
}

type balanceOfResult struct {
	Token   string `json:"token"`
	Holder  string `json:"holder"`
	Balance string `json:"balance"`
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) int {
	var params balanceOfParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	tokenAddr, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token", err.Error())
		return http.StatusBadRequest
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder", err.Error())
		return http.StatusBadRequest
	}
	balance, err := s.deps.Tokens.BalanceOf(tokenAddr, holder)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, balanceOfResult{
		Token:   params.Token,
		Holder:  params.Holder,
		Balance: balance.String(),
	})
	return http.StatusOK
}

type feeTotalsParams struct {
	Asset string `json:"asset"`
}

type feeTotalsResult struct {
	Asset string `json:"asset"`
	Total string `json:"total"`
}

func (s *Server) handleFeeTotals(w http.ResponseWriter, req *RPCRequest) int {
	var params feeTotalsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return http.StatusBadRequest
	}
	total, err := s.deps.Sink.Totals(asset)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, feeTotalsResult{Asset: params.Asset, Total: total.String()})
	return http.StatusOK
}

type reservesParams struct {
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
	FeePpm uint32 `json:"feePpm"`
}

type reservesResult struct {
	ReserveA string `json:"reserveA"`
	ReserveB string `json:"reserveB"`
}

func (s *Server) handleReserves(w http.ResponseWriter, req *RPCRequest) int {
	var params reservesParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	tokenA, err := parseAddress(params.TokenA)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenA", err.Error())
		return http.StatusBadRequest
	}
	tokenB, err := parseAddress(params.TokenB)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenB", err.Error())
		return http.StatusBadRequest
	}
	reserveA, reserveB, err := s.deps.Pool.Reserves(tokenA, tokenB, params.FeePpm)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, reservesResult{ReserveA: reserveA.String(), ReserveB: reserveB.String()})
	return http.StatusOK
}
