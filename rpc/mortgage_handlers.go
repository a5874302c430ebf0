package rpc

import (
	"net/http"
)

type mortgageParams struct {
	Caller       string    `json:"caller"`
	Asset        string    `json:"asset"`
	Deposit      string    `json:"deposit"`
	SettlePath   pathParam `json:"settlePath,omitempty"`
	AmountOutMin string    `json:"amountOutMin,omitempty"`
}

type mortgageAddParams struct {
	Caller       string    `json:"caller"`
	PositionID   uint64    `json:"positionId"`
	Deposit      string    `json:"deposit"`
	SettlePath   pathParam `json:"settlePath,omitempty"`
	AmountOutMin string    `json:"amountOutMin,omitempty"`
}

type mortgageResult struct {
	PositionID uint64 `json:"positionId"`
	AmountOut  string `json:"amountOut"`
	OutFind    string `json:"outFind"`
	Fee        string `json:"fee"`
}

func (s *Server) handleMortgage(w http.ResponseWriter, req *RPCRequest) int {
	var params mortgageParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return http.StatusBadRequest
	}
	deposit, err := parseAmount(params.Deposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid deposit", err.Error())
		return http.StatusBadRequest
	}
	settlePath, err := params.SettlePath.build(s.deps.Engine.BaseToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid settle path", err.Error())
		return http.StatusBadRequest
	}
	amountOutMin, err := parseOptionalAmount(params.AmountOutMin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountOutMin", err.Error())
		return http.StatusBadRequest
	}
	result, err := s.deps.Engine.Mortgage(caller, asset, deposit, settlePath, amountOutMin)
	if err != nil {
		s.observeEngine("mortgage", err, nil)
		return writeEngineError(w, req.ID, err)
	}
	s.observeEngine("mortgage", nil, result.Fee)
	writeResult(w, req.ID, mortgageResult{
		PositionID: result.PositionID,
		AmountOut:  result.AmountOut.String(),
		OutFind:    result.OutFind.String(),
		Fee:        result.Fee.String(),
	})
	return http.StatusOK
}

func (s *Server) handleMortgageAdd(w http.ResponseWriter, req *RPCRequest) int {
	var params mortgageAddParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	deposit, err := parseAmount(params.Deposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid deposit", err.Error())
		return http.StatusBadRequest
	}
	settlePath, err := params.SettlePath.build(s.deps.Engine.BaseToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid settle path", err.Error())
		return http.StatusBadRequest
	}
	amountOutMin, err := parseOptionalAmount(params.AmountOutMin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountOutMin", err.Error())
		return http.StatusBadRequest
	}
	result, err := s.deps.Engine.MortgageAdd(caller, params.PositionID, deposit, settlePath, amountOutMin)
	if err != nil {
		s.observeEngine("mortgage", err, nil)
		return writeEngineError(w, req.ID, err)
	}
	s.observeEngine("mortgage", nil, result.Fee)
	writeResult(w, req.ID, mortgageResult{
		PositionID: result.PositionID,
		AmountOut:  result.AmountOut.String(),
		OutFind:    result.OutFind.String(),
		Fee:        result.Fee.String(),
	})
	return http.StatusOK
}

type redeemParams struct {
	Caller      string    `json:"caller"`
	PositionID  uint64    `json:"positionId"`
	Withdraw    string    `json:"withdraw"`
	MaxAmountIn string    `json:"maxAmountIn,omitempty"`
	PayPath     pathParam `json:"payPath,omitempty"`
}

type redeemResult struct {
	AmountIn string `json:"amountIn"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, req *RPCRequest) int {
	var params redeemParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	withdraw, err := parseAmount(params.Withdraw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid withdraw", err.Error())
		return http.StatusBadRequest
	}
	maxAmountIn, err := parseOptionalAmount(params.MaxAmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxAmountIn", err.Error())
		return http.StatusBadRequest
	}
	payPath, err := params.PayPath.build(s.deps.Engine.BaseToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid pay path", err.Error())
		return http.StatusBadRequest
	}
	amountIn, err := s.deps.Engine.Redeem(caller, params.PositionID, withdraw, maxAmountIn, payPath)
	s.observeEngine("redeem", err, nil)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, redeemResult{AmountIn: amountIn.String()})
	return http.StatusOK
}

type multiplyParams struct {
	Caller  string    `json:"caller"`
	Asset   string    `json:"asset"`
	AllFind string    `json:"allFind"`
	PayMax  string    `json:"payMax,omitempty"`
	PayPath pathParam `json:"payPath,omitempty"`
}

type multiplyAddParams struct {
	Caller     string    `json:"caller"`
	PositionID uint64    `json:"positionId"`
	AllFind    string    `json:"allFind"`
	PayMax     string    `json:"payMax,omitempty"`
	PayPath    pathParam `json:"payPath,omitempty"`
}

type multiplyResult struct {
	PositionID uint64 `json:"positionId"`
	NeedPay    string `json:"needPay"`
	OspDelta   string `json:"ospDelta"`
	PayFind    string `json:"payFind"`
	TokenPay   string `json:"tokenPay"`
}

func (s *Server) handleMultiply(w http.ResponseWriter, req *RPCRequest) int {
	var params multiplyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return http.StatusBadRequest
	}
	allFind, err := parseAmount(params.AllFind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid allFind", err.Error())
		return http.StatusBadRequest
	}
	payMax, err := parseOptionalAmount(params.PayMax)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payMax", err.Error())
		return http.StatusBadRequest
	}
	payPath, err := params.PayPath.build(s.deps.Engine.BaseToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid pay path", err.Error())
		return http.StatusBadRequest
	}
	result, err := s.deps.Engine.Multiply(caller, asset, allFind, payMax, payPath)
	s.observeEngine("multiply", err, nil)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, multiplyResult{
		PositionID: result.PositionID,
		NeedPay:    result.NeedPay.String(),
		OspDelta:   result.OspDelta.String(),
		PayFind:    result.PayFind.String(),
		TokenPay:   formatAddress(result.TokenPay),
	})
	return http.StatusOK
}

func (s *Server) handleMultiplyAdd(w http.ResponseWriter, req *RPCRequest) int {
	var params multiplyAddParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	allFind, err := parseAmount(params.AllFind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid allFind", err.Error())
		return http.StatusBadRequest
	}
	payMax, err := parseOptionalAmount(params.PayMax)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payMax", err.Error())
		return http.StatusBadRequest
	}
	payPath, err := params.PayPath.build(s.deps.Engine.BaseToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid pay path", err.Error())
		return http.StatusBadRequest
	}
	result, err := s.deps.Engine.MultiplyAdd(caller, params.PositionID, allFind, payMax, payPath)
	s.observeEngine("multiply", err, nil)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, multiplyResult{
		PositionID: result.PositionID,
		NeedPay:    result.NeedPay.String(),
		OspDelta:   result.OspDelta.String(),
		PayFind:    result.PayFind.String(),
		TokenPay:   formatAddress(result.TokenPay),
	})
	return http.StatusOK
}

type cashParams struct {
	Caller       string    `json:"caller"`
	PositionID   uint64    `json:"positionId"`
	OspAmount    string    `json:"ospAmount"`
	Path         pathParam `json:"path"`
	AmountOutMin string    `json:"amountOutMin,omitempty"`
}

type cashResult struct {
	AmountOut string `json:"amountOut"`
	OutFind   string `json:"outFind"`
	TokenOut  string `json:"tokenOut"`
}

func (s *Server) handleCash(w http.ResponseWriter, req *RPCRequest) int {
	var params cashParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	ospAmount, err := parseAmount(params.OspAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ospAmount", err.Error())
		return http.StatusBadRequest
	}
	path, err := params.Path.build(s.deps.Engine.BaseToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid path", err.Error())
		return http.StatusBadRequest
	}
	amountOutMin, err := parseOptionalAmount(params.AmountOutMin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountOutMin", err.Error())
		return http.StatusBadRequest
	}
	result, err := s.deps.Engine.Cash(caller, params.PositionID, ospAmount, path, amountOutMin)
	s.observeEngine("cash", err, nil)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, cashResult{
		AmountOut: result.AmountOut.String(),
		OutFind:   result.OutFind.String(),
		TokenOut:  formatAddress(result.TokenOut),
	})
	return http.StatusOK
}

type transferPositionParams struct {
	Caller     string `json:"caller"`
	PositionID uint64 `json:"positionId"`
	To         string `json:"to"`
}

func (s *Server) handleTransferPosition(w http.ResponseWriter, req *RPCRequest) int {
	var params transferPositionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient", err.Error())
		return http.StatusBadRequest
	}
	if err := s.deps.Positions.Transfer(params.PositionID, caller, to); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type approvePositionParams struct {
	Caller     string `json:"caller"`
	PositionID uint64 `json:"positionId"`
	Operator   string `json:"operator,omitempty"`
}

func (s *Server) handleApprovePosition(w http.ResponseWriter, req *RPCRequest) int {
	var params approvePositionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	var operator [20]byte
	if params.Operator != "" {
		operator, err = parseAddress(params.Operator)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid operator", err.Error())
			return http.StatusBadRequest
		}
	}
	if err := s.deps.Positions.Approve(params.PositionID, caller, operator); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type setFeeBpsParams struct {
	FeeBps uint64 `json:"feeBps"`
}

func (s *Server) handleSetFeeBps(w http.ResponseWriter, req *RPCRequest) int {
	var params setFeeBpsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	if err := s.deps.Engine.SetFeeBps(params.FeeBps); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]uint64{"feeBps": s.deps.Engine.FeeBps()})
	return http.StatusOK
}
